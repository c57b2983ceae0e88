package cas

import (
	"path/filepath"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

type counterRecord struct {
	JobID string `json:"jobId"`
	Value int64  `json:"value"`
}

// Next increments and returns the build counter of a job. The first value is 1.
// The increment holds a file lock, so concurrent invocations never share a value.
func (s *Store) Next(root, jobID string) (int64, error) {
	filename := filepath.Join(domain.CountersPath(root), hashKey(jobID)+".json")

	rec := counterRecord{JobID: jobID}
	err := withFileLock(filename, func() error {
		if _, err := readJSON(filename, &rec); err != nil {
			return err
		}
		rec.Value++
		return writeJSON(filename, rec)
	})
	if err != nil {
		return 0, zerr.With(err, "job_id", jobID)
	}
	return rec.Value, nil
}
