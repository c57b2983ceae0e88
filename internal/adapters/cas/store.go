// Package cas implements the local state store: run records, build counters,
// the release record and published artifacts.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	trellisfs "go.trai.ch/trellis/internal/adapters/fs"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

const latestDirName = "latest"

// Store implements the ports store interfaces using a file-per-record strategy
// under the pipeline's state directory.
type Store struct {
	walker *trellisfs.Walker
}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{walker: trellisfs.NewWalker()}
}

// Put stores the run and marks it as the latest run of its job.
func (s *Store) Put(root string, run *domain.Run) error {
	if err := writeJSON(s.runFilename(root, run.ID), run); err != nil {
		return zerr.With(err, "run_id", run.ID)
	}
	if err := writeJSON(s.latestFilename(root, run.JobID), run); err != nil {
		return zerr.With(err, "job_id", run.JobID)
	}
	return nil
}

// Get retrieves a run by id.
func (s *Store) Get(root, runID string) (*domain.Run, error) {
	var run domain.Run
	found, err := readJSON(s.runFilename(root, runID), &run)
	if err != nil || !found {
		return nil, err
	}
	return &run, nil
}

// Latest returns the most recent run of a job.
func (s *Store) Latest(root, jobID string) (*domain.Run, error) {
	var run domain.Run
	found, err := readJSON(s.latestFilename(root, jobID), &run)
	if err != nil || !found {
		return nil, err
	}
	return &run, nil
}

func (s *Store) runFilename(root, runID string) string {
	return filepath.Join(domain.RunsPath(root), hashKey(runID)+".json")
}

func (s *Store) latestFilename(root, jobID string) string {
	return filepath.Join(domain.RunsPath(root), latestDirName, hashKey(jobID)+".json")
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// readJSON decodes filename into v. It reports false when the file does not exist.
func readJSON(filename string, v any) (bool, error) {
	//nolint:gosec // Path is constructed from trusted directory and hashed filename
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, zerr.Wrap(err, domain.ErrStoreReadFailed.Error())
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, zerr.Wrap(err, domain.ErrStoreUnmarshalFailed.Error())
	}
	return true, nil
}

// writeJSON replaces filename atomically so readers never see a partial record.
func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreMarshalFailed.Error())
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Already renamed on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := tmp.Chmod(domain.FilePerm); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	return nil
}
