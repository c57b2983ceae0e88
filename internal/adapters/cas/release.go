package cas

import "go.trai.ch/trellis/internal/core/domain"

// GetRelease returns the stored release record, or a fresh unconfigured one.
func (s *Store) GetRelease(root string) (*domain.ReleaseRecord, error) {
	rec := domain.NewReleaseRecord()
	if _, err := readJSON(domain.ReleasePath(root), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRelease stores the release record.
func (s *Store) PutRelease(root string, record *domain.ReleaseRecord) error {
	return writeJSON(domain.ReleasePath(root), record)
}
