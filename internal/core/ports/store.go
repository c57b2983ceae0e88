package ports

import (
	"context"

	"go.trai.ch/trellis/internal/core/domain"
)

// RunStore persists run records.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type RunStore interface {
	// Put stores the run and marks it as the latest run of its job.
	Put(root string, run *domain.Run) error

	// Get retrieves a run by id. Returns nil, nil if not found.
	Get(root, runID string) (*domain.Run, error)

	// Latest returns the most recent run of a job. Returns nil, nil if the job never ran.
	Latest(root, jobID string) (*domain.Run, error)
}

// CounterStore hands out persisted, strictly increasing build counters.
type CounterStore interface {
	// Next increments and returns the build counter of a job.
	Next(root, jobID string) (int64, error)
}

// ReleaseStore persists the release gate record.
type ReleaseStore interface {
	// GetRelease returns the stored record, or a fresh unconfigured record.
	GetRelease(root string) (*domain.ReleaseRecord, error)

	// PutRelease stores the record.
	PutRelease(root string, record *domain.ReleaseRecord) error
}

// ArtifactStore publishes and retrieves run artifacts.
type ArtifactStore interface {
	// Publish copies the files under srcDir matching rules into the store under runID.
	Publish(root, runID, srcDir string, rules []domain.ArtifactRule) ([]domain.Artifact, error)

	// Retrieve copies the artifacts of runID matching rules into destDir.
	Retrieve(root, runID string, rules []domain.ArtifactRule, destDir string) ([]domain.Artifact, error)
}

// Locker hands out locks held across trellis processes sharing a state directory.
type Locker interface {
	// Lock blocks until one of limit slots named key is free and returns the
	// function releasing it.
	Lock(ctx context.Context, root, key string, limit int) (func(), error)
}
