package domain

import "path/filepath"

const (
	// StateDirName is the name of the internal state directory next to the pipeline file.
	StateDirName = ".trellis"

	// RunsDirName holds one record per run and the latest run per job.
	RunsDirName = "runs"

	// CountersDirName holds the persisted build counters.
	CountersDirName = "counters"

	// ArtifactsDirName holds published artifacts keyed by run id.
	ArtifactsDirName = "artifacts"

	// LocksDirName holds the lock files shared by concurrent invocations.
	LocksDirName = "locks"

	// ReleaseFileName is the persisted release record.
	ReleaseFileName = "release.json"

	// PipelineFileName is the name of the pipeline configuration file.
	PipelineFileName = "trellis.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// StatePath returns the state directory under root.
func StatePath(root string) string {
	return filepath.Join(root, StateDirName)
}

// RunsPath returns the run record directory under root.
func RunsPath(root string) string {
	return filepath.Join(root, StateDirName, RunsDirName)
}

// CountersPath returns the build counter directory under root.
func CountersPath(root string) string {
	return filepath.Join(root, StateDirName, CountersDirName)
}

// ArtifactsPath returns the directory holding the artifacts of runID.
func ArtifactsPath(root, runID string) string {
	return filepath.Join(root, StateDirName, ArtifactsDirName, runID)
}

// LocksPath returns the lock file directory under root.
func LocksPath(root string) string {
	return filepath.Join(root, StateDirName, LocksDirName)
}

// ReleasePath returns the release record file under root.
func ReleasePath(root string) string {
	return filepath.Join(root, StateDirName, ReleaseFileName)
}
