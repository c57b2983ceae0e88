package domain

import "go.trai.ch/zerr"

// Graph errors.
var (
	// ErrJobAlreadyExists is returned when attempting to add a job with an id that already exists.
	ErrJobAlreadyExists = zerr.New("job already exists")

	// ErrMissingDependency is returned when an edge references a job that doesn't exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when a cycle is detected in the job dependency graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrJobNotFound is returned when a requested job is not found in the graph.
	ErrJobNotFound = zerr.New("job not found")

	// ErrSelfDependency is returned when a job declares a dependency on itself.
	ErrSelfDependency = zerr.New("job cannot depend on itself")

	// ErrNoTargetsSpecified is returned when no targets are specified for a run.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrCompositeHasSteps is returned when a composite job declares steps.
	ErrCompositeHasSteps = zerr.New("composite job cannot declare steps")
)

// Run failure taxonomy. These surface on Run problem lists.
var (
	// ErrStepExecution is returned when a step exits non-zero or writes to its error stream.
	ErrStepExecution = zerr.New("step execution failed")

	// ErrDependencyFailure is recorded when an upstream run failed.
	ErrDependencyFailure = zerr.New("dependency failed")

	// ErrDependencyCancel is recorded when an upstream run was canceled.
	ErrDependencyCancel = zerr.New("dependency canceled")

	// ErrTimeoutExceeded is recorded when a run exceeds the global execution timeout.
	ErrTimeoutExceeded = zerr.New("execution timeout exceeded")

	// ErrNoCompatibleAgent is recorded when no agent can ever satisfy a job's requirements.
	ErrNoCompatibleAgent = zerr.New("no compatible agent")

	// ErrArtifactPublish is recorded when artifacts cannot be published or retrieved.
	ErrArtifactPublish = zerr.New("failed to publish artifacts")

	// ErrRunInterrupted is recorded when the orchestrator stops before a job could start.
	ErrRunInterrupted = zerr.New("run interrupted before start")

	// ErrBuildExecutionFailed is returned when one or more target runs did not succeed.
	ErrBuildExecutionFailed = zerr.New("build execution failed")
)

// Parameter and rule errors.
var (
	// ErrUnresolvedParameter is returned when a %reference% has no value.
	ErrUnresolvedParameter = zerr.New("unresolved parameter reference")

	// ErrParameterCycle is returned when parameter references form a loop.
	ErrParameterCycle = zerr.New("parameter reference cycle")

	// ErrUnterminatedReference is returned when a pattern contains an unmatched '%'.
	ErrUnterminatedReference = zerr.New("unterminated parameter reference")

	// ErrInvalidArtifactRule is returned when an artifact rule cannot be parsed.
	ErrInvalidArtifactRule = zerr.New("invalid artifact rule")

	// ErrInvalidTriggerRule is returned when a trigger rule cannot be parsed.
	ErrInvalidTriggerRule = zerr.New("invalid trigger rule, expected +:<pattern> or -:<pattern>")

	// ErrInvalidRequirement is returned when a requirement has an unknown operator.
	ErrInvalidRequirement = zerr.New("invalid requirement")

	// ErrInvalidFailureAction is returned when an edge declares an unknown failure action.
	ErrInvalidFailureAction = zerr.New("invalid failure action, expected add-problem, cancel, fail-to-start or ignore")

	// ErrInvalidJobKind is returned when a job declares an unknown type.
	ErrInvalidJobKind = zerr.New("invalid job type, expected regular, composite or deployment")
)

// Release gate errors.
var (
	// ErrInvalidTransition is returned when a release gate transition is not allowed.
	ErrInvalidTransition = zerr.New("invalid release transition")

	// ErrReleaseNotDeclared is returned when the pipeline has no release section.
	ErrReleaseNotDeclared = zerr.New("pipeline does not declare a release")

	// ErrVersionAlreadyResolved is returned when binding an already bound version parameter.
	ErrVersionAlreadyResolved = zerr.New("version parameter already resolved")

	// ErrVersionNotResolved is returned when reading an unbound version parameter.
	ErrVersionNotResolved = zerr.New("version parameter not resolved")

	// ErrReleaseFailed is returned when a release attempt ends in the failed state.
	ErrReleaseFailed = zerr.New("release attempt failed")
)

// Storage and configuration errors.
var (
	// ErrStoreCreateFailed is returned when a state directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create state directory")

	// ErrStoreReadFailed is returned when a state record cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read state record")

	// ErrStoreWriteFailed is returned when a state record cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write state record")

	// ErrStoreMarshalFailed is returned when a state record cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal state record")

	// ErrStoreUnmarshalFailed is returned when a state record cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal state record")

	// ErrStoreLockFailed is returned when a lock file cannot be taken.
	ErrStoreLockFailed = zerr.New("failed to lock state")

	// ErrConfigNotFound is returned when no pipeline file is found.
	ErrConfigNotFound = zerr.New("could not find trellis.yaml")

	// ErrConfigReadFailed is returned when the pipeline file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read pipeline file")

	// ErrConfigParseFailed is returned when the pipeline file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse pipeline file")

	// ErrInvalidJobID is returned when a job id contains invalid characters.
	ErrInvalidJobID = zerr.New("job id can only contain letters, numbers and underscores")

	// ErrInvalidTimeout is returned when the execution timeout cannot be parsed.
	ErrInvalidTimeout = zerr.New("invalid execution timeout")

	// ErrInvalidProjectName is returned when the project name contains invalid characters.
	ErrInvalidProjectName = zerr.New("project name can only contain letters, numbers, underscores and hyphens")

	// ErrUnknownMatrix is returned when a job references an undeclared matrix.
	ErrUnknownMatrix = zerr.New("unknown matrix")

	// ErrAmbiguousJobReference is returned when a matrix job is used where a single job is required.
	ErrAmbiguousJobReference = zerr.New("matrix job expands to more than one job")
)

// Secret errors.
var (
	// ErrSecretNotFound is returned when a credential reference has no value in the environment.
	ErrSecretNotFound = zerr.New("credential reference has no value")

	// ErrInvalidSecretReference is returned when a credential reference is malformed.
	ErrInvalidSecretReference = zerr.New("invalid credential reference")
)
