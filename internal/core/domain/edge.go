package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// EdgeKind distinguishes snapshot from artifact dependencies.
type EdgeKind string

const (
	// EdgeKindSnapshot requires the upstream run's build context and version.
	EdgeKindSnapshot EdgeKind = "snapshot"
	// EdgeKindArtifact consumes only the files produced by the upstream run.
	EdgeKindArtifact EdgeKind = "artifact"
)

// FailureAction is what happens to a dependent when its upstream did not succeed.
type FailureAction string

const (
	// ActionIgnore runs the dependent as if the upstream had succeeded.
	ActionIgnore FailureAction = "ignore"
	// ActionAddProblem runs the dependent and records a problem, failing it.
	ActionAddProblem FailureAction = "add-problem"
	// ActionFailToStart fails the dependent without starting it.
	ActionFailToStart FailureAction = "fail-to-start"
	// ActionCancel cancels the dependent without starting it.
	ActionCancel FailureAction = "cancel"
)

// ParseFailureAction converts a configuration string to a FailureAction.
// The empty string maps to def.
func ParseFailureAction(s string, def FailureAction) (FailureAction, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "":
		return def, nil
	case string(ActionIgnore):
		return ActionIgnore, nil
	case string(ActionAddProblem):
		return ActionAddProblem, nil
	case string(ActionFailToStart):
		return ActionFailToStart, nil
	case string(ActionCancel):
		return ActionCancel, nil
	default:
		return "", zerr.With(ErrInvalidFailureAction, "action", s)
	}
}

// Rank orders actions by strength. Cancellation outranks everything else.
func (a FailureAction) Rank() int {
	switch a {
	case ActionCancel:
		return 3
	case ActionFailToStart:
		return 2
	case ActionAddProblem:
		return 1
	default:
		return 0
	}
}

// Edge is a typed dependency from Dependent onto Upstream.
type Edge struct {
	Dependent     InternedString
	Upstream      InternedString
	Kind          EdgeKind
	OnFailure     FailureAction
	OnCancel      FailureAction
	ArtifactRules []ArtifactRule
}

// NewSnapshotEdge builds a snapshot edge with the given policies.
func NewSnapshotEdge(dependent, upstream InternedString, onFailure, onCancel FailureAction) Edge {
	return Edge{
		Dependent: dependent,
		Upstream:  upstream,
		Kind:      EdgeKindSnapshot,
		OnFailure: onFailure,
		OnCancel:  onCancel,
	}
}

// NewArtifactEdge builds an artifact edge. A missing upstream result is recorded as a problem.
func NewArtifactEdge(dependent, upstream InternedString, rules []ArtifactRule) Edge {
	return Edge{
		Dependent:     dependent,
		Upstream:      upstream,
		Kind:          EdgeKindArtifact,
		OnFailure:     ActionAddProblem,
		OnCancel:      ActionAddProblem,
		ArtifactRules: rules,
	}
}
