package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// Well-known agent parameters.
const (
	// AgentOSParam is the operating system name reported by an agent.
	AgentOSParam = "os.name"
	// AgentMemoryParam is the physical memory reported by an agent, in megabytes.
	AgentMemoryParam = "hardware.memorySizeMb"
	// AgentNameParam is the agent's own name.
	AgentNameParam = "agent.name"
)

// RequirementOp is the comparison a requirement applies to an agent parameter.
type RequirementOp string

const (
	// OpEquals requires exact string equality.
	OpEquals RequirementOp = "equals"
	// OpContains requires the parameter to contain the value.
	OpContains RequirementOp = "contains"
	// OpNoLessThan requires a numeric parameter greater than or equal to the value.
	OpNoLessThan RequirementOp = "no-less-than"
	// OpExists requires the parameter to be present.
	OpExists RequirementOp = "exists"
)

// Requirement is a predicate over agent parameters.
type Requirement struct {
	Param string
	Op    RequirementOp
	Value string
}

// NewRequirement validates op and returns a Requirement.
func NewRequirement(param, op, value string) (Requirement, error) {
	r := Requirement{Param: param, Op: RequirementOp(strings.ToLower(op)), Value: value}
	switch r.Op {
	case OpEquals, OpContains, OpExists:
	case OpNoLessThan:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return Requirement{}, zerr.With(zerr.Wrap(err, ErrInvalidRequirement.Error()), "value", value)
		}
	default:
		return Requirement{}, zerr.With(ErrInvalidRequirement, "op", op)
	}
	if param == "" {
		return Requirement{}, zerr.With(ErrInvalidRequirement, "param", param)
	}
	return r, nil
}

// PlatformRequirement is the string-equality predicate on the agent OS name.
func PlatformRequirement(platform string) Requirement {
	return Requirement{Param: AgentOSParam, Op: OpEquals, Value: platform}
}

// SatisfiedBy reports whether params meets the requirement.
func (r Requirement) SatisfiedBy(params map[string]string) bool {
	actual, ok := params[r.Param]
	if !ok {
		return false
	}
	switch r.Op {
	case OpEquals:
		return actual == r.Value
	case OpContains:
		return strings.Contains(actual, r.Value)
	case OpExists:
		return true
	case OpNoLessThan:
		have, err := strconv.ParseFloat(actual, 64)
		if err != nil {
			return false
		}
		want, err := strconv.ParseFloat(r.Value, 64)
		if err != nil {
			return false
		}
		return have >= want
	default:
		return false
	}
}

// String renders the requirement for problem messages.
func (r Requirement) String() string {
	if r.Op == OpExists {
		return r.Param + " exists"
	}
	return r.Param + " " + string(r.Op) + " " + r.Value
}

// Agent is a build agent with its reported capability parameters.
type Agent struct {
	Name   string
	Params map[string]string
}

// Satisfies reports whether the agent meets every requirement.
func (a *Agent) Satisfies(reqs []Requirement) bool {
	for _, r := range reqs {
		if !r.SatisfiedBy(a.Params) {
			return false
		}
	}
	return true
}
