package config

import (
	"gopkg.in/yaml.v3"
)

// Pipelinefile represents the structure of the trellis.yaml configuration file.
type Pipelinefile struct {
	Version     string              `yaml:"version"`
	Project     string              `yaml:"project"`
	Root        string              `yaml:"root"`
	Timeout     string              `yaml:"timeout"`
	Parallelism int                 `yaml:"parallelism"`
	Params      map[string]ParamDTO `yaml:"params"`
	Agents      []AgentDTO          `yaml:"agents"`
	Matrix      map[string][]string `yaml:"matrix"`
	Defaults    DefaultsDTO         `yaml:"defaults"`
	Jobs        map[string]*JobDTO  `yaml:"jobs"`
	Release     *ReleaseDTO         `yaml:"release"`
}

// AgentDTO declares a build agent and the parameters it reports.
type AgentDTO struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

// DefaultsDTO is applied to every job before its own settings.
type DefaultsDTO struct {
	Requirements      []RequirementDTO     `yaml:"requirements"`
	Params            map[string]ParamDTO  `yaml:"params"`
	FailureConditions FailureConditionsDTO `yaml:"failureConditions"`
}

// JobDTO represents a job definition. A job naming a matrix expands into
// one job per platform of that matrix.
type JobDTO struct {
	Name              string               `yaml:"name"`
	Type              string               `yaml:"type"`
	Platform          string               `yaml:"platform"`
	Matrix            string               `yaml:"matrix"`
	Steps             []StepDTO            `yaml:"steps"`
	Artifacts         string               `yaml:"artifacts"`
	Requirements      []RequirementDTO     `yaml:"requirements"`
	Params            map[string]ParamDTO  `yaml:"params"`
	BuildNumber       string               `yaml:"buildNumber"`
	MaxConcurrency    int                  `yaml:"maxConcurrency"`
	FailureConditions FailureConditionsDTO `yaml:"failureConditions"`
	Triggers          *string              `yaml:"triggers"`
	DependsOn         []DependencyDTO      `yaml:"dependsOn"`
}

// StepDTO is one command of a job. Script is run through sh -c.
type StepDTO struct {
	Name        string            `yaml:"name"`
	Cmd         []string          `yaml:"cmd"`
	Script      string            `yaml:"script"`
	WorkingDir  string            `yaml:"workingDir"`
	Environment map[string]string `yaml:"environment"`
}

// RequirementDTO is a predicate over agent parameters.
type RequirementDTO struct {
	Param string `yaml:"param"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}

// FailureConditionsDTO overrides the step failure conditions. Unset fields keep the default.
type FailureConditionsDTO struct {
	NonZeroExitCode *bool `yaml:"nonZeroExitCode"`
	ErrorMessage    *bool `yaml:"errorMessage"`
}

// ParamDTO is a plain value or a mapping {value, secret}.
type ParamDTO struct {
	Value  string `yaml:"value"`
	Secret bool   `yaml:"secret"`
}

// UnmarshalYAML accepts a scalar as a plain value.
func (p *ParamDTO) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Value = node.Value
		return nil
	}
	type raw ParamDTO
	return node.Decode((*raw)(p))
}

// DependencyDTO declares snapshot and artifact dependencies on one upstream job.
type DependencyDTO struct {
	Job       string       `yaml:"job"`
	Snapshot  *SnapshotDTO `yaml:"snapshot"`
	Artifacts string       `yaml:"artifacts"`
}

// UnmarshalYAML accepts a bare job id as a snapshot dependency with default actions.
func (d *DependencyDTO) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Job = node.Value
		d.Snapshot = &SnapshotDTO{}
		return nil
	}
	type raw DependencyDTO
	return node.Decode((*raw)(d))
}

// SnapshotDTO sets the actions taken when the upstream run fails or is canceled.
type SnapshotDTO struct {
	OnFailure string `yaml:"onFailure"`
	OnCancel  string `yaml:"onCancel"`
}

// ReleaseDTO declares the jobs of the release gate. Matrix jobs listed in
// deploy expand to all their platforms.
type ReleaseDTO struct {
	VersionParameter string   `yaml:"versionParameter"`
	Configure        string   `yaml:"configure"`
	Deploy           []string `yaml:"deploy"`
	Publish          string   `yaml:"publish"`
}
