package domain

import "time"

// DefaultExecutionTimeout bounds every job when the pipeline sets no timeout.
const DefaultExecutionTimeout = 120 * time.Minute

// Pipeline is the loaded, versioned configuration of one invocation.
// It is built once and passed by reference; nothing in it changes afterwards.
type Pipeline struct {
	Project     string
	Version     string
	Revision    string
	Root        string
	Graph       *Graph
	Agents      []Agent
	Params      map[string]Param
	Timeout     time.Duration
	Parallelism int
	Release     *ReleaseConfig
}

// StatePath returns the state directory of the pipeline.
func (p *Pipeline) StatePath() string {
	return StatePath(p.Root)
}

// ChangeTriggered returns the jobs whose trigger rules accept the change-set.
// Jobs without trigger rules never start automatically.
func (p *Pipeline) ChangeTriggered(changed []string) []InternedString {
	var ids []InternedString
	for job := range p.Graph.Walk() {
		if job.Triggers != nil && job.Triggers.MatchesAny(changed) {
			ids = append(ids, job.ID)
		}
	}
	return ids
}
