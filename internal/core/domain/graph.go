// Package domain contains the core domain models of the build-matrix orchestrator.
package domain

import (
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Graph is a directed acyclic graph of jobs connected by typed edges.
// It is built once at load time and validated before execution.
type Graph struct {
	jobs           map[InternedString]*Job
	upstream       map[InternedString][]Edge
	dependents     map[InternedString][]InternedString
	executionOrder []InternedString
	validated      bool
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		jobs:       make(map[InternedString]*Job),
		upstream:   make(map[InternedString][]Edge),
		dependents: make(map[InternedString][]InternedString),
	}
}

// AddJob adds a job to the graph.
// It returns an error if a job with the same id already exists.
func (g *Graph) AddJob(j *Job) error {
	if _, exists := g.jobs[j.ID]; exists {
		return zerr.With(ErrJobAlreadyExists, "job_id", j.ID.String())
	}
	if j.IsComposite() && len(j.Steps) > 0 {
		return zerr.With(ErrCompositeHasSteps, "job_id", j.ID.String())
	}
	g.jobs[j.ID] = j
	g.validated = false
	return nil
}

// AddEdge connects two jobs that are already part of the graph.
func (g *Graph) AddEdge(e Edge) error {
	if e.Dependent == e.Upstream {
		return zerr.With(ErrSelfDependency, "job_id", e.Dependent.String())
	}
	if _, ok := g.jobs[e.Dependent]; !ok {
		return zerr.With(ErrJobNotFound, "job_id", e.Dependent.String())
	}
	if _, ok := g.jobs[e.Upstream]; !ok {
		err := zerr.With(ErrMissingDependency, "dependency", e.Upstream.String())
		return zerr.With(err, "job_id", e.Dependent.String())
	}

	if !slices.Contains(g.dependents[e.Upstream], e.Dependent) {
		g.dependents[e.Upstream] = append(g.dependents[e.Upstream], e.Dependent)
	}
	g.upstream[e.Dependent] = append(g.upstream[e.Dependent], e)
	g.validated = false
	return nil
}

// Validate checks for cycles using a depth-first topological sort and
// populates the execution order. Jobs are visited in id order so the
// resulting order is deterministic.
func (g *Graph) Validate() error {
	g.executionOrder = make([]InternedString, 0, len(g.jobs))
	visited := make(map[InternedString]int, len(g.jobs)) // 0: unvisited, 1: visiting, 2: visited
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		visited[u] = 1
		path = append(path, u)

		for _, up := range g.sortedUpstreamIDs(u) {
			switch visited[up] {
			case 1:
				return buildCycleError(path, up)
			case 0:
				if err := visit(up); err != nil {
					return err
				}
			}
		}

		visited[u] = 2
		path = path[:len(path)-1]
		g.executionOrder = append(g.executionOrder, u)
		return nil
	}

	for _, id := range g.sortedIDs() {
		if visited[id] == 0 {
			if err := visit(id); err != nil {
				g.executionOrder = nil
				return err
			}
		}
	}

	g.validated = true
	return nil
}

// Validated reports whether Validate succeeded since the last mutation.
func (g *Graph) Validated() bool {
	return g.validated
}

func buildCycleError(path []InternedString, dep InternedString) error {
	start := slices.Index(path, dep)
	names := make([]string, 0, len(path)-start+1)
	for _, n := range path[start:] {
		names = append(names, n.String())
	}
	names = append(names, dep.String())
	return zerr.With(ErrCycleDetected, "cycle", strings.Join(names, " -> "))
}

func (g *Graph) sortedIDs() []InternedString {
	ids := make([]InternedString, 0, len(g.jobs))
	for id := range g.jobs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, InternedString.Compare)
	return ids
}

func (g *Graph) sortedUpstreamIDs(id InternedString) []InternedString {
	var ids []InternedString
	for _, e := range g.upstream[id] {
		if !slices.Contains(ids, e.Upstream) {
			ids = append(ids, e.Upstream)
		}
	}
	slices.SortFunc(ids, InternedString.Compare)
	return ids
}

// Walk returns an iterator that yields jobs in execution order (upstream first).
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[*Job] {
	return func(yield func(*Job) bool) {
		for _, id := range g.executionOrder {
			if !yield(g.jobs[id]) {
				return
			}
		}
	}
}

// Job returns the job with the given id.
func (g *Graph) Job(id InternedString) (*Job, bool) {
	j, ok := g.jobs[id]
	return j, ok
}

// JobCount returns the number of jobs in the graph.
func (g *Graph) JobCount() int {
	return len(g.jobs)
}

// Upstream returns the incoming edges of a job.
func (g *Graph) Upstream(id InternedString) []Edge {
	return g.upstream[id]
}

// UpstreamIDs returns the distinct jobs a job depends on.
func (g *Graph) UpstreamIDs(id InternedString) []InternedString {
	return g.sortedUpstreamIDs(id)
}

// Dependents returns the jobs that depend directly on id.
func (g *Graph) Dependents(id InternedString) []InternedString {
	return g.dependents[id]
}

// Closure returns the targets plus every job they transitively depend on,
// in execution order. The walk stops at jobs for which done reports true;
// those jobs are left out. A nil done follows every edge.
func (g *Graph) Closure(targets []InternedString, done func(InternedString) bool) ([]InternedString, error) {
	need := make(map[InternedString]bool)
	var mark func(id InternedString)
	mark = func(id InternedString) {
		if need[id] || (done != nil && done(id)) {
			return
		}
		need[id] = true
		for _, up := range g.sortedUpstreamIDs(id) {
			mark(up)
		}
	}

	for _, t := range targets {
		if _, ok := g.jobs[t]; !ok {
			return nil, zerr.With(ErrJobNotFound, "job_id", t.String())
		}
		mark(t)
	}

	out := make([]InternedString, 0, len(need))
	for _, id := range g.executionOrder {
		if need[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
