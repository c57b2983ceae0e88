package domain

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// Built-in parameter names.
const (
	ParamBuildNumber  = "build.number"
	ParamBuildCounter = "build.counter"
	ParamPlatform     = "platform"
	ParamJobID        = "job.id"

	// EnvParamPrefix marks parameters exported to steps as environment variables.
	EnvParamPrefix = "env."
	// DepParamPrefix reads a parameter of an upstream run: dep.<jobID>.<param>.
	DepParamPrefix = "dep."
)

func formatCounter(c int64) string {
	return strconv.FormatInt(c, 10)
}

// ParamResolver expands %name% references for one run. Values are resolved
// lazily and memoized; reference loops are reported as ErrParameterCycle.
type ParamResolver struct {
	params    map[string]Param
	builtins  map[string]string
	upstream  map[string]*Run
	pattern   string
	fallback  func(string) (string, bool)
	resolved  map[string]string
	resolving map[string]bool
}

// NewParamResolver builds a resolver for a job run with the given counter.
// Global params are overridden by job params.
func NewParamResolver(global map[string]Param, job *Job, counter int64, upstream map[string]*Run) *ParamResolver {
	params := make(map[string]Param, len(global)+len(job.Params))
	maps.Copy(params, global)
	maps.Copy(params, job.Params)

	return &ParamResolver{
		params: params,
		builtins: map[string]string{
			ParamBuildCounter: formatCounter(counter),
			ParamPlatform:     job.Platform,
			ParamJobID:        job.ID.String(),
		},
		upstream:  upstream,
		pattern:   job.BuildNumberPattern,
		resolved:  make(map[string]string),
		resolving: make(map[string]bool),
	}
}

// WithFallback sets a lookup consulted for names that are not parameters,
// such as the parameters reported by the leased agent.
func (r *ParamResolver) WithFallback(fn func(string) (string, bool)) *ParamResolver {
	r.fallback = fn
	return r
}

// WithOverrides replaces parameters after job parameters were applied.
func (r *ParamResolver) WithOverrides(overrides map[string]Param) *ParamResolver {
	maps.Copy(r.params, overrides)
	return r
}

// BuildNumber renders the build number pattern. An empty pattern yields the counter.
func (r *ParamResolver) BuildNumber() (string, error) {
	return r.Resolve(ParamBuildNumber)
}

// Resolve returns the fully expanded value of a parameter.
// Secret parameters resolve to their opaque reference.
func (r *ParamResolver) Resolve(name string) (string, error) {
	if v, ok := r.resolved[name]; ok {
		return v, nil
	}
	if r.resolving[name] {
		return "", zerr.With(ErrParameterCycle, "param", name)
	}

	raw, literal, err := r.raw(name)
	if err != nil {
		return "", err
	}

	v := raw
	if !literal {
		r.resolving[name] = true
		v, err = r.Expand(raw)
		delete(r.resolving, name)
		if err != nil {
			return "", zerr.With(err, "param", name)
		}
	}

	r.resolved[name] = v
	return v, nil
}

// raw returns the unexpanded value of name. Literal values are inserted as is.
func (r *ParamResolver) raw(name string) (value string, literal bool, err error) {
	if name == ParamBuildNumber {
		if r.pattern == "" {
			return r.builtins[ParamBuildCounter], true, nil
		}
		return r.pattern, false, nil
	}
	if v, ok := r.builtins[name]; ok {
		return v, true, nil
	}
	if p, ok := r.params[name]; ok {
		return p.Value, p.Secret, nil
	}
	if rest, ok := strings.CutPrefix(name, DepParamPrefix); ok {
		if v, found := r.depParam(rest); found {
			return v, true, nil
		}
	}
	if r.fallback != nil {
		if v, ok := r.fallback(name); ok {
			return v, true, nil
		}
	}
	return "", false, zerr.With(ErrUnresolvedParameter, "param", name)
}

// depParam looks up "<jobID>.<param>". Job ids never contain dots.
func (r *ParamResolver) depParam(ref string) (string, bool) {
	jobID, param, ok := strings.Cut(ref, ".")
	if !ok {
		return "", false
	}
	run, ok := r.upstream[jobID]
	if !ok || run == nil {
		return "", false
	}
	return run.Param(param)
}

// Expand substitutes every %name% reference in s. "%%" yields a literal percent sign.
func (r *ParamResolver) Expand(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}

	var b strings.Builder
	for {
		i := strings.IndexByte(s, '%')
		if i < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:i])
		s = s[i+1:]

		j := strings.IndexByte(s, '%')
		if j < 0 {
			return "", zerr.With(ErrUnterminatedReference, "text", s)
		}
		if j == 0 {
			b.WriteByte('%')
			s = s[1:]
			continue
		}

		v, err := r.Resolve(s[:j])
		if err != nil {
			return "", err
		}
		b.WriteString(v)
		s = s[j+1:]
	}
}

// ResolveAll resolves every declared parameter. Secret values are left out
// so the result can be recorded on a run.
func (r *ParamResolver) ResolveAll() (map[string]string, error) {
	out := make(map[string]string, len(r.params))
	for _, name := range slices.Sorted(maps.Keys(r.params)) {
		v, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		if !r.IsSecret(name) {
			out[name] = v
		}
	}
	return out, nil
}

// Environment returns the env.* parameters as KEY=VALUE pairs, secrets included
// as references.
func (r *ParamResolver) Environment() ([]string, error) {
	var env []string
	for _, name := range slices.Sorted(maps.Keys(r.params)) {
		key, ok := strings.CutPrefix(name, EnvParamPrefix)
		if !ok || key == "" {
			continue
		}
		v, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		env = append(env, key+"="+v)
	}
	return env, nil
}

// IsSecret reports whether name is a secret parameter.
func (r *ParamResolver) IsSecret(name string) bool {
	return r.params[name].Secret
}
