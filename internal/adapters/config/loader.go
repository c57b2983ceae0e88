// Package config provides the pipeline loader for trellis.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"time"

	"go.trai.ch/trellis/internal/adapters/fs"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// DefaultVersionParameter names the release version when the pipeline does not.
const DefaultVersionParameter = "releaseVersion"

var (
	validProjectNameRegex = regexp.MustCompile("^[a-zA-Z0-9_-]+$")
	validJobIDRegex       = regexp.MustCompile("^[a-zA-Z0-9_]+$")
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load finds trellis.yaml by walking up from cwd and returns the validated pipeline.
func (l *Loader) Load(cwd string) (*domain.Pipeline, error) {
	configPath, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // path is discovered from the working directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", configPath)
	}

	var file Pipelinefile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "path", configPath)
	}

	p, err := l.build(configPath, &file)
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	p.Revision = fs.Digest(data)
	return p, nil
}

// DiscoverRoot returns the directory holding trellis.yaml.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	configPath, err := l.findConfiguration(cwd)
	if err != nil {
		return "", err
	}
	return filepath.Dir(configPath), nil
}

func (l *Loader) findConfiguration(cwd string) (string, error) {
	currentDir, err := filepath.Abs(cwd)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrConfigNotFound.Error()), "cwd", cwd)
	}

	for {
		candidate := filepath.Join(currentDir, domain.PipelineFileName)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(domain.ErrConfigNotFound, "cwd", cwd)
}

func (l *Loader) build(configPath string, file *Pipelinefile) (*domain.Pipeline, error) {
	if file.Project != "" && !validProjectNameRegex.MatchString(file.Project) {
		return nil, zerr.With(domain.ErrInvalidProjectName, "project", file.Project)
	}

	timeout := domain.DefaultExecutionTimeout
	if file.Timeout != "" {
		d, err := time.ParseDuration(file.Timeout)
		if err != nil || d <= 0 {
			return nil, zerr.With(domain.ErrInvalidTimeout, "timeout", file.Timeout)
		}
		timeout = d
	}

	parallelism := file.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	root := resolveRoot(configPath, file.Root)

	agents := make([]domain.Agent, 0, len(file.Agents))
	for i, a := range file.Agents {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("agent-%d", i+1)
		}
		params := make(map[string]string, len(a.Params)+1)
		for k, v := range a.Params {
			params[k] = v
		}
		params[domain.AgentNameParam] = name
		agents = append(agents, domain.Agent{Name: name, Params: params})
	}
	if len(agents) == 0 {
		l.Logger.Warn("no agents declared, jobs run on the local machine")
	}

	expanded, err := expandJobs(file, root)
	if err != nil {
		return nil, err
	}

	g := domain.NewGraph()
	for _, inst := range expanded.ordered {
		if err := g.AddJob(inst.job); err != nil {
			return nil, err
		}
	}
	for _, inst := range expanded.ordered {
		if err := addEdges(g, expanded, inst); err != nil {
			return nil, zerr.With(err, "job", inst.job.ID.String())
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	release, err := buildRelease(file.Release, expanded)
	if err != nil {
		return nil, err
	}

	return &domain.Pipeline{
		Project:     file.Project,
		Version:     file.Version,
		Root:        root,
		Graph:       g,
		Agents:      agents,
		Params:      toParams(file.Params),
		Timeout:     timeout,
		Parallelism: parallelism,
		Release:     release,
	}, nil
}

func addEdges(g *domain.Graph, expanded *expansion, inst *instance) error {
	for _, dep := range inst.dto.DependsOn {
		upstream, err := expanded.resolve(dep.Job, inst.platform)
		if err != nil {
			return err
		}

		snapshot := dep.Snapshot
		if snapshot == nil && dep.Artifacts == "" {
			snapshot = &SnapshotDTO{}
		}

		for _, up := range upstream {
			if snapshot != nil {
				onFailure, err := domain.ParseFailureAction(snapshot.OnFailure, domain.ActionAddProblem)
				if err != nil {
					return err
				}
				onCancel, err := domain.ParseFailureAction(snapshot.OnCancel, domain.ActionAddProblem)
				if err != nil {
					return err
				}
				if err := g.AddEdge(domain.NewSnapshotEdge(inst.job.ID, up, onFailure, onCancel)); err != nil {
					return err
				}
			}
			if dep.Artifacts != "" {
				rules, err := domain.ParseArtifactRules(dep.Artifacts)
				if err != nil {
					return err
				}
				if err := g.AddEdge(domain.NewArtifactEdge(inst.job.ID, up, rules)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func buildRelease(dto *ReleaseDTO, expanded *expansion) (*domain.ReleaseConfig, error) {
	if dto == nil {
		return nil, nil
	}

	single := func(ref string) (domain.InternedString, error) {
		ids, err := expanded.resolve(ref, "")
		if err != nil {
			return domain.InternedString{}, err
		}
		if len(ids) != 1 {
			return domain.InternedString{}, zerr.With(domain.ErrAmbiguousJobReference, "job", ref)
		}
		return ids[0], nil
	}

	cfg := &domain.ReleaseConfig{VersionParameter: dto.VersionParameter}
	if cfg.VersionParameter == "" {
		cfg.VersionParameter = DefaultVersionParameter
	}

	var err error
	if cfg.Configure, err = single(dto.Configure); err != nil {
		return nil, zerr.With(err, "release", "configure")
	}
	if cfg.Publish, err = single(dto.Publish); err != nil {
		return nil, zerr.With(err, "release", "publish")
	}
	for _, ref := range dto.Deploy {
		ids, err := expanded.resolve(ref, "")
		if err != nil {
			return nil, zerr.With(err, "release", "deploy")
		}
		cfg.Deploys = append(cfg.Deploys, ids...)
	}
	slices.SortFunc(cfg.Deploys, domain.InternedString.Compare)
	cfg.Deploys = slices.Compact(cfg.Deploys)
	return cfg, nil
}

func toParams(dtos map[string]ParamDTO) map[string]domain.Param {
	if len(dtos) == 0 {
		return nil
	}
	params := make(map[string]domain.Param, len(dtos))
	for k, v := range dtos {
		params[k] = domain.Param{Value: v.Value, Secret: v.Secret}
	}
	return params
}

func resolveRoot(configPath, root string) string {
	configDir := filepath.Dir(configPath)
	if root == "" {
		return configDir
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(configDir, root)
}
