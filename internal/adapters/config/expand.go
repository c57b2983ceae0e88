package config

import (
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

// instance is one concrete job produced from a job definition.
type instance struct {
	job      *domain.Job
	dto      *JobDTO
	platform string
}

// expansion holds the jobs produced by matrix expansion.
type expansion struct {
	ordered []*instance
	// byBase maps a definition name to its instances.
	byBase map[string][]*instance
	// byID maps concrete job ids to their instance.
	byID map[string]*instance
}

// expandJobs turns job definitions into concrete jobs. A definition naming a
// matrix yields "<name>_<platform>" per platform, using the first word of the
// platform so "Mac OS X" becomes "<name>_Mac".
func expandJobs(file *Pipelinefile, root string) (*expansion, error) {
	exp := &expansion{
		byBase: make(map[string][]*instance),
		byID:   make(map[string]*instance),
	}

	for _, name := range slices.Sorted(maps.Keys(file.Jobs)) {
		dto := file.Jobs[name]
		if dto == nil {
			dto = &JobDTO{}
		}
		if !validJobIDRegex.MatchString(name) {
			return nil, zerr.With(domain.ErrInvalidJobID, "job", name)
		}

		platforms := []string{dto.Platform}
		if dto.Matrix != "" {
			list, ok := file.Matrix[dto.Matrix]
			if !ok || len(list) == 0 {
				return nil, zerr.With(zerr.With(domain.ErrUnknownMatrix, "matrix", dto.Matrix), "job", name)
			}
			platforms = list
		}

		for _, platform := range platforms {
			id, display := name, dto.Name
			if display == "" {
				display = name
			}
			if dto.Matrix != "" {
				id = name + "_" + platformSuffix(platform)
				display += " (" + platform + ")"
			}
			if !validJobIDRegex.MatchString(id) {
				return nil, zerr.With(domain.ErrInvalidJobID, "job", id)
			}
			if _, dup := exp.byID[id]; dup {
				return nil, zerr.With(domain.ErrJobAlreadyExists, "job", id)
			}

			job, err := buildJob(id, display, platform, dto, &file.Defaults, root)
			if err != nil {
				return nil, zerr.With(err, "job", id)
			}

			inst := &instance{job: job, dto: dto, platform: platform}
			exp.ordered = append(exp.ordered, inst)
			exp.byBase[name] = append(exp.byBase[name], inst)
			exp.byID[id] = inst
		}
	}
	return exp, nil
}

// resolve maps a reference to concrete job ids. A matrix definition expands
// to the instance sharing the given platform when there is one, otherwise to
// all its instances.
func (e *expansion) resolve(ref, platform string) ([]domain.InternedString, error) {
	if insts, ok := e.byBase[ref]; ok {
		if platform != "" {
			for _, inst := range insts {
				if inst.platform == platform && inst.dto.Matrix != "" {
					return []domain.InternedString{inst.job.ID}, nil
				}
			}
		}
		ids := make([]domain.InternedString, len(insts))
		for i, inst := range insts {
			ids[i] = inst.job.ID
		}
		return ids, nil
	}
	if inst, ok := e.byID[ref]; ok {
		return []domain.InternedString{inst.job.ID}, nil
	}
	return nil, zerr.With(domain.ErrMissingDependency, "missing_dependency", ref)
}

func platformSuffix(platform string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(platform), " ")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, word)
}

func buildJob(id, display, platform string, dto *JobDTO, defaults *DefaultsDTO, root string) (*domain.Job, error) {
	kind, err := domain.ParseJobKind(dto.Type)
	if err != nil {
		return nil, err
	}

	reqs, err := buildRequirements(defaults.Requirements, dto.Requirements)
	if err != nil {
		return nil, err
	}
	if platform != "" {
		reqs = append(reqs, domain.PlatformRequirement(platform))
	}

	rules, err := domain.ParseArtifactRules(dto.Artifacts)
	if err != nil {
		return nil, err
	}

	var triggers *domain.TriggerRules
	if dto.Triggers != nil {
		if triggers, err = domain.ParseTriggerRules(*dto.Triggers); err != nil {
			return nil, err
		}
	}

	params := toParams(defaults.Params)
	if params == nil {
		params = make(map[string]domain.Param)
	}
	maps.Copy(params, toParams(dto.Params))

	fc := domain.DefaultFailureConditions()
	applyFailureConditions(&fc, defaults.FailureConditions)
	applyFailureConditions(&fc, dto.FailureConditions)

	return &domain.Job{
		ID:                 domain.NewInternedString(id),
		Name:               display,
		Kind:               kind,
		Platform:           platform,
		Steps:              buildSteps(dto.Steps, root),
		ArtifactRules:      rules,
		Requirements:       reqs,
		Params:             params,
		BuildNumberPattern: dto.BuildNumber,
		MaxConcurrency:     dto.MaxConcurrency,
		FailureConditions:  fc,
		Triggers:           triggers,
	}, nil
}

func buildRequirements(lists ...[]RequirementDTO) ([]domain.Requirement, error) {
	var reqs []domain.Requirement
	for _, list := range lists {
		for _, dto := range list {
			op := dto.Op
			if op == "" {
				op = string(domain.OpEquals)
			}
			r, err := domain.NewRequirement(dto.Param, op, dto.Value)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

func buildSteps(dtos []StepDTO, root string) []domain.Step {
	steps := make([]domain.Step, 0, len(dtos))
	for i, dto := range dtos {
		cmd := dto.Cmd
		if len(cmd) == 0 && dto.Script != "" {
			cmd = []string{"sh", "-c", dto.Script}
		}

		name := dto.Name
		if name == "" {
			name = "step " + strconv.Itoa(i+1)
		}

		workingDir := root
		if dto.WorkingDir != "" {
			workingDir = dto.WorkingDir
			if !filepath.IsAbs(workingDir) {
				workingDir = filepath.Join(root, workingDir)
			}
		}

		steps = append(steps, domain.Step{
			Name:        name,
			Command:     cmd,
			WorkingDir:  workingDir,
			Environment: dto.Environment,
		})
	}
	return steps
}

func applyFailureConditions(fc *domain.FailureConditions, dto FailureConditionsDTO) {
	if dto.NonZeroExitCode != nil {
		fc.NonZeroExitCode = *dto.NonZeroExitCode
	}
	if dto.ErrorMessage != nil {
		fc.ErrorMessage = *dto.ErrorMessage
	}
}
