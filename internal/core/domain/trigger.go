package domain

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/zerr"
)

// TriggerRule includes or excludes changed paths matching Pattern.
type TriggerRule struct {
	Include bool
	Pattern string
}

// TriggerRules decide whether a change-set starts an automatic run.
type TriggerRules struct {
	Rules []TriggerRule
}

// ParseTriggerRules parses newline separated "+:<glob>" and "-:<glob>" rules.
// When only exclusion rules are given, an implicit "+:**" is placed first.
func ParseTriggerRules(text string) (*TriggerRules, error) {
	var rules []TriggerRule
	hasInclude := false
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var r TriggerRule
		switch {
		case strings.HasPrefix(line, "+:"):
			r.Include = true
		case strings.HasPrefix(line, "-:"):
		default:
			return nil, zerr.With(ErrInvalidTriggerRule, "rule", line)
		}
		r.Pattern = strings.TrimSpace(line[2:])
		if r.Pattern == "" || !doublestar.ValidatePattern(r.Pattern) {
			return nil, zerr.With(ErrInvalidTriggerRule, "rule", line)
		}
		hasInclude = hasInclude || r.Include
		rules = append(rules, r)
	}

	if !hasInclude {
		rules = append([]TriggerRule{{Include: true, Pattern: "**"}}, rules...)
	}
	return &TriggerRules{Rules: rules}, nil
}

// Matches reports whether a single changed path triggers. The last matching rule wins.
func (t *TriggerRules) Matches(changed string) bool {
	if t == nil {
		return true
	}
	p := normalizePath(changed)
	matched := false
	for _, r := range t.Rules {
		if r.match(p) {
			matched = r.Include
		}
	}
	return matched
}

// MatchesAny reports whether at least one changed path triggers.
// An empty change-set never triggers.
func (t *TriggerRules) MatchesAny(changed []string) bool {
	for _, p := range changed {
		if t.Matches(p) {
			return true
		}
	}
	return false
}

func (r TriggerRule) match(p string) bool {
	if !strings.Contains(r.Pattern, "/") {
		ok, _ := doublestar.Match(r.Pattern, path.Base(p))
		return ok
	}
	ok, _ := doublestar.Match(r.Pattern, p)
	return ok
}

func normalizePath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	return path.Clean(p)
}
