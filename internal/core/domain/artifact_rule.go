package domain

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/zerr"
)

const archiveExt = ".zip"

// ArtifactRule maps files matching Source to Target inside the artifact store.
// Exclusion rules only carry a Source pattern.
type ArtifactRule struct {
	Include bool
	Source  string
	Target  string
}

// ParseArtifactRules parses newline separated rules. Blank lines are skipped.
func ParseArtifactRules(text string) ([]ArtifactRule, error) {
	var rules []ArtifactRule
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r, err := ParseArtifactRule(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ParseArtifactRule parses one rule of the form "+:src=>dst", "src=>dst" or "-:src".
func ParseArtifactRule(line string) (ArtifactRule, error) {
	r := ArtifactRule{Include: true}
	switch {
	case strings.HasPrefix(line, "+:"):
		line = line[2:]
	case strings.HasPrefix(line, "-:"):
		r.Include = false
		line = line[2:]
	}

	src, dst, hasTarget := strings.Cut(line, "=>")
	r.Source = path.Clean(strings.TrimSpace(src))
	if hasTarget {
		r.Target = strings.TrimSpace(dst)
		if r.Target != "" {
			r.Target = path.Clean(r.Target)
		}
	}

	if strings.TrimSpace(src) == "" || strings.HasPrefix(r.Source, "../") || r.Source == ".." {
		return ArtifactRule{}, zerr.With(ErrInvalidArtifactRule, "rule", line)
	}
	if !doublestar.ValidatePattern(r.Source) {
		return ArtifactRule{}, zerr.With(ErrInvalidArtifactRule, "rule", line)
	}
	if strings.HasPrefix(r.Target, "..") || path.IsAbs(r.Target) {
		return ArtifactRule{}, zerr.With(ErrInvalidArtifactRule, "rule", line)
	}
	return r, nil
}

// IsArchive reports whether matched files are packed into a zip archive.
func (r ArtifactRule) IsArchive() bool {
	return strings.HasSuffix(strings.ToLower(r.Target), archiveExt)
}

// Split returns the static directory prefix of the source and the remaining glob.
// A source without wildcards is treated as a directory whose whole tree matches,
// or as a single file when it names one.
func (r ArtifactRule) Split() (base, pattern string) {
	if !hasMeta(r.Source) {
		return r.Source, "**"
	}
	return doublestar.SplitPattern(r.Source)
}

// Matches reports whether a slash separated relative path matches the source pattern.
func (r ArtifactRule) Matches(rel string) bool {
	if ok, _ := doublestar.Match(r.Source, rel); ok {
		return true
	}
	if !hasMeta(r.Source) {
		return rel == r.Source || strings.HasPrefix(rel, r.Source+"/")
	}
	return false
}

// Destination maps a matched path to its location under the rule target.
func (r ArtifactRule) Destination(rel string) string {
	base, _ := r.Split()
	sub := rel
	switch {
	case rel == base:
		sub = path.Base(rel)
	case base != "." && strings.HasPrefix(rel, base+"/"):
		sub = strings.TrimPrefix(rel, base+"/")
	}
	if r.Target == "" || r.IsArchive() {
		return sub
	}
	return path.Join(r.Target, sub)
}

// String renders the rule in its configuration form.
func (r ArtifactRule) String() string {
	if !r.Include {
		return "-:" + r.Source
	}
	if r.Target == "" {
		return "+:" + r.Source
	}
	return "+:" + r.Source + "=>" + r.Target
}

// Excluded reports whether any exclusion rule matches rel.
func Excluded(rules []ArtifactRule, rel string) bool {
	for _, r := range rules {
		if !r.Include && r.Matches(rel) {
			return true
		}
	}
	return false
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{\\")
}
