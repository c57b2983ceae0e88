package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/core/domain"
)

func TestParseArtifactRules(t *testing.T) {
	rules, err := domain.ParseArtifactRules(`
		+:build/maven=>maven
		dist/*.zip=>release.zip
		-:build/maven/**/*.tmp
	`)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, domain.ArtifactRule{Include: true, Source: "build/maven", Target: "maven"}, rules[0])
	assert.True(t, rules[1].IsArchive())
	assert.False(t, rules[2].Include)
	assert.Equal(t, "-:build/maven/**/*.tmp", rules[2].String())
}

func TestParseArtifactRule_Invalid(t *testing.T) {
	for _, line := range []string{"+:=>maven", "../outside=>x", "build/[=>x", "build=>../up"} {
		t.Run(line, func(t *testing.T) {
			_, err := domain.ParseArtifactRule(line)
			require.ErrorContains(t, err, "invalid artifact rule")
		})
	}
}

func TestArtifactRule_Mapping(t *testing.T) {
	tests := []struct {
		rule    string
		rel     string
		matches bool
		dest    string
	}{
		{rule: "+:build/maven=>maven", rel: "build/maven/org/lib.jar", matches: true, dest: "maven/org/lib.jar"},
		{rule: "+:build/maven=>maven", rel: "build/other/lib.jar", matches: false},
		{rule: "+:out/app.bin=>bin", rel: "out/app.bin", matches: true, dest: "bin/app.bin"},
		{rule: "+:**/*.jar=>libs", rel: "a/b/c.jar", matches: true, dest: "libs/a/b/c.jar"},
		{rule: "+:dist/*.txt=>docs.zip", rel: "dist/readme.txt", matches: true, dest: "readme.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.rule+" "+tt.rel, func(t *testing.T) {
			r, err := domain.ParseArtifactRule(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, r.Matches(tt.rel))
			if tt.matches {
				assert.Equal(t, tt.dest, r.Destination(tt.rel))
			}
		})
	}
}

func TestTriggerRules(t *testing.T) {
	rules, err := domain.ParseTriggerRules("-:*.md\n-:.gitignore")
	require.NoError(t, err)

	tests := []struct {
		name    string
		changed []string
		want    bool
	}{
		{name: "docs only", changed: []string{"README.md", "docs/guide.md", ".gitignore"}, want: false},
		{name: "mixed", changed: []string{"README.md", "src/main.kt"}, want: true},
		{name: "source", changed: []string{"core/build.gradle.kts"}, want: true},
		{name: "empty", changed: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.MatchesAny(tt.changed))
		})
	}
}

func TestTriggerRules_LastMatchWins(t *testing.T) {
	rules, err := domain.ParseTriggerRules("+:src/**\n-:src/generated/**\n+:src/generated/keep.go")
	require.NoError(t, err)

	assert.True(t, rules.Matches("src/a.go"))
	assert.False(t, rules.Matches("src/generated/b.go"))
	assert.True(t, rules.Matches("src/generated/keep.go"))
	assert.False(t, rules.Matches("docs/x.go"))
}

func TestTriggerRules_Invalid(t *testing.T) {
	_, err := domain.ParseTriggerRules("*.md")
	require.ErrorContains(t, err, "invalid trigger rule")
}

func TestRequirement(t *testing.T) {
	agent := &domain.Agent{Name: "linux-1", Params: map[string]string{
		domain.AgentOSParam:     "Linux",
		domain.AgentMemoryParam: "8192",
	}}

	mem, err := domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "6144")
	require.NoError(t, err)

	assert.True(t, agent.Satisfies([]domain.Requirement{domain.PlatformRequirement("Linux"), mem}))
	assert.False(t, agent.Satisfies([]domain.Requirement{domain.PlatformRequirement("Mac OS X")}))

	big, err := domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "16384")
	require.NoError(t, err)
	assert.False(t, agent.Satisfies([]domain.Requirement{big}))

	_, err = domain.NewRequirement(domain.AgentMemoryParam, "bigger", "1")
	require.ErrorContains(t, err, "invalid requirement")
	_, err = domain.NewRequirement(domain.AgentMemoryParam, "no-less-than", "lots")
	require.ErrorContains(t, err, "invalid requirement")
}

func TestParseFailureAction(t *testing.T) {
	a, err := domain.ParseFailureAction("FAIL_TO_START", domain.ActionIgnore)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionFailToStart, a)

	a, err = domain.ParseFailureAction("", domain.ActionAddProblem)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAddProblem, a)

	_, err = domain.ParseFailureAction("explode", domain.ActionIgnore)
	require.ErrorContains(t, err, "invalid failure action")

	assert.Greater(t, domain.ActionCancel.Rank(), domain.ActionFailToStart.Rank())
	assert.Greater(t, domain.ActionFailToStart.Rank(), domain.ActionAddProblem.Rank())
	assert.Greater(t, domain.ActionAddProblem.Rank(), domain.ActionIgnore.Rank())
}
