package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/core/domain"
)

func TestParamResolver_BuildNumber(t *testing.T) {
	configure := &domain.Job{
		ID:                 id("Deploy_Configure"),
		BuildNumberPattern: "0.1.0-dev-%build.counter%",
		Params: map[string]domain.Param{
			"releaseVersion": {Value: "%build.number%"},
			"bintray-key":    {Value: "credentialsJSON:9a48", Secret: true},
		},
	}

	r := domain.NewParamResolver(nil, configure, 7, nil)
	bn, err := r.BuildNumber()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0-dev-7", bn)

	params, err := r.ResolveAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"releaseVersion": "0.1.0-dev-7"}, params)

	key, err := r.Resolve("bintray-key")
	require.NoError(t, err)
	assert.Equal(t, "credentialsJSON:9a48", key)
	assert.True(t, r.IsSecret("bintray-key"))
	assert.False(t, r.IsSecret("releaseVersion"))
}

func TestParamResolver_DependencyReference(t *testing.T) {
	upstream := map[string]*domain.Run{
		"Deploy_Configure": {BuildNumber: "0.1.0-dev-3", Counter: 3},
	}
	deploy := &domain.Job{
		ID:                 id("Deploy_Linux"),
		Platform:           "Linux",
		BuildNumberPattern: "%releaseVersion% (%build.counter%)",
		Params: map[string]domain.Param{
			"releaseVersion": {Value: "%dep.Deploy_Configure.build.number%"},
		},
	}

	r := domain.NewParamResolver(nil, deploy, 1, upstream)
	bn, err := r.BuildNumber()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0-dev-3 (1)", bn)

	cmd, err := r.Expand("gradle -PreleaseVersion=%releaseVersion% on %platform% for %job.id%")
	require.NoError(t, err)
	assert.Equal(t, "gradle -PreleaseVersion=0.1.0-dev-3 on Linux for Deploy_Linux", cmd)
}

func TestParamResolver_Errors(t *testing.T) {
	tests := []struct {
		name        string
		params      map[string]domain.Param
		pattern     string
		input       string
		errContains string
	}{
		{
			name:        "Unresolved",
			input:       "%missing%",
			errContains: "unresolved parameter reference",
		},
		{
			name:        "Unterminated",
			input:       "50%",
			errContains: "unterminated parameter reference",
		},
		{
			name:        "Cycle",
			params:      map[string]domain.Param{"a": {Value: "%b%"}, "b": {Value: "%a%"}},
			input:       "%a%",
			errContains: "parameter reference cycle",
		},
		{
			name:        "Cycle through build number",
			params:      map[string]domain.Param{"v": {Value: "%build.number%"}},
			pattern:     "%v%",
			input:       "%build.number%",
			errContains: "parameter reference cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &domain.Job{ID: id("J"), Params: tt.params, BuildNumberPattern: tt.pattern}
			_, err := domain.NewParamResolver(nil, j, 1, nil).Expand(tt.input)
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestParamResolver_LiteralPercentAndOverrides(t *testing.T) {
	global := map[string]domain.Param{
		"jdk":     {Value: "global"},
		"env.JDK": {Value: "/opt/%jdk%"},
	}
	j := &domain.Job{ID: id("J"), Params: map[string]domain.Param{"jdk": {Value: "17"}}}

	r := domain.NewParamResolver(global, j, 1, nil)
	out, err := r.Expand("100%% of %jdk%")
	require.NoError(t, err)
	assert.Equal(t, "100% of 17", out)

	env, err := r.Environment()
	require.NoError(t, err)
	assert.Equal(t, []string{"JDK=/opt/17"}, env)
}

func TestParamResolver_Fallback(t *testing.T) {
	j := &domain.Job{ID: id("J")}
	r := domain.NewParamResolver(nil, j, 1, nil).WithFallback(func(name string) (string, bool) {
		if name == "os.name" {
			return "Linux", true
		}
		return "", false
	})

	out, err := r.Expand("%os.name%")
	require.NoError(t, err)
	assert.Equal(t, "Linux", out)
}

func TestParamResolver_EmptyPatternUsesCounter(t *testing.T) {
	r := domain.NewParamResolver(nil, &domain.Job{ID: id("J")}, 42, nil)
	bn, err := r.BuildNumber()
	require.NoError(t, err)
	assert.Equal(t, "42", bn)
}
