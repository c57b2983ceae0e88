package cas_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/cas"
	"go.trai.ch/trellis/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func paths(artifacts []domain.Artifact) []string {
	out := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, a.Path)
	}
	slices.Sort(out)
	return out
}

func TestStore_PublishDirectoryRule(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	writeFile(t, src, "build/maven/org/lib.jar", "jar")
	writeFile(t, src, "build/maven/org/lib.tmp", "tmp")
	writeFile(t, src, "build/other/x", "x")

	rules, err := domain.ParseArtifactRules("+:build/maven=>maven\n-:**/*.tmp")
	require.NoError(t, err)

	artifacts, err := cas.NewStore().Publish(root, "run-1", src, rules)
	require.NoError(t, err)
	assert.Equal(t, []string{"maven/org/lib.jar"}, paths(artifacts))
	assert.Equal(t, int64(3), artifacts[0].Size)
	assert.NotEmpty(t, artifacts[0].Digest)

	data, err := os.ReadFile(filepath.Join(domain.ArtifactsPath(root, "run-1"), "maven", "org", "lib.jar"))
	require.NoError(t, err)
	assert.Equal(t, "jar", string(data))
}

func TestStore_PublishArchive(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	writeFile(t, src, "dist/a.txt", "a")
	writeFile(t, src, "dist/sub/b.txt", "b")

	rules, err := domain.ParseArtifactRules("+:dist/**/*.txt=>docs.zip")
	require.NoError(t, err)

	artifacts, err := cas.NewStore().Publish(root, "run-1", src, rules)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "docs.zip", artifacts[0].Path)

	zr, err := zip.OpenReader(filepath.Join(domain.ArtifactsPath(root, "run-1"), "docs.zip"))
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, names)
}

func TestStore_PublishNothingMatches(t *testing.T) {
	rules, err := domain.ParseArtifactRules("+:out=>bin")
	require.NoError(t, err)

	artifacts, err := cas.NewStore().Publish(t.TempDir(), "run-1", t.TempDir(), rules)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestStore_RetrieveIntoCheckout(t *testing.T) {
	root := t.TempDir()
	src := t.TempDir()
	writeFile(t, src, "build/maven/org/lib.jar", "jar")
	writeFile(t, src, "build/maven/org/lib.pom", "pom")

	store := cas.NewStore()
	publish, err := domain.ParseArtifactRules("+:build/maven=>maven")
	require.NoError(t, err)
	_, err = store.Publish(root, "run-1", src, publish)
	require.NoError(t, err)

	checkout := t.TempDir()
	retrieve, err := domain.ParseArtifactRules("+:maven/**/*.jar=>build/maven")
	require.NoError(t, err)
	artifacts, err := store.Retrieve(root, "run-1", retrieve, checkout)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/maven/org/lib.jar"}, paths(artifacts))

	_, err = os.Stat(filepath.Join(checkout, "build", "maven", "org", "lib.jar"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(checkout, "build", "maven", "org", "lib.pom"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_RetrieveUnknownRun(t *testing.T) {
	rules, err := domain.ParseArtifactRules("+:**=>.")
	require.NoError(t, err)

	artifacts, err := cas.NewStore().Retrieve(t.TempDir(), "never", rules, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}
