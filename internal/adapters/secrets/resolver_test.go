package secrets_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/secrets"
)

func TestResolver_Reveal(t *testing.T) {
	t.Setenv("TRELLIS_CREDENTIAL_9A48_KEY", "s3cr3t")
	r := secrets.NewResolver()

	out, values, err := r.Reveal("-PbintrayApiKey=credentialsJSON:9a48-key")
	require.NoError(t, err)
	assert.Equal(t, "-PbintrayApiKey=s3cr3t", out)
	assert.Equal(t, []string{"s3cr3t"}, values)

	out, values, err = r.Reveal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
	assert.Empty(t, values)
}

func TestResolver_RevealErrors(t *testing.T) {
	r := secrets.NewResolverWithLookup(func(string) (string, bool) { return "", false })

	_, _, err := r.Reveal("credentialsJSON:missing")
	require.ErrorContains(t, err, "credential reference has no value")

	_, _, err = r.Reveal("credentialsJSON:")
	require.ErrorContains(t, err, "invalid credential reference")
}

func TestResolver_Mask(t *testing.T) {
	r := secrets.NewResolver()
	var buf bytes.Buffer

	w := r.Mask(&buf, []string{"hunter2"})
	_, err := io.WriteString(w, "token=hun")
	require.NoError(t, err)
	_, err = io.WriteString(w, "ter2\nno newline hunter2")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "token=*******\nno newline *******", buf.String())
}

func TestResolver_MaskMultilineValue(t *testing.T) {
	r := secrets.NewResolver()
	var buf bytes.Buffer
	key := "{\n  \"user\": \"deployer\",\n  \"key\": \"9a48\"\n}"

	w := r.Mask(&buf, []string{"9a48", key})
	for _, part := range []string{"creds: {\n  \"user\"", ": \"deployer\",\n", "  \"key\": \"9a48\"\n}", "\nkey again 9a", "48\n"} {
		_, err := io.WriteString(w, part)
		require.NoError(t, err)
		assert.NotContains(t, buf.String(), "deployer")
	}
	require.NoError(t, w.Close())

	assert.Equal(t, "creds: *******\nkey again *******\n", buf.String())
}

func TestResolver_MaskReleasesNearMisses(t *testing.T) {
	r := secrets.NewResolver()
	var buf bytes.Buffer

	w := r.Mask(&buf, []string{"hunter2"})
	_, err := io.WriteString(w, "hunt")
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = io.WriteString(w, "ing season\n")
	require.NoError(t, err)
	assert.Equal(t, "hunting season\n", buf.String())
	require.NoError(t, w.Close())
}

func TestResolver_MaskWithoutValuesPassesThrough(t *testing.T) {
	r := secrets.NewResolver()
	var buf bytes.Buffer

	w := r.Mask(&buf, nil)
	_, err := io.WriteString(w, "partial")
	require.NoError(t, err)
	assert.Equal(t, "partial", buf.String())
	require.NoError(t, w.Close())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "TRELLIS_CREDENTIAL_AB_CD", secrets.EnvName("ab-cd"))
}
