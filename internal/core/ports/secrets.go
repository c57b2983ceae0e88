package ports

import "io"

// SecretResolver turns opaque credential references into plaintext at the
// execution boundary.
//
//go:generate mockgen -source=secrets.go -destination=mocks/mock_secrets.go -package=mocks
type SecretResolver interface {
	// Reveal replaces every credential reference in s with its value and
	// returns the revealed values so they can be masked.
	Reveal(s string) (string, []string, error)

	// Mask wraps w so that any of the given values are replaced before writing.
	Mask(w io.Writer, values []string) io.WriteCloser
}
