package fs

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// FileDigest returns the hex XXHash of a file's content and its size.
func FileDigest(path string) (digest string, size int64, err error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return "", 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	return ReaderDigest(f)
}

// ReaderDigest hashes r until EOF.
func ReaderDigest(r io.Reader) (digest string, size int64, err error) {
	hasher := xxhash.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", 0, zerr.Wrap(err, "failed to hash content")
	}
	return fmt.Sprintf("%016x", hasher.Sum64()), n, nil
}

// Digest returns the hex XXHash of data.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
