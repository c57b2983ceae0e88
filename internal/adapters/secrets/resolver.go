// Package secrets resolves opaque credential references at the execution boundary.
package secrets

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// ReferencePrefix starts every credential reference.
	ReferencePrefix = "credentialsJSON:"

	// EnvPrefix is prepended to the normalized reference id to find its value.
	EnvPrefix = "TRELLIS_CREDENTIAL_"

	// MaskText replaces revealed values in output.
	MaskText = "*******"
)

var referencePattern = regexp.MustCompile(`credentialsJSON:([A-Za-z0-9_-]*)`)

// Resolver implements ports.SecretResolver. Reference values are read from
// the process environment.
type Resolver struct {
	lookup func(string) (string, bool)
}

// NewResolver creates a resolver backed by os.LookupEnv.
func NewResolver() *Resolver {
	return &Resolver{lookup: os.LookupEnv}
}

// NewResolverWithLookup creates a resolver backed by lookup.
func NewResolverWithLookup(lookup func(string) (string, bool)) *Resolver {
	return &Resolver{lookup: lookup}
}

// EnvName returns the environment variable holding the value of reference id.
func EnvName(id string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
}

// Reveal replaces every credential reference in s.
func (r *Resolver) Reveal(s string) (string, []string, error) {
	if !strings.Contains(s, ReferencePrefix) {
		return s, nil, nil
	}

	var (
		values   []string
		firstErr error
	)
	out := referencePattern.ReplaceAllStringFunc(s, func(ref string) string {
		id := strings.TrimPrefix(ref, ReferencePrefix)
		if id == "" {
			if firstErr == nil {
				firstErr = zerr.With(domain.ErrInvalidSecretReference, "reference", ref)
			}
			return ref
		}
		v, ok := r.lookup(EnvName(id))
		if !ok {
			if firstErr == nil {
				firstErr = zerr.With(domain.ErrSecretNotFound, "reference", ref)
			}
			return ref
		}
		if v != "" {
			values = append(values, v)
		}
		return v
	})
	if firstErr != nil {
		return "", nil, firstErr
	}
	return out, values, nil
}

// Mask wraps w so that values never reach it, even when a value contains
// newlines or arrives split across writes. Close flushes the remainder.
func (r *Resolver) Mask(w io.Writer, values []string) io.WriteCloser {
	return newMaskWriter(w, values)
}

// maskWriter replaces revealed values in a byte stream. Output that could be
// the start of a value is held back until the value is complete or ruled
// out, so values spanning writes or lines are masked too.
type maskWriter struct {
	w      io.Writer
	values [][]byte
	buf    []byte
}

func newMaskWriter(w io.Writer, values []string) *maskWriter {
	m := &maskWriter{w: w}
	for _, v := range values {
		if v != "" {
			m.values = append(m.values, []byte(v))
		}
	}
	// Longer values win when one value starts with another.
	slices.SortFunc(m.values, func(a, b []byte) int { return len(b) - len(a) })
	return m
}

func (m *maskWriter) Write(p []byte) (int, error) {
	if len(m.values) == 0 {
		return m.w.Write(p)
	}

	m.buf = append(m.buf, p...)
	if err := m.flush(false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *maskWriter) Close() error {
	if len(m.values) == 0 || len(m.buf) == 0 {
		return nil
	}
	return m.flush(true)
}

// flush writes the masked buffer up to the first position where a value may
// still be completed by later writes. With final set, everything is written.
func (m *maskWriter) flush(final bool) error {
	var out bytes.Buffer
	i := 0
scan:
	for i < len(m.buf) {
		rest := m.buf[i:]
		for _, v := range m.values {
			if bytes.HasPrefix(rest, v) {
				out.WriteString(MaskText)
				i += len(v)
				continue scan
			}
		}
		if !final {
			for _, v := range m.values {
				if bytes.HasPrefix(v, rest) {
					break scan
				}
			}
		}
		out.WriteByte(m.buf[i])
		i++
	}

	m.buf = append(m.buf[:0], m.buf[i:]...)
	if out.Len() == 0 {
		return nil
	}
	_, err := m.w.Write(out.Bytes())
	return err
}
