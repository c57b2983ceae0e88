package domain

import (
	"sync"

	"go.trai.ch/zerr"
)

// VersionParameter is the release version, bound once per release attempt
// and read-only afterwards.
type VersionParameter struct {
	name  string
	mu    sync.RWMutex
	value string
	bound bool
}

// NewVersionParameter creates an unbound version parameter.
func NewVersionParameter(name string) *VersionParameter {
	return &VersionParameter{name: name}
}

// Name returns the parameter name.
func (v *VersionParameter) Name() string {
	return v.name
}

// Bind sets the value. Binding twice is an error.
func (v *VersionParameter) Bind(value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bound {
		return zerr.With(ErrVersionAlreadyResolved, "param", v.name)
	}
	v.value = value
	v.bound = true
	return nil
}

// Value returns the bound value.
func (v *VersionParameter) Value() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.bound {
		return "", zerr.With(ErrVersionNotResolved, "param", v.name)
	}
	return v.value, nil
}
