// Package config provides core configuration structures and utilities for the
// pipeline. This file defines an interface and implementation for expanding
// environment variable placeholders within configuration data.
package config

import (
	"os"
)

// EnvironmentExpander provides functionality to expand environment variable
// placeholders within an input byte slice.
type EnvironmentExpander interface {
	// Expand takes a byte slice as input, expands any environment variable
	// placeholders (e.g., ${VAR} or $VAR) within it, and returns the expanded
	// byte slice.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander implements EnvironmentExpander using the standard
// library's os.ExpandEnv.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates and returns a new OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

// Expand replaces ${VAR} or $VAR in the input with the value of the
// environment variable VAR. Unset variables expand to the empty string.
// os.ExpandEnv itself never fails, so the returned error is always nil.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return []byte(os.ExpandEnv(string(input))), nil
}
