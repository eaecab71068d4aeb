// Package env resolves API-key references against process environment
// variables.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Source resolves references of the form "NAME" or "NAME|FALLBACK|...".
// The first variable in the chain that is set to a non-blank value wins,
// so a config can name a provider-specific variable with a generic one
// as fallback.
type Source struct{}

// New creates an environment-backed key source.
func New() *Source {
	return &Source{}
}

// Fetch looks the reference up in the environment. A set-but-blank
// variable counts as unset.
func (s *Source) Fetch(_ context.Context, ref string) (string, error) {
	for _, name := range strings.Split(ref, "|") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val, nil
		}
	}
	return "", fmt.Errorf("no API key set in environment for %q", ref)
}

// Close is a no-op; the environment holds no connections.
func (s *Source) Close() error {
	return nil
}
