// Package secret resolves API-key references from configuration into secret
// values. References use URI schemes ("env://OPENROUTER_API_KEYS",
// "vault://secret/data/openrouter#keys"); unschemed values pass through as
// literals.
package secret

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Manager routes key references to registered sources by scheme.
type Manager struct {
	sources map[string]Source
	mu      sync.RWMutex
}

// NewManager creates a new secret manager.
func NewManager() *Manager {
	return &Manager{
		sources: make(map[string]Source),
	}
}

// Register binds a source to a scheme (e.g. "vault", "env").
func (m *Manager) Register(scheme string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[scheme] = src
}

// Get resolves one secret reference. References without a scheme are
// returned as-is, supporting inline literal keys.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	m.mu.RLock()
	src, found := m.sources[scheme]
	m.mu.RUnlock()

	if !found {
		return "", fmt.Errorf("no key source registered for scheme: %s", scheme)
	}
	return src.Fetch(ctx, path)
}

// ResolveKeys resolves a list of references into a flat key list. Each
// resolved value may itself be a comma-separated list (the environment
// convention for multi-key pools); entries are split and trimmed.
func (m *Manager) ResolveKeys(ctx context.Context, refs []string) ([]string, error) {
	var keys []string
	for _, ref := range refs {
		val, err := m.Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", redactRef(ref), err)
		}
		for _, k := range strings.Split(val, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// redactRef keeps scheme-addressed references readable in errors while never
// echoing a literal secret back.
func redactRef(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "<literal>"
}

// Close closes every registered source.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []string
	for scheme, src := range m.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", scheme, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close key sources: %s", strings.Join(errs, "; "))
	}
	return nil
}
