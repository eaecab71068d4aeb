// Package providers provides a registry for the built-in provider adapters,
// allowing adapter creation from configuration.
package providers

import (
	"fmt"
	"sync"

	"github.com/osate/dispatch/pkg/provider"
	"github.com/osate/dispatch/providers/anthropic"
	"github.com/osate/dispatch/providers/gemini"
	"github.com/osate/dispatch/providers/openai"
	"github.com/osate/dispatch/providers/openrouter"
)

var (
	registry     = make(map[provider.Type]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a provider factory for the given type.
func Register(t provider.Type, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = factory
}

// Get returns the factory for the given provider type.
func Get(t provider.Type) (provider.Factory, bool) {
	RegisterBuiltins()
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[t]
	return f, ok
}

// Create creates a provider adapter from configuration.
func Create(cfg provider.Config) (provider.Provider, error) {
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (available: %v)", cfg.Type, List())
	}
	return factory(cfg)
}

// List returns all registered provider types.
func List() []provider.Type {
	RegisterBuiltins()
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]provider.Type, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins registers the built-in adapter factories. Called
// automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register(provider.TypeOpenAI, openai.NewFromConfig)
		Register(provider.TypeOpenRouter, openrouter.NewFromConfig)
		Register(provider.TypeAnthropic, anthropic.NewFromConfig)
		Register(provider.TypeGemini, gemini.NewFromConfig)
	})
}
