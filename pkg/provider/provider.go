// Package provider defines the adapter interface for upstream
// text-generation APIs. Each provider (OpenAI, OpenRouter, Anthropic, Gemini)
// implements this interface to handle request building, response parsing, and
// error mapping; credential selection stays with the dispatch client so a
// single adapter can serve a whole rotating key pool.
package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/osate/dispatch/pkg/types"
)

// Type identifies one of the supported upstream providers. The set is closed:
// provider selection happens once at configuration time, never by sniffing
// model-name prefixes at query time.
type Type string

const (
	TypeOpenAI     Type = "openai"
	TypeOpenRouter Type = "openrouter"
	TypeAnthropic  Type = "anthropic"
	TypeGemini     Type = "gemini"
)

// ParseType validates a provider type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeOpenAI, TypeOpenRouter, TypeAnthropic, TypeGemini:
		return t, nil
	default:
		return "", fmt.Errorf("unknown provider type: %q", s)
	}
}

// Provider defines the interface that all upstream adapters implement.
//
// BuildRequest receives the credential for this attempt: the dispatch client
// rotates keys between attempts, so adapters must not capture a fixed key at
// construction time.
type Provider interface {
	// Name returns the provider identifier (e.g. "openrouter").
	Name() string

	// SupportedModels returns the provider's known model identifiers.
	SupportedModels() []string

	// BuildRequest transforms a unified ChatRequest into a provider-specific
	// HTTP request authenticated with the given key.
	BuildRequest(ctx context.Context, req *types.ChatRequest, apiKey string) (*http.Request, error)

	// ParseResponse transforms a provider-specific success response into the
	// unified ChatResponse format.
	ParseResponse(resp *http.Response) (*types.ChatResponse, error)

	// MapError converts a non-2xx response into a standardized error.
	MapError(statusCode int, body []byte) error
}

// ModelLister is implemented by adapters that can fetch the live model list
// from the upstream. Best effort; used for preflight checks only.
type ModelLister interface {
	ListModels(ctx context.Context, apiKey string) ([]string, error)
}

// Config contains adapter construction parameters.
type Config struct {
	Type    Type
	BaseURL string
	Models  []string
	Headers map[string]string
}

// Factory creates provider adapters from configuration.
type Factory func(cfg Config) (Provider, error)
