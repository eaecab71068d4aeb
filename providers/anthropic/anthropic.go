// Package anthropic provides the Anthropic Claude adapter. It transforms the
// unified chat format to and from Anthropic's Messages API.
package anthropic

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/pkg/provider"
	"github.com/osate/dispatch/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "anthropic"

	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the anthropic-version header value.
	DefaultAPIVersion = "2023-06-01"

	// DefaultMaxTokens applies when the request does not set max_tokens;
	// the Messages API requires the field.
	DefaultMaxTokens = 512
)

// DefaultModels lists the known Claude models. Anthropic exposes no public
// model-listing endpoint.
var DefaultModels = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-haiku-20240307",
}

// Provider implements the Anthropic Messages API adapter.
type Provider struct {
	baseURL    string
	apiVersion string
	models     []string
	headers    map[string]string
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint. Empty values are ignored.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithModels sets the supported model list.
func WithModels(models ...string) Option {
	return func(p *Provider) {
		if len(models) > 0 {
			p.models = models
		}
	}
}

// WithAPIVersion overrides the anthropic-version header.
func WithAPIVersion(version string) Option {
	return func(p *Provider) {
		if version != "" {
			p.apiVersion = version
		}
	}
}

// New creates a new Anthropic provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		models:     DefaultModels,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Provider, error) {
	p := New(
		WithBaseURL(cfg.BaseURL),
		WithModels(cfg.Models...),
	)
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// SupportedModels returns the list of supported models.
func (p *Provider) SupportedModels() []string {
	return p.models
}

// anthropicRequest is the Messages API request format.
type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the Messages API success response format.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BuildRequest creates a Messages API HTTP request authenticated with the
// given key.
func (p *Provider) BuildRequest(ctx context.Context, req *types.ChatRequest, apiKey string) (*http.Request, error) {
	aReq := anthropicRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	if aReq.MaxTokens <= 0 {
		aReq.MaxTokens = DefaultMaxTokens
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			aReq.System = msg.Content
			continue
		}
		aReq.Messages = append(aReq.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(aReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.baseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// ParseResponse transforms a Messages API response into the unified format.
func (p *Provider) ParseResponse(resp *http.Response) (*types.ChatResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var aResp anthropicResponse
	if err := json.Unmarshal(body, &aResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var text string
	for _, block := range aResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &types.ChatResponse{
		ID:     aResp.ID,
		Object: "chat.completion",
		Model:  aResp.Model,
		Choices: []types.Choice{{
			Message:      types.ChatMessage{Role: "assistant", Content: text},
			FinishReason: mapStopReason(aResp.StopReason),
		}},
		Usage: &types.Usage{
			PromptTokens:     aResp.Usage.InputTokens,
			CompletionTokens: aResp.Usage.OutputTokens,
			TotalTokens:      aResp.Usage.InputTokens + aResp.Usage.OutputTokens,
		},
	}, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// MapError converts an Anthropic error response to a standardized error.
// 529 ("overloaded_error") is treated like 503: transient.
func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewAuthenticationError(ProviderName, "", message)
	case http.StatusTooManyRequests:
		return errors.NewRateLimitError(ProviderName, "", message)
	case http.StatusBadRequest:
		return errors.NewInvalidRequestError(ProviderName, "", message)
	case http.StatusNotFound:
		return errors.NewNotFoundError(ProviderName, "", message)
	case http.StatusServiceUnavailable, 529:
		return errors.NewServiceUnavailableError(ProviderName, "", message)
	default:
		return errors.NewInternalError(ProviderName, "", message)
	}
}
