// Package gemini provides the Google Gemini adapter. It transforms the
// unified chat format to and from Gemini's generateContent API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/pkg/provider"
	"github.com/osate/dispatch/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "gemini"

	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "v1beta"
)

// DefaultModels lists the known Gemini chat models.
var DefaultModels = []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-pro"}

// Provider implements the Gemini generateContent adapter.
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

// New creates a new Gemini provider with the given options.
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

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// BuildRequest creates a generateContent HTTP request. Gemini authenticates
// with the x-goog-api-key header rather than a bearer token.
func (p *Provider) BuildRequest(ctx context.Context, req *types.ChatRequest, apiKey string) (*http.Request, error) {
	gReq := p.transformRequest(req)
	body, err := json.Marshal(gReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base, err := url.Parse(strings.TrimSuffix(p.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	base.Path = base.Path + "/" + p.apiVersion + "/models/" + url.PathEscape(req.Model) + ":generateContent"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) transformRequest(req *types.ChatRequest) *geminiRequest {
	gReq := &geminiRequest{GenerationConfig: &generationConfig{}}
	if req.MaxTokens > 0 {
		gReq.GenerationConfig.MaxOutputTokens = req.MaxTokens
	}
	gReq.GenerationConfig.Temperature = req.Temperature
	gReq.GenerationConfig.TopP = req.TopP
	gReq.GenerationConfig.StopSequences = req.Stop

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			continue
		}
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		gReq.Contents = append(gReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return gReq
}

// ParseResponse transforms a generateContent response into the unified format.
func (p *Provider) ParseResponse(resp *http.Response) (*types.ChatResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var gResp geminiResponse
	if err := json.Unmarshal(body, &gResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	choices := make([]types.Choice, 0, len(gResp.Candidates))
	for i, c := range gResp.Candidates {
		var text string
		for _, part := range c.Content.Parts {
			text += part.Text
		}
		choices = append(choices, types.Choice{
			Index:        i,
			Message:      types.ChatMessage{Role: "assistant", Content: text},
			FinishReason: mapFinishReason(c.FinishReason),
		})
	}

	chatResp := &types.ChatResponse{Object: "chat.completion", Choices: choices}
	if gResp.UsageMetadata != nil {
		chatResp.Usage = &types.Usage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gResp.UsageMetadata.TotalTokenCount,
		}
	}
	return chatResp, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return reason
	}
}

// MapError converts a Gemini error response to a standardized error.
func (p *Provider) MapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
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
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return errors.NewServiceUnavailableError(ProviderName, "", message)
	default:
		return errors.NewInternalError(ProviderName, "", message)
	}
}
