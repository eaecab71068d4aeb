// Package types defines core data structures for provider requests, responses,
// and batch dispatch records. The wire types are compatible with OpenAI's Chat
// Completion API format, which every supported provider either speaks natively
// or is adapted to.
package types

// ChatRequest represents an OpenAI-compatible chat completion request.
// It serves as the unified input format for all provider adapters.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	User        string        `json:"user,omitempty"`
}

// ChatMessage represents a single message in the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewPromptRequest builds the single-turn user request every dispatch run
// issues: one user message carrying the prompt text.
func NewPromptRequest(model, prompt string) *ChatRequest {
	return &ChatRequest{
		Model:    model,
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	}
}
