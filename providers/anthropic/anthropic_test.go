package anthropic

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/pkg/types"
)

func TestBuildRequest(t *testing.T) {
	p := New(WithBaseURL("https://example.test"))

	temp := 0.5
	req := &types.ChatRequest{
		Model: "claude-3-5-haiku-20241022",
		Messages: []types.ChatMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
		},
		MaxTokens:   100,
		Temperature: &temp,
	}

	httpReq, err := p.BuildRequest(context.Background(), req, "sk-ant-test-1234")
	require.NoError(t, err)

	require.Equal(t, "https://example.test/v1/messages", httpReq.URL.String())
	require.Equal(t, "sk-ant-test-1234", httpReq.Header.Get("x-api-key"))
	require.Equal(t, DefaultAPIVersion, httpReq.Header.Get("anthropic-version"))
	require.Empty(t, httpReq.Header.Get("Authorization"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(body, &sent))
	require.Equal(t, 100, sent.MaxTokens)
	// System messages lift into the dedicated field.
	require.Equal(t, "be terse", sent.System)
	require.Len(t, sent.Messages, 1)
	require.Equal(t, "user", sent.Messages[0].Role)
}

func TestBuildRequest_DefaultMaxTokens(t *testing.T) {
	p := New()
	req := types.NewPromptRequest("claude-3-5-haiku-20241022", "hi")

	httpReq, err := p.BuildRequest(context.Background(), req, "sk-ant-test-1234")
	require.NoError(t, err)

	body, _ := io.ReadAll(httpReq.Body)
	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(body, &sent))
	// max_tokens is mandatory for the Messages API.
	require.Equal(t, DefaultMaxTokens, sent.MaxTokens)
}

func TestParseResponse(t *testing.T) {
	body := `{
		"id": "msg_1",
		"model": "claude-3-5-haiku-20241022",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "po"}, {"type": "text", "text": "ng"}],
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`
	resp := &http.Response{Body: io.NopCloser(strings.NewReader(body))}

	parsed, err := New().ParseResponse(resp)
	require.NoError(t, err)
	require.Equal(t, "pong", parsed.FirstContent())
	require.Equal(t, "stop", parsed.Choices[0].FinishReason)
	require.Equal(t, 5, parsed.Usage.TotalTokens)
}

func TestMapStopReason(t *testing.T) {
	require.Equal(t, "stop", mapStopReason("end_turn"))
	require.Equal(t, "stop", mapStopReason("stop_sequence"))
	require.Equal(t, "length", mapStopReason("max_tokens"))
	require.Equal(t, "tool_use", mapStopReason("tool_use"))
}

func TestMapError(t *testing.T) {
	p := New()

	err := p.MapError(429, []byte(`{"error": {"type": "rate_limit_error", "message": "throttled"}}`))
	require.True(t, errors.IsRateLimit(err))

	// 529 is Anthropic's overloaded signal, transient like 503.
	err = p.MapError(529, []byte(`{"error": {"type": "overloaded_error", "message": "overloaded"}}`))
	require.True(t, errors.IsRateLimit(err))

	err = p.MapError(401, []byte(`{"error": {"type": "authentication_error", "message": "bad key"}}`))
	var perr *errors.ProviderError
	require.True(t, errors.AsProviderError(err, &perr))
	require.False(t, perr.Retryable)
}
