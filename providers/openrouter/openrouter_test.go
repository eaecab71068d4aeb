package openrouter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/pkg/types"
)

func TestBuildRequest(t *testing.T) {
	p := New(WithBaseURL("https://example.test/api/v1"))

	req := types.NewPromptRequest("mistralai/mistral-7b-instruct", "hello")
	httpReq, err := p.BuildRequest(context.Background(), req, "sk-or-v1-test1234")
	require.NoError(t, err)

	require.Equal(t, "https://example.test/api/v1/chat/completions", httpReq.URL.String())
	require.Equal(t, "Bearer sk-or-v1-test1234", httpReq.Header.Get("Authorization"))

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)

	var sent types.ChatRequest
	require.NoError(t, json.Unmarshal(body, &sent))
	require.Equal(t, "mistralai/mistral-7b-instruct", sent.Model)
}

func TestParseResponse_OpenAIWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "gen-1",
			"object": "chat.completion",
			"model": "mistralai/mistral-7b-instruct",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "routed"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	parsed, err := New().ParseResponse(resp)
	require.NoError(t, err)
	require.Equal(t, "routed", parsed.FirstContent())
}

func TestMapError(t *testing.T) {
	p := New()

	err := p.MapError(http.StatusTooManyRequests, []byte(`{"error": {"message": "rate-limited"}}`))
	require.True(t, errors.IsRateLimit(err))

	// OpenRouter reports key problems as 401 or 403.
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		err = p.MapError(status, []byte(`{"error": {"message": "bad key"}}`))
		var perr *errors.ProviderError
		require.True(t, errors.AsProviderError(err, &perr))
		require.Equal(t, errors.TypeAuthentication, perr.Type)
	}
}
