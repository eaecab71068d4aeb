package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/providers/openai"
)

func completionBody(content string) string {
	return `{
		"id": "chatcmpl-test",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini",
		"choices": [
			{"index": 0, "message": {"role": "assistant", "content": "` + content + `"}, "finish_reason": "stop"}
		],
		"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
	}`
}

// newTestClient points an OpenAI-wire client at the given handler with fast
// retry settings.
func newTestClient(t *testing.T, handler http.HandlerFunc, keys []string, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prov := openai.New(openai.WithBaseURL(srv.URL))
	base := []ClientOption{
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithTimeout(2 * time.Second),
	}
	client, err := NewClient(prov, "gpt-4o-mini", keys, append(base, opts...)...)
	require.NoError(t, err)
	return client, srv
}

func bearerKey(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func TestNewClient_Validation(t *testing.T) {
	prov := openai.New()

	_, err := NewClient(nil, "gpt-4o-mini", []string{"sk-test-11111111"})
	require.True(t, errors.IsConfiguration(err))

	_, err = NewClient(prov, "", []string{"sk-test-11111111"})
	require.True(t, errors.IsConfiguration(err))

	_, err = NewClient(prov, "gpt-4o-mini", nil)
	require.True(t, errors.IsConfiguration(err))
}

func TestQuery_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("hello")))
	}, []string{"sk-test-11111111"})

	got, err := client.Query(context.Background(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestQuery_RotatesPastRateLimitedKeys(t *testing.T) {
	var askedKeys []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		key := bearerKey(r)
		askedKeys = append(askedKeys, key)
		if key == "sk-keythree-3333" {
			w.Write([]byte(completionBody("hello")))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}, []string{"sk-keyone-111111", "sk-keytwo-222222", "sk-keythree-3333"})

	got, err := client.Query(context.Background(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
	// Each throttled key burns its full attempt budget before rotation.
	require.Equal(t,
		[]string{
			"sk-keyone-111111", "sk-keyone-111111", "sk-keyone-111111",
			"sk-keytwo-222222", "sk-keytwo-222222", "sk-keytwo-222222",
			"sk-keythree-3333",
		},
		askedKeys,
	)

	// Both throttled keys are benched; the healthy one took the request.
	snap := client.Pool().Snapshot()
	now := time.Now()
	require.True(t, snap[0].Banned(now))
	require.True(t, snap[1].Banned(now))
	require.False(t, snap[2].Banned(now))
	require.Equal(t, 1, snap[2].RequestCount)
}

func TestQuery_RateLimitRecoversOnSameKey(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
			return
		}
		w.Write([]byte(completionBody("hello")))
	}, []string{"sk-keyone-111111"})

	got, err := client.Query(context.Background(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
	require.Equal(t, int32(2), calls.Load())

	// A throttle that clears within the attempt budget never bans the key.
	snap := client.Pool().Snapshot()
	require.False(t, snap[0].Banned(time.Now()))
}

func TestQuery_AllKeysRateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}, []string{"sk-keyone-111111", "sk-keytwo-222222"})

	_, err := client.Query(context.Background(), "anything")
	require.True(t, errors.IsAllKeysExhausted(err))
}

func TestQuery_NonRetryableStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}, []string{"sk-keyone-111111", "sk-keytwo-222222"})

	_, err := client.Query(context.Background(), "anything")
	var perr *errors.ProviderError
	require.True(t, errors.AsProviderError(err, &perr))
	require.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	// No retry and no second key for a terminal error.
	require.Equal(t, int32(1), calls.Load())
}

func TestQuery_RetriesTransientOnSameKey(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Connection drop on the first attempt.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(completionBody("recovered")))
	}, []string{"sk-keyone-111111"})

	got, err := client.Query(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, "recovered", got)
	require.Equal(t, int32(2), calls.Load())
}

func TestQuery_NetworkFailureDoesNotBanKeys(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}, []string{"sk-keyone-111111", "sk-keytwo-222222"})

	_, err := client.Query(context.Background(), "anything")
	require.Error(t, err)
	require.False(t, errors.IsAllKeysExhausted(err))
	// The first key's attempt budget is spent, then the error propagates
	// without rotating to the second key.
	require.Equal(t, int32(3), calls.Load())

	// Network failures leave the pool untouched.
	snap := client.Pool().Snapshot()
	now := time.Now()
	require.False(t, snap[0].Banned(now))
	require.False(t, snap[1].Banned(now))
}

func TestQuery_QuotaExhaustionFailsFast(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("ok")))
	}, []string{"sk-keyone-111111"}, WithRequestsPerKey(2))

	for i := 0; i < 2; i++ {
		_, err := client.Query(context.Background(), "ping")
		require.NoError(t, err)
	}

	// The single key is over quota and nothing is banned: no recovery.
	_, err := client.Query(context.Background(), "ping")
	require.True(t, errors.IsAllKeysExhausted(err))
}

func TestQuery_ContextCancel(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(completionBody("late")))
	}, []string{"sk-keyone-111111"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Query(ctx, "anything")
	require.Error(t, err)
	require.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestQueryAsync(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("async")))
	}, []string{"sk-keyone-111111"})

	res := <-client.QueryAsync(context.Background(), "anything")
	require.NoError(t, res.Err)
	require.Equal(t, "async", res.Response)
}

func TestQuery_EmptyCompletionIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("")))
	}, []string{"sk-keyone-111111"})

	_, err := client.Query(context.Background(), "anything")
	require.Error(t, err)
}
