package dispatch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRunner_RequiresClients(t *testing.T) {
	_, err := NewRunner(nil)
	require.Error(t, err)
}

func TestRun_RequiresPrompts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("ok")))
	}, []string{"sk-test-11111111"})

	runner, err := NewRunner([]*Client{client})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRun_MixedOutcomes(t *testing.T) {
	// Prompts containing "fail" get a terminal 401; everything else passes.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "fail") {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
			return
		}
		w.Write([]byte(completionBody("pong")))
	}, []string{"sk-test-11111111"})

	runner, err := NewRunner([]*Client{client}, WithConcurrency(2))
	require.NoError(t, err)

	rep, err := runner.Run(context.Background(), []string{"ping a", "please fail", "ping b"})
	require.NoError(t, err)

	require.NotEmpty(t, rep.RunID)
	require.Equal(t, 3, rep.Summary.TotalPrompts)
	require.Equal(t, 2, rep.Summary.Passes)
	require.Equal(t, 1, rep.Summary.Fails)

	// Records come back in prompt order with 1-based IDs.
	require.Len(t, rep.Records, 3)
	require.Equal(t, 1, rep.Records[0].ID)
	require.Equal(t, "ping a", rep.Records[0].Prompt)
	require.True(t, rep.Records[0].Passed())

	require.False(t, rep.Records[1].Passed())
	require.Len(t, rep.Records[1].Results, 1)
	require.Equal(t, "openai", rep.Records[1].Results[0].Provider)
	require.NotEmpty(t, rep.Records[1].Results[0].Error)

	require.True(t, rep.Records[2].Passed())
}

func TestRun_MultipleClientsPerPrompt(t *testing.T) {
	okClient, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("from-a")))
	}, []string{"sk-test-11111111"})

	failClient, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "nope"}}`))
	}, []string{"sk-test-22222222"})

	runner, err := NewRunner([]*Client{okClient, failClient})
	require.NoError(t, err)

	rep, err := runner.Run(context.Background(), []string{"hello"})
	require.NoError(t, err)

	require.Equal(t, 1, rep.Summary.TotalPrompts)
	// One good answer is enough for the prompt to pass.
	require.Equal(t, 1, rep.Summary.Passes)
	require.Equal(t, 0, rep.Summary.Fails)

	rec := rep.Records[0]
	require.Len(t, rec.Results, 2)
	require.Equal(t, "from-a", rec.Results[0].Response)
	require.True(t, rec.Results[0].OK())
	require.False(t, rec.Results[1].OK())
}

func TestRun_ConcurrentPromptsShareOneClient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Millisecond)
		w.Write([]byte(completionBody("ok")))
	}, []string{"sk-test-11111111"}, WithRequestsPerKey(1000))

	runner, err := NewRunner([]*Client{client}, WithConcurrency(8))
	require.NoError(t, err)

	prompts := make([]string, 40)
	for i := range prompts {
		prompts[i] = "ping"
	}

	rep, err := runner.Run(context.Background(), prompts)
	require.NoError(t, err)
	require.Equal(t, 40, rep.Summary.Passes)
	require.Equal(t, 0, rep.Summary.Fails)
}
