package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/osate/dispatch/internal/metrics"
	"github.com/osate/dispatch/pkg/credential"
	"github.com/osate/dispatch/pkg/errors"
	"github.com/osate/dispatch/pkg/provider"
	"github.com/osate/dispatch/pkg/types"
)

// Client submits prompts to a single (provider, model) upstream, rotating
// through a pool of API keys. Rate-limit responses are retried on the same
// key with exponential backoff; only a key that stays throttled through all
// its attempts is banned, and the client moves on to the next one. Safe for
// concurrent use.
type Client struct {
	prov       provider.Provider
	model      string
	pool       *credential.Pool
	httpClient *http.Client
	cfg        *clientConfig
	limiter    *rate.Limiter
}

// QueryResult carries the outcome of an asynchronous query.
type QueryResult struct {
	Response string
	Err      error
}

// NewClient creates a dispatch client for one provider and model.
// At least one API key is required.
func NewClient(prov provider.Provider, model string, keys []string, opts ...ClientOption) (*Client, error) {
	if prov == nil {
		return nil, &errors.ConfigurationError{Provider: "", Reason: "provider adapter is required"}
	}
	if model == "" {
		return nil, &errors.ConfigurationError{Provider: prov.Name(), Reason: "model is required"}
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	poolOpts := []credential.Option{
		credential.WithLogger(cfg.logger),
		credential.WithProviderLabel(prov.Name()),
	}
	if cfg.requestsPerKey > 0 {
		poolOpts = append(poolOpts, credential.WithRequestsPerKey(cfg.requestsPerKey))
	}
	pool, err := credential.NewPool(keys, poolOpts...)
	if err != nil {
		return nil, &errors.ConfigurationError{Provider: prov.Name(), Reason: "no API keys configured"}
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		prov:       prov,
		model:      model,
		pool:       pool,
		httpClient: hc,
		cfg:        cfg,
		limiter:    cfg.limiter(),
	}, nil
}

// Provider returns the upstream provider name.
func (c *Client) Provider() string { return c.prov.Name() }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Pool exposes the credential pool, mainly for inspection.
func (c *Client) Pool() *credential.Pool { return c.pool }

// Query submits one prompt and returns the model's text response. It works
// through the key pool: each key gets up to maxAttemptsPerKey tries with
// doubling backoff between them. A key that is still rate limited after its
// last attempt is banned and the next key takes over; other errors that
// survive the same-key retries propagate without touching the key. When
// every key has been tried without success the call fails with
// AllKeysExhaustedError.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	req := types.NewPromptRequest(c.model, prompt)
	req.MaxTokens = c.cfg.maxTokens
	temp := c.cfg.temperature
	req.Temperature = &temp

	var lastErr error

	// One rotation per key at most. Acquire keeps a sticky cursor, so a
	// healthy key is reused across calls instead of round-robining.
	for rotation := 0; rotation < c.pool.Len(); rotation++ {
		cred, err := c.pool.Acquire()
		if err != nil {
			return "", &errors.AllKeysExhaustedError{
				Provider: c.prov.Name(),
				KeyCount: c.pool.Len(),
			}
		}

		content, retryable, err := c.tryKey(ctx, req, cred)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("query canceled: %w", ctx.Err())
		}
		if !retryable {
			return "", err
		}

		// Only a key that exhausted its attempts while throttled gets
		// benched. Other errors that outlived the same-key retries
		// propagate without touching the pool.
		if !errors.IsRateLimit(err) {
			return "", err
		}
		c.cfg.logger.Info("key still rate limited, rotating",
			"provider", c.prov.Name(),
			"model", c.model,
			"key", cred.String(),
			"attempts", c.cfg.maxAttemptsPerKey,
		)
		c.pool.RecordRateLimited(cred.Index, c.cfg.banDuration)
	}

	c.cfg.logger.Warn("all keys exhausted",
		"provider", c.prov.Name(),
		"model", c.model,
		"keys", c.pool.Len(),
		"last_error", lastErr,
	)
	return "", &errors.AllKeysExhaustedError{
		Provider: c.prov.Name(),
		KeyCount: c.pool.Len(),
	}
}

// QueryAsync runs Query in a goroutine and delivers the outcome on the
// returned channel. The channel is buffered, so the result never blocks
// even if the caller walks away.
func (c *Client) QueryAsync(ctx context.Context, prompt string) <-chan QueryResult {
	out := make(chan QueryResult, 1)
	go func() {
		resp, err := c.Query(ctx, prompt)
		out <- QueryResult{Response: resp, Err: err}
	}()
	return out
}

// tryKey drives up to maxAttemptsPerKey attempts against a single key.
// It returns retryable=false for errors that no other key can fix.
func (c *Client) tryKey(ctx context.Context, req *types.ChatRequest, cred credential.Credential) (string, bool, error) {
	backoff := c.cfg.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.maxAttemptsPerKey; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, backoff); err != nil {
				return "", false, err
			}
			backoff *= 2
			if backoff > c.cfg.maxBackoff {
				backoff = c.cfg.maxBackoff
			}
		}

		content, err := c.doRequest(ctx, req, cred.Value)
		if err == nil {
			c.pool.RecordSuccess(cred.Index)
			return content, false, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", false, err
		}

		if errors.IsRateLimit(err) {
			metrics.RateLimitHits.WithLabelValues(c.prov.Name()).Inc()
			c.cfg.logger.Info("rate limited, backing off",
				"provider", c.prov.Name(),
				"model", c.model,
				"key", cred.String(),
				"attempt", attempt,
			)
			continue
		}

		var perr *errors.ProviderError
		if errors.AsProviderError(err, &perr) && !perr.Retryable {
			return "", false, err
		}

		c.cfg.logger.Debug("transient failure, retrying",
			"provider", c.prov.Name(),
			"model", c.model,
			"key", cred.String(),
			"attempt", attempt,
			"error", err,
		)
	}

	return "", true, lastErr
}

// doRequest performs a single upstream HTTP attempt.
func (c *Client) doRequest(ctx context.Context, req *types.ChatRequest, apiKey string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("pacing wait: %w", err)
		}
	}

	httpReq, err := c.prov.BuildRequest(ctx, req, apiKey)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.UpstreamLatency.WithLabelValues(c.prov.Name(), c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeError).Inc()
		return "", errors.NewTimeoutError(c.prov.Name(), c.model, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		mapped := c.prov.MapError(resp.StatusCode, body)
		if errors.IsRateLimit(mapped) {
			metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeRateLimited).Inc()
		} else {
			metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeError).Inc()
		}
		return "", mapped
	}

	parsed, err := c.prov.ParseResponse(resp)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeError).Inc()
		return "", err
	}

	content := parsed.FirstContent()
	if content == "" {
		metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeError).Inc()
		return "", errors.NewInternalError(c.prov.Name(), c.model, "empty completion in upstream response")
	}

	metrics.UpstreamRequests.WithLabelValues(c.prov.Name(), c.model, metrics.OutcomeSuccess).Inc()
	return content, nil
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
