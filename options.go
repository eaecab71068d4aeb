package dispatch

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultMaxAttemptsPerKey = 3
	DefaultInitialBackoff    = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBanDuration       = time.Hour
	DefaultMaxTokens         = 512
	DefaultTemperature       = 0.7
	DefaultConcurrency       = 4
)

type clientConfig struct {
	httpClient        *http.Client
	timeout           time.Duration
	logger            *slog.Logger
	requestsPerKey    int
	maxAttemptsPerKey int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	banDuration       time.Duration
	requestsPerMinute int
	maxTokens         int
	temperature       float64
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		timeout:           DefaultTimeout,
		logger:            slog.Default(),
		maxAttemptsPerKey: DefaultMaxAttemptsPerKey,
		initialBackoff:    DefaultInitialBackoff,
		maxBackoff:        DefaultMaxBackoff,
		banDuration:       DefaultBanDuration,
		maxTokens:         DefaultMaxTokens,
		temperature:       DefaultTemperature,
	}
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client. When set, WithTimeout is ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestsPerKey sets the soft per-key request quota before the
// credential pool rotates away from a key.
func WithRequestsPerKey(n int) ClientOption {
	return func(c *clientConfig) {
		c.requestsPerKey = n
	}
}

// WithMaxAttemptsPerKey sets how many times a single key is retried on
// transient failures before the client rotates to the next key.
func WithMaxAttemptsPerKey(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxAttemptsPerKey = n
		}
	}
}

// WithBackoff sets the initial and maximum delay between retries on the
// same key. The delay doubles after each failed attempt up to max.
func WithBackoff(initial, max time.Duration) ClientOption {
	return func(c *clientConfig) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithBanDuration sets how long a rate-limited key stays out of rotation.
func WithBanDuration(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.banDuration = d
		}
	}
}

// WithRequestsPerMinute enables client-side pacing of upstream calls.
// Zero disables pacing.
func WithRequestsPerMinute(rpm int) ClientOption {
	return func(c *clientConfig) {
		c.requestsPerMinute = rpm
	}
}

// WithMaxTokens sets the completion token limit sent upstream.
func WithMaxTokens(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature sent upstream.
func WithTemperature(t float64) ClientOption {
	return func(c *clientConfig) {
		if t >= 0 {
			c.temperature = t
		}
	}
}

func (c *clientConfig) limiter() *rate.Limiter {
	if c.requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(c.requestsPerMinute)/60.0), 1)
}
