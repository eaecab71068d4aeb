// Package credential implements the per-provider API key pool: sticky
// rotation, quota tracking, time-bounded bans after rate limiting, and
// full-cycle recovery once every key is simultaneously unusable.
package credential

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/osate/dispatch/internal/metrics"
)

const (
	// DefaultRequestsPerKey is the per-key quota after which the pool
	// force-rotates away from a key even though it is not banned.
	DefaultRequestsPerKey = 45

	// DefaultBanDuration is how long a key stays unusable after the
	// upstream rate-limited it.
	DefaultBanDuration = time.Hour
)

// ErrExhausted is returned by Acquire when no key is eligible.
var ErrExhausted = errors.New("credential: all keys banned or over quota")

// ErrNoCredentials is returned by NewPool when the secret list is empty.
var ErrNoCredentials = errors.New("credential: no keys provided")

// Credential is one upstream secret together with its rotation state.
// Duplicate secret values are allowed and tracked independently by Index.
type Credential struct {
	Index        int
	Value        string
	RequestCount int
	BanUntil     time.Time
}

// Banned reports whether the key is unusable at the given instant.
func (c Credential) Banned(now time.Time) bool {
	return !c.BanUntil.IsZero() && c.BanUntil.After(now)
}

// String returns the masked secret, safe for logging.
func (c Credential) String() string {
	return Mask(c.Value)
}

// Pool owns an ordered set of credentials for a single provider.
//
// Selection is deterministic and sticky: Acquire keeps returning the current
// key until it is banned or over quota, so per-key quota counts accrue
// correctly instead of round-robining on every call.
//
// All state transitions take the pool mutex; a Pool is safe for use by
// concurrent dispatch workers sharing one provider client.
type Pool struct {
	mu             sync.Mutex
	keys           []Credential
	current        int
	requestsPerKey int
	now            func() time.Time
	logger         *slog.Logger
	provider       string
}

// Option configures a Pool.
type Option func(*Pool)

// WithRequestsPerKey overrides the per-key quota.
func WithRequestsPerKey(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.requestsPerKey = n
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProviderLabel tags pool log lines and metrics with the owning provider.
func WithProviderLabel(name string) Option {
	return func(p *Pool) {
		p.provider = name
	}
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool from a pre-resolved ordered list of secrets.
// How that list is assembled (environment, config file, explicit override)
// is the caller's concern; see FromEnv for the environment convention.
func NewPool(secrets []string, opts ...Option) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, ErrNoCredentials
	}

	p := &Pool{
		keys:           make([]Credential, len(secrets)),
		requestsPerKey: DefaultRequestsPerKey,
		now:            time.Now,
		logger:         slog.Default(),
		provider:       "unknown",
	}
	for i, s := range secrets {
		p.keys[i] = Credential{Index: i, Value: s}
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Info("credential pool initialized",
		"provider", p.provider,
		"keys", len(p.keys),
		"quota_per_key", p.requestsPerKey,
	)
	return p, nil
}

// Len returns the number of keys in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Acquire returns the first eligible key, scanning forward from the sticky
// cursor with wraparound and skipping keys that are banned or over quota.
// The cursor is moved to the returned key.
//
// When every key is unusable and at least one of them is time-banned, Acquire
// force-clears all ban and quota state (RecoverFullCycle) and rescans. When
// every key is merely over quota and none is banned, it returns ErrExhausted:
// quota is a hard per-key budget and resetting it would silently burn it
// twice.
func (p *Pool) Acquire() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.acquireLocked(); ok {
		return c, nil
	}

	// Every key is unusable. Recover only if a ban, rather than pure quota
	// exhaustion, contributed to the outage.
	if p.anyBannedLocked() {
		p.recoverLocked()
		if c, ok := p.acquireLocked(); ok {
			return c, nil
		}
	}

	p.logger.Warn("no available keys", "provider", p.provider, "keys", len(p.keys))
	return Credential{}, ErrExhausted
}

// RecordSuccess increments the request count of the key at index.
// The count is monotonically non-decreasing except across a full-cycle
// recovery.
func (p *Pool) RecordSuccess(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.keys) {
		return
	}
	p.keys[index].RequestCount++
	metrics.KeyRequests.WithLabelValues(p.provider).Inc()
}

// RecordRateLimited bans the key at index for the given duration.
// Non-positive durations fall back to DefaultBanDuration so BanUntil is
// always strictly later than the time it was set.
func (p *Pool) RecordRateLimited(index int, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.keys) {
		return
	}
	if d <= 0 {
		d = DefaultBanDuration
	}
	p.keys[index].BanUntil = p.now().Add(d)
	metrics.KeyBans.WithLabelValues(p.provider).Inc()
	p.logger.Warn("key banned",
		"provider", p.provider,
		"key_index", index,
		"key", Mask(p.keys[index].Value),
		"ban_duration", d,
	)
}

// RecoverFullCycle clears all ban and quota state and resets the cursor to
// the first key. This is the aggressive recovery path: it unbans keys whose
// bans have not naturally expired. Acquire invokes it automatically only when
// every key is simultaneously unusable; callers should have no reason to
// force it otherwise.
func (p *Pool) RecoverFullCycle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recoverLocked()
}

// Snapshot returns a copy of the current per-key state.
func (p *Pool) Snapshot() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Credential, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Pool) acquireLocked() (Credential, bool) {
	now := p.now()
	n := len(p.keys)
	for i := 0; i < n; i++ {
		idx := (p.current + i) % n
		k := p.keys[idx]
		if k.Banned(now) {
			continue
		}
		if k.RequestCount >= p.requestsPerKey {
			continue
		}
		p.current = idx
		return k, true
	}
	return Credential{}, false
}

func (p *Pool) anyBannedLocked() bool {
	now := p.now()
	for _, k := range p.keys {
		if k.Banned(now) {
			return true
		}
	}
	return false
}

func (p *Pool) recoverLocked() {
	for i := range p.keys {
		p.keys[i].BanUntil = time.Time{}
		p.keys[i].RequestCount = 0
	}
	p.current = 0
	metrics.PoolRecoveries.WithLabelValues(p.provider).Inc()
	p.logger.Warn("full-cycle recovery: cleared ban and quota state for all keys",
		"provider", p.provider,
		"keys", len(p.keys),
	)
}
