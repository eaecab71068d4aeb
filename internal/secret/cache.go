package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// cachedSource wraps a Source so each reference hits the backend at most
// once per TTL window. Building clients for several models resolves the
// same key-pool references repeatedly.
type cachedSource struct {
	backend Source
	entries *cache.Cache
}

// Cached adds an in-memory TTL cache in front of backend. Only successful
// fetches are cached; a failed one is retried on the next call.
func Cached(backend Source, ttl time.Duration) Source {
	return &cachedSource{
		backend: backend,
		entries: cache.New(ttl, ttl*2),
	}
}

func (s *cachedSource) Fetch(ctx context.Context, ref string) (string, error) {
	if hit, ok := s.entries.Get(ref); ok {
		if keys, ok := hit.(string); ok {
			return keys, nil
		}
	}

	keys, err := s.backend.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}

	s.entries.Set(ref, keys, cache.DefaultExpiration)
	return keys, nil
}

func (s *cachedSource) Close() error {
	return s.backend.Close()
}
