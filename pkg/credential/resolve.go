package credential

import (
	"fmt"
	"os"
	"strings"
)

// maxNumberedKeys bounds the PROVIDER_API_KEY_N scan.
const maxNumberedKeys = 5

// FromEnv resolves the ordered credential list for a provider from the
// process environment. Resolution order:
//
//  1. PROVIDER_API_KEYS, a comma-separated list
//  2. PROVIDER_API_KEY_1 .. PROVIDER_API_KEY_5, numbered variables
//  3. PROVIDER_API_KEY or PROVIDER_APIKEY, a single key
//
// All sources are merged, trimmed, and deduplicated while preserving order.
// Returns nil when the environment carries no keys for the provider.
func FromEnv(provider string) []string {
	prefix := strings.ToUpper(provider)

	var keys []string
	if raw := os.Getenv(prefix + "_API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	for i := 1; i <= maxNumberedKeys; i++ {
		if v := os.Getenv(fmt.Sprintf("%s_API_KEY_%d", prefix, i)); v != "" {
			keys = append(keys, v)
		}
	}
	if single := os.Getenv(prefix + "_API_KEY"); single != "" {
		keys = append(keys, single)
	} else if single := os.Getenv(prefix + "_APIKEY"); single != "" {
		keys = append(keys, single)
	}

	return dedupe(keys)
}

func dedupe(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
