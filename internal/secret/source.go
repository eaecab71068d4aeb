package secret

import "context"

// Source turns a key reference into API-key material. A reference is
// whatever the backend understands: a variable name for the env source, a
// "path#field" locator for Vault. The returned value may be a single key
// or a comma-separated pool of them.
type Source interface {
	Fetch(ctx context.Context, ref string) (string, error)

	// Close releases backend connections.
	Close() error
}
