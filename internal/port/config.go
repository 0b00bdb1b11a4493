package port

import "context"

// ConfigSource is a read-only key/value lookup against the external
// configuration store. Lookup reports whether the key exists; callers fall
// back to built-in defaults for missing keys.
type ConfigSource interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}
