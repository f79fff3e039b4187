// Package localstore is the on-device key-value cache that backs offline use.
// Values are opaque blobs (JSON in practice); keys are namespaced by callers.
package localstore

import (
	"context"
	"errors"
)

// Store is a flat key-value namespace shared by the identity store and every
// session controller.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value for key in a single write.
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys that start with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

var errEmptyKey = errors.New("localstore: empty key")
