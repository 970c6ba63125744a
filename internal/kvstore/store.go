// Package kvstore defines the persisted key-value store consumed by the
// cache, quota, license and preference subsystems.
package kvstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store closed")

// Store is a durable, process-wide key-value store. Absent keys are simply
// missing from the Get result rather than an error; callers treat any error
// as a miss and degrade to defaults.
type Store interface {
	// Get returns the values for the requested keys, omitting absent ones.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Set writes all items atomically per key (last write wins).
	Set(ctx context.Context, items map[string][]byte) error
	// Delete removes keys, ignoring ones that do not exist.
	Delete(ctx context.Context, keys ...string) error
	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
