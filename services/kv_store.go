package services

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps every failure reported by a history backend.
var ErrStoreUnavailable = errors.New("history store unavailable")

// KVStore is the get/set string store that holds one serialized
// conversation per key. Get reports found=false for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}
