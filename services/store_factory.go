package services

import (
	"context"
	"fmt"

	"chatrelay/config"
)

// NewKVStore builds the history backend selected by cfg.Store. On error the
// returned store is always a nil interface.
func NewKVStore(ctx context.Context, cfg *config.Config) (KVStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		store, err := NewRedisStore(ctx, cfg.RedisURL, cfg.HistoryTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "dynamodb":
		store, err := NewDynamoStore(ctx, cfg.DynamoURL, cfg.AWSRegion, cfg.DynamoTable)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.PostgresURI)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
