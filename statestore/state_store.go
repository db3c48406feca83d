package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
)

// StateStore is durable key/value state for watermarks, id maps and run locks.
//
// CompareAndSwap with old == "" succeeds only when the key is absent (or
// expired). A ttl of zero means the value never expires.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, old string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

func NewStateStore(ctx context.Context, cfg config.StateStoreConfig) (StateStore, error) {
	switch cfg.Type {
	case config.RedisStateStoreType:
		return NewRedisStateStore(cfg.Redis), nil
	case config.PostgresStateStoreType:
		return NewPostgresStateStore(ctx, cfg.Postgres)
	case config.InMemoryStateStoreType, "":
		return NewInMemoryStateStore(cfg.InMemory), nil
	}
	return nil, fmt.Errorf("invalid state store type: %s", cfg.Type)
}
