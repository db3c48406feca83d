package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/redis/go-redis/v9"
)

type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(config config.RedisStateStoreConfig) *RedisStateStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisStateStore{
		client: client,
		prefix: config.KeyPrefix,
	}
}

func (s *RedisStateStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

// CompareAndSwap uses WATCH/MULTI so a concurrent writer aborts the swap.
func (s *RedisStateStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	k := s.key(key)
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if (old == "" && exists) || (old != "" && (!exists || current != old)) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, new, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *RedisStateStore) CompareAndDelete(ctx context.Context, key, old string) (bool, error) {
	k := s.key(key)
	deleted := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != old {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
