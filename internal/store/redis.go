package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per owner (field = document key) and a set of owners.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "smartsync"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// DialRedis connects to cfg.RedisAddr and verifies the connection.
func DialRedis(cfg shared.StorageConfig) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("%w: redis_addr is required for redis storage", shared.ErrMissingConfig)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", shared.ErrPersistence, err)
	}
	return NewRedisStore(rdb, cfg.RedisPrefix), nil
}

func (s *RedisStore) ownerKey(ownerID string) string {
	return s.prefix + ":owner:" + ownerID
}

func (s *RedisStore) ownersKey() string {
	return s.prefix + ":owners"
}

func (s *RedisStore) Read(ctx context.Context, ownerID, key string) ([]byte, error) {
	if err := checkAddress(ownerID, key); err != nil {
		return nil, err
	}

	data, err := s.rdb.HGet(ctx, s.ownerKey(ownerID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return data, nil
}

func (s *RedisStore) WriteAtomic(ctx context.Context, ownerID, key string, data []byte) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.ownerKey(ownerID), key, data)
		pipe.SAdd(ctx, s.ownersKey(), ownerID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: writing %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ownerID, key string) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}

	if err := s.rdb.HDel(ctx, s.ownerKey(ownerID), key).Err(); err != nil {
		return fmt.Errorf("%w: deleting %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	n, err := s.rdb.HLen(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	if n == 0 {
		if err := s.rdb.SRem(ctx, s.ownersKey(), ownerID).Err(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrPersistence, err)
		}
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, ownerID string) ([]string, error) {
	if !shared.ValidID(ownerID) {
		return nil, fmt.Errorf("%w: owner id %q", shared.ErrInvalidInput, ownerID)
	}
	keys, err := s.rdb.HKeys(ctx, s.ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", shared.ErrPersistence, ownerID, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Owners(ctx context.Context) ([]string, error) {
	owners, err := s.rdb.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing owners: %v", shared.ErrPersistence, err)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
