// ABOUTME: Redis-backed rate-limit Store for deployments with more than one gateway
// ABOUTME: CompareAndSwap uses WATCH/MULTI so concurrent instances cannot lose updates

package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session-gateway:ratelimit:"

var errStateChanged = errors.New("rate limit state changed")

// RedisStore stores rate-limit state in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (State, bool, error) {
	return s.read(ctx, s.client, s.prefix+key)
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, c stringGetter, redisKey string) (State, bool, error) {
	raw, err := c.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("redis get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("decoding rate limit state: %w", err)
	}
	return st, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, state State, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding rate limit state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old *State, next State, ttl time.Duration) (bool, error) {
	redisKey := s.prefix + key
	raw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encoding rate limit state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, found, err := s.read(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if old == nil && found {
			return errStateChanged
		}
		if old != nil && (!found || !current.equal(*old)) {
			return errStateChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, raw, ttl)
			return nil
		})
		return err
	}, redisKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStateChanged), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis compare-and-swap: %w", err)
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
