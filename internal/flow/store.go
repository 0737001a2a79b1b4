package flow

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Storage keys, one namespace per browser-session concern. All values
// are JSON.
const (
	draftKeyPrefix      = "whisper:draft:"
	pendingKeyPrefix    = "whisper:pending:"
	lastAmountKeyPrefix = "whisper:lastamount:"
	lastIntentKeyPrefix = "whisper:lastintent:"
	walletKeyPrefix     = "whisper:wallet:"
)

// KV is the small slice of key-value storage the flow engine needs.
// Backed by redis in production and by a map in tests.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Store persists per-session flow state. Every write is best-effort:
// a storage failure is logged and swallowed, never surfaced, because
// the draft is a convenience rather than a correctness requirement.
type Store struct {
	kv  KV
	ttl time.Duration
	log *zap.Logger
}

func NewStore(kv KV, ttl time.Duration, log *zap.Logger) *Store {
	return &Store{kv: kv, ttl: ttl, log: log}
}

func (s *Store) set(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value, s.ttl); err != nil {
		s.log.Warn("flow store write dropped", zap.String("key", key), zap.Error(err))
	}
}

// setDurable writes without an expiry. Pending payloads use it so a
// queued donation outlives the session TTL and is only ever removed by
// a successful delivery.
func (s *Store) setDurable(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value, 0); err != nil {
		s.log.Warn("flow store write dropped", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	val, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("flow store read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, ok
}

func (s *Store) delete(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Warn("flow store delete failed", zap.String("key", key), zap.Error(err))
	}
}
