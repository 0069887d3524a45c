package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "idem:"
	// claims outlive the slowest request so a crashed owner frees the key
	inFlightTTL = time.Minute
)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string) (*Record, error) {
	claim, err := json.Marshal(Record{Fingerprint: fingerprint, State: stateInFlight})
	if err != nil {
		return nil, fmt.Errorf("marshal claim: %w", err)
	}

	// The record can expire between SetNX and Get; one retry covers that.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, keyPrefix+key, claim, inFlightTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}

		raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get idempotency record: %w", err)
		}
		var existing Record
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("decode idempotency record: %w", err)
		}
		return resolve(existing, fingerprint)
	}
	return nil, ErrInFlight
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record) error {
	rec.State = stateDone
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
