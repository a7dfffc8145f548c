package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "ehr:pending:"

type pendingAuthStoreRedis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPendingAuthStoreRedis returns a Redis-backed PendingAuthStore that lets
// the server expire sessions natively. Each entry is written with the given
// TTL, so DeleteOlderThan has nothing to do.
func NewPendingAuthStoreRedis(client *redis.Client, ttl time.Duration) PendingAuthStore {
	return &pendingAuthStoreRedis{client: client, ttl: ttl}
}

func (s *pendingAuthStoreRedis) Create(ctx context.Context, pa *PendingAuthorization) error {
	payload, err := json.Marshal(pa)
	if err != nil {
		return fmt.Errorf("encode auth session: %w", err)
	}
	if err := s.client.Set(ctx, pendingKeyPrefix+pa.State, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("create auth session: %w", err)
	}
	return nil
}

func (s *pendingAuthStoreRedis) Get(ctx context.Context, state string) (*PendingAuthorization, error) {
	payload, err := s.client.Get(ctx, pendingKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth session: %w", err)
	}

	var pa PendingAuthorization
	if err := json.Unmarshal(payload, &pa); err != nil {
		return nil, fmt.Errorf("decode auth session: %w", err)
	}
	return &pa, nil
}

func (s *pendingAuthStoreRedis) Delete(ctx context.Context, state string) error {
	if err := s.client.Del(ctx, pendingKeyPrefix+state).Err(); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}

// DeleteOlderThan is a no-op: Redis expires entries via the per-key TTL.
func (s *pendingAuthStoreRedis) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
