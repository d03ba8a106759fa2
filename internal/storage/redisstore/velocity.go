// Package redisstore keeps per-subject velocity windows in Redis so fraud
// heuristics survive process restarts and work across replicas.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type VelocityStore struct {
	client *redis.Client
	prefix string
}

func NewVelocityStore(client *redis.Client) *VelocityStore {
	return &VelocityStore{client: client, prefix: "fraud"}
}

// IncrCount bumps the subject's transaction counter for the current
// window bucket. The key expires with the window, so there is no global
// counter to reset.
func (s *VelocityStore) IncrCount(ctx context.Context, subject string, window time.Duration) (int64, error) {
	key := s.key(subject, "count", window)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr velocity count: %w", err)
	}
	return incr.Val(), nil
}

// AddAmount accumulates the subject's spend for the current window bucket
// and returns the running total.
func (s *VelocityStore) AddAmount(ctx context.Context, subject string, amount decimal.Decimal, window time.Duration) (decimal.Decimal, error) {
	key := s.key(subject, "amount", window)

	f, _ := amount.Float64()
	pipe := s.client.TxPipeline()
	incr := pipe.IncrByFloat(ctx, key, f)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("add velocity amount: %w", err)
	}
	return decimal.NewFromFloat(incr.Val()).Round(2), nil
}

func (s *VelocityStore) key(subject, kind string, window time.Duration) string {
	bucket := time.Now().UTC().Truncate(window).Unix()
	return fmt.Sprintf("%s:%s:%s:%d", s.prefix, kind, subject, bucket)
}
