// Package ratelimit throttles abusive callers of payment endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result describes the limiter decision for a single request.
type Result struct {
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Reached   bool
}

// Limiter decides whether a key may perform another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Store wraps a ulule limiter instance.
type Store struct {
	instance *limiter.Limiter
}

// NewRedisStore builds a Redis-backed limiter from a formatted rate such as "20-M".
func NewRedisStore(client *redis.Client, prefix, formatted string) (*Store, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return NewStore(store, rate), nil
}

// NewStore builds a limiter over any ulule store.
func NewStore(store limiter.Store, rate limiter.Rate) *Store {
	return &Store{instance: limiter.New(store, rate)}
}

// Allow consumes one token for key.
func (s *Store) Allow(ctx context.Context, key string) (Result, error) {
	lctx, err := s.instance.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetAt:   time.Unix(lctx.Reset, 0),
		Reached:   lctx.Reached,
	}, nil
}
