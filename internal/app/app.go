// Package app builds the infrastructure shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-agency/internal/config"
	"github.com/noah-isme/backend-agency/internal/db"
	"github.com/noah-isme/backend-agency/internal/health"
	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/lock"
	"github.com/noah-isme/backend-agency/internal/migrations"
	"github.com/noah-isme/backend-agency/internal/payment"
	"github.com/noah-isme/backend-agency/internal/resilience"
)

// OpenPostgres applies pending migrations when asked to and opens the pool.
func OpenPostgres(ctx context.Context, cfg *config.Config, applicationName string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, applicationName)
}

// OpenRedis connects and instruments a redis client.
func OpenRedis(ctx context.Context, redisURL string, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// AsynqRedisOpt converts the redis url for the task queue.
func AsynqRedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for asynq: %w", err)
	}
	return opt, nil
}

// NewPaymentProvider returns the Stripe adapter behind a circuit breaker.
func NewPaymentProvider(cfg *config.Config, logger zerolog.Logger) (payment.Provider, error) {
	stripe, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Timeout:       cfg.StripeTimeout,
	})
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewBreaker(cfg.StripeBreakerMinRequests, cfg.StripeBreakerFailureRatio, cfg.StripeBreakerOpenFor).
		WithTarget("stripe").
		WithLogger(logger).
		WithFailureClassifier(payment.IsTransientStripeError)
	return payment.BreakerProvider{Next: stripe, Breaker: breaker}, nil
}

// Payments groups the payment core components.
type Payments struct {
	Checkout  *payment.Checkout
	Processor *payment.Processor
	Handler   *payment.Handler
}

// NewPayments wires checkout and webhook processing over postgres and redis.
func NewPayments(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, provider payment.Provider, logger zerolog.Logger) Payments {
	checkout := &payment.Checkout{
		Invoices:   invoice.NewPGRepository(pool),
		Provider:   provider,
		SuccessURL: cfg.CheckoutSuccessURL(),
		CancelURL:  cfg.CheckoutCancelURL(),
		Logger:     logger.With().Str("component", "checkout").Logger(),
	}
	var locker payment.Locker
	if rdb != nil {
		locker = lock.Locker{R: rdb, MaxWait: cfg.PaymentLockTTL}
	}
	processor := payment.NewProcessor(payment.ProcessorConfig{
		Provider: provider,
		Store:    payment.PGStore{Pool: pool},
		Locker:   locker,
		LockTTL:  cfg.PaymentLockTTL,
		Logger:   logger.With().Str("component", "payment_webhook").Logger(),
	})
	return Payments{
		Checkout:  checkout,
		Processor: processor,
		Handler: &payment.Handler{
			Checkout:     checkout,
			Processor:    processor,
			Provider:     provider,
			MaxBodyBytes: cfg.WebhookMaxBodyBytes,
			Logger:       logger,
		},
	}
}

// ReadinessProbes pings postgres and redis.
func ReadinessProbes(pool *pgxpool.Pool, rdb *redis.Client) map[string]health.Probe {
	probes := map[string]health.Probe{}
	if pool != nil {
		probes["db"] = pool.Ping
	}
	if rdb != nil {
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return probes
}
