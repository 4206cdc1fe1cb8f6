package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-agency/internal/config"
	"github.com/noah-isme/backend-agency/internal/payment"
	"github.com/noah-isme/backend-agency/internal/resilience"
)

func testConfig() *config.Config {
	return &config.Config{
		ClientURL:                 "https://app.example.com",
		StripeSecretKey:           "sk_test_123",
		StripeWebhookSecret:       "whsec_123",
		StripeBreakerMinRequests:  5,
		StripeBreakerFailureRatio: 0.5,
	}
}

func TestNewPaymentProviderWrapsBreaker(t *testing.T) {
	provider, err := NewPaymentProvider(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	wrapped, ok := provider.(payment.BreakerProvider)
	require.True(t, ok)
	require.Equal(t, resilience.Closed, wrapped.Breaker.State())
	require.IsType(t, &payment.Stripe{}, wrapped.Next)
}

func TestNewPaymentProviderRequiresSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.StripeWebhookSecret = ""
	_, err := NewPaymentProvider(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestOpenRedisAndProbes(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	probes := ReadinessProbes(nil, client)
	require.Len(t, probes, 1)
	require.NoError(t, probes["redis"](context.Background()))

	mr.Close()
	require.Error(t, probes["redis"](context.Background()))
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), "://nope", false, zerolog.Nop())
	require.Error(t, err)
}

func TestNewPaymentsWiresHandler(t *testing.T) {
	cfg := testConfig()
	cfg.WebhookMaxBodyBytes = 1 << 20
	provider, err := NewPaymentProvider(cfg, zerolog.Nop())
	require.NoError(t, err)

	p := NewPayments(cfg, nil, nil, provider, zerolog.Nop())
	require.Equal(t, "https://app.example.com/payment-success", p.Checkout.SuccessURL)
	require.Same(t, p.Processor, p.Handler.Processor)
	require.Equal(t, int64(1<<20), p.Handler.MaxBodyBytes)
}

func TestAsynqRedisOpt(t *testing.T) {
	opt, err := AsynqRedisOpt("redis://localhost:6379/2")
	require.NoError(t, err)
	require.NotNil(t, opt)
}
