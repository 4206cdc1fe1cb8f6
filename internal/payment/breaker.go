package payment

import (
	"context"
	"errors"

	"github.com/noah-isme/backend-agency/internal/resilience"
)

// BreakerProvider short-circuits provider calls while the provider is failing.
// Signature verification is local and never passes through the breaker.
type BreakerProvider struct {
	Next    Provider
	Breaker *resilience.Breaker
}

func (b BreakerProvider) CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error) {
	var session Session
	err := b.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		session, err = b.Next.CreateCheckoutSession(ctx, req)
		return err
	})
	return session, b.wrap("create_checkout_session", err)
}

func (b BreakerProvider) RetrievePaymentIntent(ctx context.Context, id string) (Intent, error) {
	var intent Intent
	err := b.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		intent, err = b.Next.RetrievePaymentIntent(ctx, id)
		return err
	})
	return intent, b.wrap("retrieve_payment_intent", err)
}

func (b BreakerProvider) ConstructEvent(payload []byte, signature string) (Event, error) {
	return b.Next.ConstructEvent(payload, signature)
}

func (b BreakerProvider) wrap(op string, err error) error {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return &ProviderError{Op: op, Err: err}
	}
	return err
}
