// Package payment opens Stripe checkout sessions and reconciles Stripe webhook
// events into invoice status and the payment ledger.
package payment

import (
	"context"
	"errors"
	"fmt"
)

// EventType is the provider tag of a webhook event.
type EventType string

const (
	EventPaymentSucceeded        EventType = "payment_intent.succeeded"
	EventPaymentFailed           EventType = "payment_intent.payment_failed"
	EventCheckoutSessionComplete EventType = "checkout.session.completed"
)

// MetadataInvoiceID is the metadata key correlating provider objects to invoices.
const MetadataInvoiceID = "invoiceId"

// SessionRequest describes a hosted checkout for a single invoice.
type SessionRequest struct {
	InvoiceID   string
	AmountMinor int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

// Session is the provider's answer to a checkout request.
type Session struct {
	ID  string
	URL string
}

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID             string
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	LatestChargeID string
	FailureMessage string
}

// CheckoutSession is the slice of a completed checkout session the processor reads.
type CheckoutSession struct {
	ID              string
	PaymentIntentID string
}

// Event is a verified webhook event. Intent is set for payment_intent.* events
// and Session for checkout.session.* events.
type Event struct {
	ID      string
	Type    EventType
	Intent  *Intent
	Session *CheckoutSession
}

// Provider is the payment provider collaborator.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrievePaymentIntent(ctx context.Context, id string) (Intent, error)
	// ConstructEvent verifies signature against the unparsed payload.
	ConstructEvent(payload []byte, signature string) (Event, error)
}

// ErrInvalidSignature marks events whose signature did not verify.
var ErrInvalidSignature = errors.New("payment: invalid webhook signature")

// ErrInvalidEvent marks signed events whose object could not be decoded.
var ErrInvalidEvent = errors.New("payment: malformed webhook event")

// ProviderError wraps a failed call to the payment provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err came from the provider.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
