package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// Backends overrides the API transport, used to point tests at a stub server.
	Backends *stripe.Backends
}

// Stripe implements Provider over a constructed stripe-go client.
type Stripe struct {
	client        *stripe.Client
	webhookSecret string
}

// NewStripe builds the adapter. The HTTP transport is traced with otelhttp.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("payment: stripe secret key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("payment: stripe webhook secret is required")
	}
	backends := cfg.Backends
	if backends == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			HTTPClient: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		})
	}
	return &Stripe{
		client:        stripe.NewClient(cfg.SecretKey, stripe.WithBackends(backends)),
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error) {
	metadata := map[string]string{MetadataInvoiceID: req.InvoiceID}
	params := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		Metadata:           metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(req.AmountMinor),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	session, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return Session{}, &ProviderError{Op: "create_checkout_session", Err: err}
	}
	return Session{ID: session.ID, URL: session.URL}, nil
}

func (s *Stripe) RetrievePaymentIntent(ctx context.Context, id string) (Intent, error) {
	pi, err := s.client.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return Intent{}, &ProviderError{Op: "retrieve_payment_intent", Err: err}
	}
	return intentFromStripe(pi), nil
}

// ConstructEvent verifies the Stripe-Signature header over the raw payload and
// decodes the embedded object for the event types the processor handles.
func (s *Stripe) ConstructEvent(payload []byte, signature string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeStripeEvent(evt)
}

func decodeStripeEvent(evt stripe.Event) (Event, error) {
	out := Event{ID: evt.ID, Type: EventType(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}
	switch {
	case strings.HasPrefix(string(evt.Type), "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("%w: decode payment intent: %v", ErrInvalidEvent, err)
		}
		intent := intentFromStripe(&pi)
		out.Intent = &intent
	case strings.HasPrefix(string(evt.Type), "checkout.session."):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("%w: decode checkout session: %v", ErrInvalidEvent, err)
		}
		session := CheckoutSession{ID: cs.ID}
		if cs.PaymentIntent != nil {
			session.PaymentIntentID = cs.PaymentIntent.ID
		}
		out.Session = &session
	}
	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	intent := Intent{
		ID:          pi.ID,
		AmountMinor: pi.Amount,
		Currency:    string(pi.Currency),
		Metadata:    pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}

// IsTransientStripeError reports whether err should count against the circuit
// breaker. Card declines and invalid requests are the caller's problem.
func IsTransientStripeError(err error) bool {
	if err == nil {
		return false
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
	}
	return true
}
