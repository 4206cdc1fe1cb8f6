package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/ledger"
	"github.com/noah-isme/backend-agency/internal/obs"
)

const (
	checkoutCurrency    = "usd"
	checkoutProductName = "Project Invoice Payment"
)

var (
	ErrInvoiceNotFound    = errors.New("payment: invoice not found")
	ErrInvoiceAlreadyPaid = errors.New("payment: invoice already paid")
)

// Checkout opens hosted checkout sessions for tenant invoices.
type Checkout struct {
	Invoices   InvoiceStore
	Provider   Provider
	SuccessURL string
	CancelURL  string
	Logger     zerolog.Logger
}

// Create returns the hosted checkout URL for the tenant's invoice. The invoice
// is only touched after the provider accepted the session.
func (c *Checkout) Create(ctx context.Context, tenantID, invoiceID uuid.UUID) (url string, err error) {
	ctx, span := otel.Tracer("payment.Checkout").Start(ctx, "Checkout.Create")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID.String()))

	result := "error"
	defer func() {
		obs.IncCounter(obs.CheckoutSessionTotal, result)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	inv, err := c.Invoices.FindForTenant(ctx, tenantID, invoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			result = "not_found"
			return "", ErrInvoiceNotFound
		}
		return "", fmt.Errorf("load invoice: %w", err)
	}
	if !invoice.CanCheckout(inv.Status) {
		result = "already_paid"
		return "", ErrInvoiceAlreadyPaid
	}
	amount, err := ledger.ToMinorUnits(inv.Amount)
	if err != nil {
		return "", err
	}

	session, err := c.Provider.CreateCheckoutSession(ctx, SessionRequest{
		InvoiceID:   inv.ID.String(),
		AmountMinor: amount,
		Currency:    checkoutCurrency,
		ProductName: checkoutProductName,
		SuccessURL:  c.SuccessURL,
		CancelURL:   c.CancelURL,
	})
	if err != nil {
		result = "provider_error"
		c.Logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("checkout_session_create_failed")
		if !IsProviderError(err) {
			err = &ProviderError{Op: "create_checkout_session", Err: err}
		}
		return "", err
	}

	// An orphaned session is harmless: it carries the invoice id and will reconcile on payment.
	if err := c.Invoices.SetCheckoutSession(ctx, inv.ID, session.ID); err != nil {
		c.Logger.Error().Err(err).
			Str("invoice_id", inv.ID.String()).
			Str("session_id", session.ID).
			Msg("checkout_session_persist_failed")
		return "", fmt.Errorf("persist checkout session: %w", err)
	}

	result = "created"
	c.Logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", inv.ID.String()).
		Str("session_id", session.ID).
		Msg("checkout_session_created")
	return session.URL, nil
}
