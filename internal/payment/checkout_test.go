package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-agency/internal/invoice"
)

func newCheckoutFixture(status invoice.Status) (*Checkout, *memStore, *fakeProvider, invoice.Invoice) {
	f := newProcessorFixture(status)
	provider := &fakeProvider{session: Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}}
	checkout := &Checkout{
		Invoices:   memInvoices{s: f.store},
		Provider:   provider,
		SuccessURL: "https://app.example.com/payment-success",
		CancelURL:  "https://app.example.com/payment-cancel",
		Logger:     zerolog.Nop(),
	}
	return checkout, f.store, provider, f.inv
}

func TestCheckoutCreate(t *testing.T) {
	checkout, store, provider, inv := newCheckoutFixture(invoice.StatusUnpaid)

	url, err := checkout.Create(context.Background(), inv.TenantID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", url)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	require.Equal(t, inv.ID.String(), req.InvoiceID)
	require.Equal(t, int64(2550), req.AmountMinor)
	require.Equal(t, "usd", req.Currency)
	require.Equal(t, "Project Invoice Payment", req.ProductName)
	require.Equal(t, "https://app.example.com/payment-success", req.SuccessURL)

	stored := store.invoice(inv.ID)
	require.Equal(t, "cs_test_1", *stored.StripeSessionID)
	require.Equal(t, invoice.StatusUnpaid, stored.Status)
}

func TestCheckoutCreateRejectsForeignTenant(t *testing.T) {
	checkout, _, provider, inv := newCheckoutFixture(invoice.StatusUnpaid)

	_, err := checkout.Create(context.Background(), uuid.New(), inv.ID)
	require.ErrorIs(t, err, ErrInvoiceNotFound)

	_, err = checkout.Create(context.Background(), inv.TenantID, uuid.New())
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	require.Empty(t, provider.requests)
}

func TestCheckoutCreateRejectsPaidInvoice(t *testing.T) {
	checkout, _, provider, inv := newCheckoutFixture(invoice.StatusPaid)

	_, err := checkout.Create(context.Background(), inv.TenantID, inv.ID)
	require.ErrorIs(t, err, ErrInvoiceAlreadyPaid)
	require.Empty(t, provider.requests)
}

func TestCheckoutCreateProviderFailureLeavesInvoice(t *testing.T) {
	checkout, store, provider, inv := newCheckoutFixture(invoice.StatusOverdue)
	provider.sessionErr = errors.New("connection refused")

	_, err := checkout.Create(context.Background(), inv.TenantID, inv.ID)
	require.Error(t, err)
	require.True(t, IsProviderError(err))

	stored := store.invoice(inv.ID)
	require.Nil(t, stored.StripeSessionID)
	require.Equal(t, invoice.StatusOverdue, stored.Status)
}
