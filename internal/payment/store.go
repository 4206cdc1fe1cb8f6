package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-agency/internal/db"
	"github.com/noah-isme/backend-agency/internal/invoice"
	"github.com/noah-isme/backend-agency/internal/ledger"
)

// InvoiceStore is the part of the invoice repository the payment core uses.
type InvoiceStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (invoice.Invoice, error)
	FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (invoice.Invoice, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Repos groups the repositories bound to one unit of work.
type Repos struct {
	Invoices InvoiceStore
	Ledger   ledger.Writer
}

// Store runs reconciliation steps atomically.
type Store interface {
	InTx(ctx context.Context, fn func(Repos) error) error
}

// PGStore binds the invoice and ledger repositories to one pgx transaction.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s PGStore) InTx(ctx context.Context, fn func(Repos) error) error {
	return db.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(Repos{
			Invoices: invoice.NewPGRepository(tx),
			Ledger:   ledger.NewPGStore(tx),
		})
	})
}
