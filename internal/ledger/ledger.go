// Package ledger is the append-only record of payment attempts.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a ledger entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

const (
	DefaultCurrency = "USD"
	DefaultMethod   = "card"
	ProviderStripe  = "stripe"
)

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("ledger: entry not found")

// Entry is one immutable payment log row. TransactionID is globally unique.
type Entry struct {
	ID              uuid.UUID         `json:"id"`
	TenantID        *uuid.UUID        `json:"tenantId,omitempty"`
	ClientID        *uuid.UUID        `json:"clientId,omitempty"`
	InvoiceID       *uuid.UUID        `json:"invoiceId,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentMethod   string            `json:"paymentMethod"`
	PaymentProvider string            `json:"paymentProvider"`
	Status          Status            `json:"status"`
	TransactionID   string            `json:"transactionId"`
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	ReceiptURL      *string           `json:"receiptUrl,omitempty"`
	FailureReason   *string           `json:"failureReason,omitempty"`
	Description     string            `json:"description"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter narrows a tenant's ledger listing.
type ListFilter struct {
	Status Status
	Search string
	Page   int
	Limit  int
}

// Writer appends entries. No update or delete exists.
type Writer interface {
	// InsertIfAbsent writes entry unless its TransactionID is already recorded.
	// A duplicate is reported as created=false with a nil error.
	InsertIfAbsent(ctx context.Context, entry Entry) (created bool, err error)
}

// Reader serves the tenant-scoped read side.
type Reader interface {
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Entry, int, error)
	GetByTransaction(ctx context.Context, tenantID uuid.UUID, transactionID string) (Entry, error)
}
