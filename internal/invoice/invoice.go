// Package invoice manages client invoices and their payment status.
package invoice

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("invoice: not found")
	ErrNumberConflict     = errors.New("invoice: number already taken")
	ErrProjectNotFound    = errors.New("invoice: project not found")
	ErrProjectHasNoClient = errors.New("invoice: project has no client")
	ErrOpenInvoiceExists  = errors.New("invoice: project already has an open invoice")
	ErrInvalidStatus      = errors.New("invoice: invalid status")
	ErrInvalidAmount      = errors.New("invoice: amount must be positive")
)

// Invoice is a bill issued by a tenant to the client of one of its projects.
type Invoice struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenantId"`
	ProjectID       uuid.UUID       `json:"projectId"`
	ProjectTitle    string          `json:"projectTitle,omitempty"`
	ClientID        *uuid.UUID      `json:"clientId,omitempty"`
	Number          string          `json:"invoiceNumber"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	DueDate         time.Time       `json:"dueDate"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	FailedAt        *time.Time      `json:"failedAt,omitempty"`
	PaymentIntentID *string         `json:"paymentIntentId,omitempty"`
	StripeSessionID *string         `json:"stripeSessionId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// FormatNumber renders the tenant-scoped sequence number n.
func FormatNumber(n int) string {
	return fmt.Sprintf("INV-%05d", n)
}
