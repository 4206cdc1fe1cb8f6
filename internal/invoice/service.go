package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-agency/internal/obs"
)

// CreateInput carries the owner-supplied fields of a new invoice.
type CreateInput struct {
	Amount      decimal.Decimal
	Title       string
	Description string
	DueDate     time.Time
}

// Service implements invoice use cases for tenant owners.
type Service struct {
	Repo     Repository
	Projects ProjectLookup
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create issues the next numbered invoice for a project that has a client and
// no open invoice. Numbering is count+1 per tenant; a concurrent creation that
// loses the race on the unique number fails with ErrNumberConflict.
func (s *Service) Create(ctx context.Context, tenantID, projectID uuid.UUID, in CreateInput) (Invoice, error) {
	if !in.Amount.IsPositive() {
		return Invoice{}, ErrInvalidAmount
	}
	project, err := s.Projects.FindProject(ctx, tenantID, projectID)
	if err != nil {
		return Invoice{}, err
	}
	if project.ClientID == nil {
		return Invoice{}, ErrProjectHasNoClient
	}
	open, err := s.Repo.HasOpenInvoiceForProject(ctx, tenantID, projectID)
	if err != nil {
		return Invoice{}, err
	}
	if open {
		return Invoice{}, ErrOpenInvoiceExists
	}
	count, err := s.Repo.CountForTenant(ctx, tenantID)
	if err != nil {
		return Invoice{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Invoice for " + project.Title
	}
	now := s.now()
	created, err := s.Repo.Create(ctx, Invoice{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ProjectID:   projectID,
		ClientID:    project.ClientID,
		Number:      FormatNumber(count + 1),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Status:      StatusUnpaid,
		DueDate:     in.DueDate.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Invoice{}, err
	}
	s.Logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", created.ID.String()).
		Str("invoice_number", created.Number).
		Msg("invoice_created")
	return created, nil
}

// List returns a page of the tenant's invoices, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]Invoice, int, error) {
	return s.Repo.ListForTenant(ctx, tenantID, page, limit)
}

// Get loads an invoice owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Invoice, error) {
	return s.Repo.FindForTenant(ctx, tenantID, id)
}

// PublicGet loads an invoice for the unauthenticated client view.
func (s *Service) PublicGet(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.Repo.FindByID(ctx, id)
}

// UpdateStatus applies a manual status change by the owner.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, raw string) (Invoice, error) {
	status, ok := ParseStatus(raw)
	if !ok || !ValidManualStatus(status) {
		return Invoice{}, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	updated, err := s.Repo.UpdateStatus(ctx, tenantID, id, status, s.now())
	if err != nil {
		obs.IncCounter(obs.InvoiceTransitionTotal, string(status), "error")
		return Invoice{}, err
	}
	obs.IncCounter(obs.InvoiceTransitionTotal, string(status), "manual")
	return updated, nil
}

// MarkOverdue flags every unpaid invoice whose due date has passed.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.Repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 && obs.InvoicesMarkedOverdue != nil {
		obs.InvoicesMarkedOverdue.Add(float64(n))
	}
	s.Logger.Info().Int64("count", n).Msg("invoices_marked_overdue")
	return n, nil
}
