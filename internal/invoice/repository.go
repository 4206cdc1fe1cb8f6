package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-agency/internal/db"
)

const numberConstraint = "invoices_tenant_number_key"

const selectInvoiceSQL = `
SELECT i.id, i.tenant_id, i.project_id, COALESCE(p.title, ''), i.client_id, i.number, i.title, i.description,
       i.amount::text, i.status, i.due_date, i.paid_at, i.failed_at, i.payment_intent_id, i.stripe_session_id,
       i.created_at, i.updated_at
FROM invoices i
LEFT JOIN projects p ON p.id = i.project_id`

// Repository is the persistence contract of the invoice module.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (Invoice, error)
	FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (Invoice, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	Create(ctx context.Context, inv Invoice) (Invoice, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]Invoice, int, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status, at time.Time) (Invoice, error)
	HasOpenInvoiceForProject(ctx context.Context, tenantID, projectID uuid.UUID) (bool, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository with pgx.
type PGRepository struct {
	q db.DBTX
}

// NewPGRepository builds a repository over a pool or transaction.
func NewPGRepository(q db.DBTX) *PGRepository {
	return &PGRepository{q: q}
}

func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return r.findOne(ctx, selectInvoiceSQL+" WHERE i.id = $1", id)
}

func (r *PGRepository) FindForTenant(ctx context.Context, tenantID, id uuid.UUID) (Invoice, error) {
	return r.findOne(ctx, selectInvoiceSQL+" WHERE i.id = $1 AND i.tenant_id = $2", id, tenantID)
}

func (r *PGRepository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	tag, err := r.q.Exec(ctx, `UPDATE invoices SET stripe_session_id = $2, updated_at = now() WHERE id = $1`, id, sessionID)
	if err != nil {
		return fmt.Errorf("set checkout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid is conditional so a concurrent duplicate cannot stamp paid_at twice.
func (r *PGRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE invoices
SET status = 'paid', paid_at = $3, payment_intent_id = $2, updated_at = now()
WHERE id = $1 AND status <> 'paid'`, id, paymentIntentID, at)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed only moves invoices that have not received money.
func (r *PGRepository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE invoices
SET status = 'failed', failed_at = $2, updated_at = now()
WHERE id = $1 AND status IN ('unpaid', 'overdue')`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark invoice failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	_, err := r.q.Exec(ctx, `
INSERT INTO invoices (id, tenant_id, project_id, client_id, number, title, description, amount, status, due_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $11)`,
		inv.ID, inv.TenantID, inv.ProjectID, inv.ClientID, inv.Number, inv.Title, inv.Description,
		inv.Amount.StringFixed(2), string(inv.Status), inv.DueDate, inv.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, numberConstraint) {
			return Invoice{}, ErrNumberConflict
		}
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return r.FindByID(ctx, inv.ID)
}

func (r *PGRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM invoices WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return n, nil
}

func (r *PGRepository) ListForTenant(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]Invoice, int, error) {
	total, err := r.CountForTenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.q.Query(ctx, selectInvoiceSQL+`
WHERE i.tenant_id = $1
ORDER BY i.created_at DESC, i.id DESC
LIMIT $2 OFFSET $3`, tenantID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate invoices: %w", err)
	}
	return invoices, total, nil
}

// UpdateStatus applies a manual change. A paid status stamps paid_at only when unset.
func (r *PGRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status, at time.Time) (Invoice, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE invoices
SET status = $3,
    paid_at = CASE WHEN $3 = 'paid' THEN COALESCE(paid_at, $4) ELSE paid_at END,
    updated_at = now()
WHERE id = $1 AND tenant_id = $2`, id, tenantID, string(status), at)
	if err != nil {
		return Invoice{}, fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Invoice{}, ErrNotFound
	}
	return r.FindForTenant(ctx, tenantID, id)
}

func (r *PGRepository) HasOpenInvoiceForProject(ctx context.Context, tenantID, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM invoices WHERE tenant_id = $1 AND project_id = $2 AND status = ANY($3::text[])
)`, tenantID, projectID, openStatusValues()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open invoice: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE invoices SET status = 'overdue', updated_at = now()
WHERE status = 'unpaid' AND due_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) findOne(ctx context.Context, query string, args ...any) (Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		amount string
		status string
	)
	if err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.ProjectID, &inv.ProjectTitle, &inv.ClientID, &inv.Number, &inv.Title,
		&inv.Description, &amount, &status, &inv.DueDate, &inv.PaidAt, &inv.FailedAt, &inv.PaymentIntentID,
		&inv.StripeSessionID, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, err
		}
		return Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Invoice{}, fmt.Errorf("parse invoice amount: %w", err)
	}
	inv.Amount = parsed
	inv.Status = Status(status)
	return inv, nil
}
