package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-agency/internal/db"
	"github.com/noah-isme/backend-agency/internal/obs"
)

const transactionConstraint = "payment_logs_transaction_id_key"

const insertEntrySQL = `
INSERT INTO payment_logs (
    id, tenant_id, client_id, invoice_id, amount, currency, payment_method, payment_provider,
    status, transaction_id, payment_intent_id, receipt_url, failure_reason, description, metadata, created_at
) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (transaction_id) DO NOTHING
RETURNING id`

const selectEntryColumns = `
SELECT id, tenant_id, client_id, invoice_id, amount::text, currency, payment_method, payment_provider,
       status, transaction_id, COALESCE(payment_intent_id, ''), receipt_url, failure_reason, description,
       metadata, created_at
FROM payment_logs`

// PGStore persists ledger entries in Postgres.
type PGStore struct {
	q   db.DBTX
	now func() time.Time
}

// NewPGStore builds a store over a pool or transaction.
func NewPGStore(q db.DBTX) *PGStore {
	return &PGStore{q: q, now: time.Now}
}

// InsertIfAbsent relies on the transaction_id unique constraint, never on a prior read.
func (s *PGStore) InsertIfAbsent(ctx context.Context, entry Entry) (bool, error) {
	if strings.TrimSpace(entry.TransactionID) == "" {
		return false, errors.New("ledger: transaction id is required")
	}
	if !entry.Status.Valid() {
		return false, fmt.Errorf("ledger: invalid status %q", entry.Status)
	}
	entry = withDefaults(entry, s.now)

	var id uuid.UUID
	err := s.q.QueryRow(ctx, insertEntrySQL,
		entry.ID, entry.TenantID, entry.ClientID, entry.InvoiceID, entry.Amount.StringFixed(2),
		entry.Currency, entry.PaymentMethod, entry.PaymentProvider, string(entry.Status),
		entry.TransactionID, nullString(entry.PaymentIntentID), entry.ReceiptURL, entry.FailureReason,
		entry.Description, entry.Metadata, entry.CreatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		obs.IncCounter(obs.LedgerInsertTotal, string(entry.Status), "created")
		return true, nil
	case errors.Is(err, pgx.ErrNoRows), db.IsUniqueViolation(err, transactionConstraint):
		obs.IncCounter(obs.LedgerInsertTotal, string(entry.Status), "duplicate")
		return false, nil
	default:
		obs.IncCounter(obs.LedgerInsertTotal, string(entry.Status), "error")
		return false, fmt.Errorf("insert payment log: %w", err)
	}
}

// List returns a page of the tenant's entries, newest first, and the total match count.
func (s *PGStore) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Entry, int, error) {
	filter = normaliseFilter(filter)
	where, args := listConditions(tenantID, filter)

	var total int
	if err := s.q.QueryRow(ctx, "SELECT count(*) FROM payment_logs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payment logs: %w", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		selectEntryColumns, where, len(args)-1, len(args))
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment logs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, filter.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment logs: %w", err)
	}
	return entries, total, nil
}

// GetByTransaction returns the tenant's entry for a provider transaction id.
func (s *PGStore) GetByTransaction(ctx context.Context, tenantID uuid.UUID, transactionID string) (Entry, error) {
	row := s.q.QueryRow(ctx, selectEntryColumns+" WHERE tenant_id = $1 AND transaction_id = $2", tenantID, transactionID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

func listConditions(tenantID uuid.UUID, filter ListFilter) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(description ILIKE $%d OR transaction_id ILIKE $%d)", len(args), len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry  Entry
		amount string
		status string
	)
	if err := row.Scan(
		&entry.ID, &entry.TenantID, &entry.ClientID, &entry.InvoiceID, &amount, &entry.Currency,
		&entry.PaymentMethod, &entry.PaymentProvider, &status, &entry.TransactionID, &entry.PaymentIntentID,
		&entry.ReceiptURL, &entry.FailureReason, &entry.Description, &entry.Metadata, &entry.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan payment log: %w", err)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Entry{}, fmt.Errorf("parse payment log amount: %w", err)
	}
	entry.Amount = parsed
	entry.Status = Status(status)
	return entry, nil
}

func withDefaults(entry Entry, now func() time.Time) Entry {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Currency == "" {
		entry.Currency = DefaultCurrency
	}
	entry.Currency = strings.ToUpper(entry.Currency)
	if entry.PaymentMethod == "" {
		entry.PaymentMethod = DefaultMethod
	}
	if entry.PaymentProvider == "" {
		entry.PaymentProvider = ProviderStripe
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now().UTC()
	}
	return entry
}

func normaliseFilter(filter ListFilter) ListFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return filter
}

func nullString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
