package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	err error
	id  uuid.UUID
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*uuid.UUID)) = r.id
	return nil
}

type stubDB struct {
	row  stubRow
	sql  string
	args []any
}

func (s *stubDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.sql = sql
	s.args = args
	return s.row
}

func sampleEntry() Entry {
	return Entry{
		Amount:        FromMinorUnits(2550),
		Currency:      "usd",
		Status:        StatusCompleted,
		TransactionID: "pi_123",
		Description:   "Payment for invoice 1",
	}
}

func TestInsertIfAbsentCreated(t *testing.T) {
	stub := &stubDB{row: stubRow{id: uuid.New()}}
	created, err := NewPGStore(stub).InsertIfAbsent(context.Background(), sampleEntry())
	require.NoError(t, err)
	require.True(t, created)
	require.Contains(t, stub.sql, "ON CONFLICT (transaction_id) DO NOTHING")
	require.Equal(t, "25.50", stub.args[4])
	require.Equal(t, "USD", stub.args[5])
	require.Equal(t, "card", stub.args[6])
	require.Equal(t, "stripe", stub.args[7])
}

func TestInsertIfAbsentDuplicateIsNoop(t *testing.T) {
	for name, err := range map[string]error{
		"conflict skipped": pgx.ErrNoRows,
		"unique violation": &pgconn.PgError{Code: "23505", ConstraintName: transactionConstraint},
	} {
		t.Run(name, func(t *testing.T) {
			created, insertErr := NewPGStore(&stubDB{row: stubRow{err: err}}).InsertIfAbsent(context.Background(), sampleEntry())
			require.NoError(t, insertErr)
			require.False(t, created)
		})
	}
}

func TestInsertIfAbsentPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewPGStore(&stubDB{row: stubRow{err: boom}}).InsertIfAbsent(context.Background(), sampleEntry())
	require.ErrorIs(t, err, boom)
}

func TestInsertIfAbsentValidates(t *testing.T) {
	entry := sampleEntry()
	entry.TransactionID = " "
	_, err := NewPGStore(&stubDB{}).InsertIfAbsent(context.Background(), entry)
	require.Error(t, err)

	entry = sampleEntry()
	entry.Status = "refunded"
	_, err = NewPGStore(&stubDB{}).InsertIfAbsent(context.Background(), entry)
	require.Error(t, err)
}

func TestListConditions(t *testing.T) {
	tenantID := uuid.New()
	where, args := listConditions(tenantID, ListFilter{Status: StatusFailed, Search: "inv"})
	require.Equal(t, "tenant_id = $1 AND status = $2 AND (description ILIKE $3 OR transaction_id ILIKE $3)", where)
	require.Equal(t, []any{tenantID, "failed", "%inv%"}, args)
}

func TestNormaliseFilter(t *testing.T) {
	f := normaliseFilter(ListFilter{Page: 0, Limit: 500, Search: "  x "})
	require.Equal(t, 1, f.Page)
	require.Equal(t, MaxListLimit, f.Limit)
	require.Equal(t, "x", f.Search)

	require.Equal(t, DefaultListLimit, normaliseFilter(ListFilter{}).Limit)
}
