package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "payment_logs_transaction_id_key"}

	require.True(t, IsUniqueViolation(dup, ""))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup), "payment_logs_transaction_id_key"))
	require.False(t, IsUniqueViolation(dup, "invoices_tenant_number_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(fmt.Errorf("boom"), ""))
}
