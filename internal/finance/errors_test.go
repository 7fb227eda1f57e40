package finance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

func TestMapStoreError(t *testing.T) {
	assert.NoError(t, mapStoreError("get", "r1", "", nil))

	cases := []struct {
		name      string
		err       error
		target    error
		retryable bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, target: shared.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), target: shared.ErrNotFound},
		{name: "check violation", err: &pgconn.PgError{Code: "23514", ConstraintName: "deletion_complete"}, target: shared.ErrValidation},
		{name: "not null", err: &pgconn.PgError{Code: "23502", ColumnName: "site_id"}, target: shared.ErrValidation},
		{name: "numeric overflow", err: &pgconn.PgError{Code: "22003", Message: "numeric field overflow"}, target: shared.ErrValidation},
		{name: "invalid text", err: &pgconn.PgError{Code: "22P02"}, target: shared.ErrValidation},
		{name: "connection", err: errors.New("dial tcp: refused"), target: shared.ErrStoreUnavailable, retryable: true},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, target: shared.ErrStoreUnavailable, retryable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapStoreError("save", "r1", StateActive, tc.err)
			require.Error(t, got)
			assert.ErrorIs(t, got, tc.target)
			assert.Equal(t, tc.retryable, Retryable(got))
		})
	}
}

func TestMapStoreErrorKeepsFields(t *testing.T) {
	var v *ValidationError
	require.ErrorAs(t, mapStoreError("save", "r1", StateActive, &pgconn.PgError{Code: "23502", ColumnName: "site_id"}), &v)
	assert.Equal(t, "site_id", v.Field)
	assert.Equal(t, "r1", v.RecordID)

	var nf *NotFoundError
	require.ErrorAs(t, mapStoreError("restore", "r2", StateDeleted, pgx.ErrNoRows), &nf)
	assert.Equal(t, StateDeleted, nf.State)
}

func TestMapStoreErrorPassthrough(t *testing.T) {
	assert.ErrorIs(t, mapStoreError("get", "r1", "", context.Canceled), context.Canceled)
	assert.False(t, Retryable(mapStoreError("get", "r1", "", context.Canceled)))

	already := &ValidationError{Field: "reason", Reason: "is required"}
	assert.Same(t, already, mapStoreError("delete", "r1", "", already))
}
