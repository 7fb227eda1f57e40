package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// ErrBatchAborted marks valid rows that were rolled back because another row
// of the same batch failed in the store.
var ErrBatchAborted = errors.New("finance: batch rolled back")

// ValidationError reports malformed or missing input. It is never retried.
type ValidationError struct {
	RecordID string
	Row      int
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	msg := "finance: invalid"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	if e.RecordID != "" {
		msg += fmt.Sprintf(" (record %s)", e.RecordID)
	}
	return msg
}

// Is matches shared.ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == shared.ErrValidation }

// NotFoundError reports that the target does not exist in the expected state.
type NotFoundError struct {
	RecordID string
	State    State
}

func (e *NotFoundError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("finance: record %s not found", e.RecordID)
	}
	return fmt.Sprintf("finance: no %s record %s", e.State, e.RecordID)
}

// Is matches shared.ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == shared.ErrNotFound }

// StoreUnavailableError wraps a transient persistence failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("finance: %s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Is matches shared.ErrStoreUnavailable.
func (e *StoreUnavailableError) Is(target error) bool { return target == shared.ErrStoreUnavailable }

// Retryable reports whether a caller may retry after err.
func Retryable(err error) bool {
	return errors.Is(err, shared.ErrStoreUnavailable)
}

// mapStoreError classifies a driver error for op on record id.
func mapStoreError(op, id string, want State, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation *ValidationError
		notFound   *NotFoundError
		store      *StoreUnavailableError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) || errors.As(err, &store) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{RecordID: id, State: want}
	}
	var pgErr *pgconn.PgError
	// Class 22 is a data exception, class 23 an integrity violation. Both are
	// caused by the input and never succeed on retry.
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && (pgErr.Code[:2] == "22" || pgErr.Code[:2] == "23") {
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}

		return &ValidationError{RecordID: id, Field: field, Reason: pgErr.Message}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}
