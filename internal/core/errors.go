package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyDescription       = errors.New("empty description")
	ErrDescriptionTooLong     = errors.New("description too long (max 200 characters)")
	ErrUnknownFrequency       = errors.New("unknown frequency")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrInvalidMonth           = errors.New("invalid month")
	ErrNotFound               = errors.New("not found")
	ErrBudgetExists           = errors.New("budget already exists for category and period")
	ErrMissingAccount         = errors.New("entry has no account")
)

// FormatError reports a malformed monetary input string.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid amount %q: %s", e.Input, e.Reason)
}

// Unwrap lets callers match any FormatError with errors.Is(err, ErrInvalidAmount).
func (e *FormatError) Unwrap() error { return ErrInvalidAmount }

// PolicyViolation reports a deletion that breaks a referential rule.
type PolicyViolation struct {
	Entity string
	ID     string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation: cannot delete %s %s: %s", e.Entity, e.ID, e.Reason)
}

// MaterializationFailure records one occurrence that could not be written.
type MaterializationFailure struct {
	TemplateID string
	Occurrence time.Time
	Err        error
}

func (f MaterializationFailure) Error() string {
	return fmt.Sprintf("materialize template %s at %s: %v",
		f.TemplateID, f.Occurrence.Format("2006-01-02"), f.Err)
}

func (f MaterializationFailure) Unwrap() error { return f.Err }

// StorageFailure wraps a collaborator I/O error with the operation that failed.
type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// AsStorageFailure wraps err unless it already carries a taxonomy type the
// caller must see unchanged.
func AsStorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var pv *PolicyViolation
	var sf *StorageFailure
	if errors.As(err, &pv) || errors.As(err, &sf) {
		return err
	}
	return &StorageFailure{Op: op, Err: err}
}
