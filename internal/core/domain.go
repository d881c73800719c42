package core

import (
	"fmt"
	"strings"
	"time"
)

// TransactionType distinguishes the two ledger tables. The zero value is invalid.
type TransactionType uint8

const (
	Expense TransactionType = iota + 1
	Income
)

// Frequency is the repetition rule of a recurring template. The zero value is invalid.
type Frequency uint8

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
)

const maxDescriptionLen = 200

type (
	Money struct {
		Cents int64
	}

	RecurringTemplate struct {
		ID            string
		Type          TransactionType
		Amount        Money
		CategoryID    *string // nil means uncategorized
		AccountID     *string // nil means the default account
		Description   string
		Frequency     Frequency
		NextDate      time.Time
		LastProcessed *time.Time // nil means never run
		CreatedAt     time.Time
	}

	LedgerEntry struct {
		ID          string
		Type        TransactionType
		Amount      Money
		CategoryID  *string
		AccountID   string
		Date        time.Time
		Description string
		CreatedAt   time.Time
		ModifiedAt  time.Time
	}

	Category struct {
		ID        string
		Name      string
		Icon      string
		Color     string
		IsCustom  bool
		IsDefault bool // the protected "Misc" category
	}

	Account struct {
		ID        string
		Name      string
		Icon      string
		Color     string
		IsCustom  bool
		IsDefault bool
	}

	Tag struct {
		ID    string
		Name  string
		Color string
	}

	// TagLink is one row of the entry/tag join relation.
	TagLink struct {
		EntryID   string
		EntryType TransactionType
		TagID     string
	}

	Budget struct {
		ID          string
		CategoryID  *string // nil means the overall budget for the month
		Amount      Money
		Month       int // 1-12
		Year        int
		Notified75  bool
		Notified100 bool
	}
)

func (t TransactionType) String() string {
	switch t {
	case Expense:
		return "expense"
	case Income:
		return "income"
	default:
		return fmt.Sprintf("TransactionType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the declared constants.
func (t TransactionType) Valid() bool { return t == Expense || t == Income }

// ParseTransactionType maps the persisted name back to the enum.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense":
		return Expense, nil
	case "income":
		return Income, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTransactionType, s)
	}
}

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("Frequency(%d)", uint8(f))
	}
}

// Valid reports whether f is one of the declared constants.
func (f Frequency) Valid() bool { return f >= Daily && f <= Monthly }

// ParseFrequency maps the persisted name back to the enum. Unknown names fail
// instead of defaulting to Monthly.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsDue reports whether the template's next occurrence is at or before now.
func (rt RecurringTemplate) IsDue(now time.Time) bool {
	return !rt.NextDate.After(now)
}

// NeverRun reports whether the engine has not processed the template yet.
func (rt RecurringTemplate) NeverRun() bool {
	return rt.LastProcessed == nil
}

func (rt RecurringTemplate) Validate() error {
	if !rt.Type.Valid() {
		return ErrUnknownTransactionType
	}
	if !rt.Frequency.Valid() {
		return ErrUnknownFrequency
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if err := validateDescription(rt.Description); err != nil {
		return err
	}
	if rt.NextDate.IsZero() {
		return fmt.Errorf("next date cannot be zero")
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if !e.Type.Valid() {
		return ErrUnknownTransactionType
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.AccountID) == "" {
		return ErrMissingAccount
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date cannot be zero")
	}
	if len(e.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

func (b Budget) Validate() error {
	if b.Month < 1 || b.Month > 12 {
		return ErrInvalidMonth
	}
	if b.Year < 1 {
		return fmt.Errorf("invalid year %d", b.Year)
	}
	return b.Amount.Validate()
}

// IsOverall reports whether the budget caps all categories for its month.
func (b Budget) IsOverall() bool { return b.CategoryID == nil }

func validateDescription(d string) error {
	if len(strings.TrimSpace(d)) == 0 {
		return ErrEmptyDescription
	}
	if len(d) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// MonthRange returns the half-open UTC interval [start, end) covering a calendar month.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
