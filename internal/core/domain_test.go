package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestParseFrequency(t *testing.T) {
	cases := []struct {
		in   string
		want Frequency
		ok   bool
	}{
		{"daily", Daily, true},
		{"Weekly", Weekly, true},
		{" monthly ", Monthly, true},
		{"yearly", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseFrequency(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Fatalf("ParseFrequency(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
			}
			if got.String() != strings.ToLower(strings.TrimSpace(tc.in)) {
				t.Errorf("String() = %q did not round trip %q", got.String(), tc.in)
			}
			continue
		}
		if !errors.Is(err, ErrUnknownFrequency) {
			t.Fatalf("ParseFrequency(%q) expected ErrUnknownFrequency, got %v", tc.in, err)
		}
	}
}

func TestParseTransactionType(t *testing.T) {
	if got, err := ParseTransactionType("expense"); err != nil || got != Expense {
		t.Fatalf("expense: got %v, %v", got, err)
	}
	if got, err := ParseTransactionType("INCOME"); err != nil || got != Income {
		t.Fatalf("income: got %v, %v", got, err)
	}
	if _, err := ParseTransactionType("transfer"); !errors.Is(err, ErrUnknownTransactionType) {
		t.Fatalf("expected ErrUnknownTransactionType, got %v", err)
	}
	if TransactionType(0).Valid() {
		t.Fatalf("zero value must be invalid")
	}
}

func TestRecurringTemplateValidate(t *testing.T) {
	good := RecurringTemplate{
		Type:        Expense,
		Amount:      Money{Cents: 1500},
		Description: "Rent",
		Frequency:   Monthly,
		NextDate:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RecurringTemplate)
		want   error
	}{
		{"zero amount", func(rt *RecurringTemplate) { rt.Amount = Money{} }, ErrInvalidAmount},
		{"empty description", func(rt *RecurringTemplate) { rt.Description = "  " }, ErrEmptyDescription},
		{"long description", func(rt *RecurringTemplate) { rt.Description = strings.Repeat("x", 201) }, ErrDescriptionTooLong},
		{"unknown frequency", func(rt *RecurringTemplate) { rt.Frequency = 9 }, ErrUnknownFrequency},
		{"unknown type", func(rt *RecurringTemplate) { rt.Type = 0 }, ErrUnknownTransactionType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := good
			tt.mutate(&rt)
			if err := rt.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecurringTemplateIsDue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	rt := RecurringTemplate{NextDate: now}
	if !rt.IsDue(now) {
		t.Fatalf("template due exactly at now must be due")
	}
	rt.NextDate = now.Add(time.Nanosecond)
	if rt.IsDue(now) {
		t.Fatalf("template in the future must not be due")
	}
	if !rt.NeverRun() {
		t.Fatalf("template without LastProcessed never ran")
	}
}

func TestLedgerEntryValidate(t *testing.T) {
	e := LedgerEntry{
		Type:      Income,
		Amount:    Money{Cents: 100},
		AccountID: "acc",
		Date:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	e.AccountID = ""
	if err := e.Validate(); !errors.Is(err, ErrMissingAccount) {
		t.Fatalf("expected ErrMissingAccount, got %v", err)
	}
}

func TestBudgetValidate(t *testing.T) {
	b := Budget{Amount: Money{Cents: 10000}, Month: 2, Year: 2025}
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !b.IsOverall() {
		t.Fatalf("budget without category is overall")
	}
	b.Month = 13
	if err := b.Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(2024, 12)
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %s", start)
	}
	if !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %s", end)
	}
}

func TestAsStorageFailure(t *testing.T) {
	if AsStorageFailure("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	base := errors.New("disk full")
	err := AsStorageFailure("insert", base)
	var sf *StorageFailure
	if !errors.As(err, &sf) || sf.Op != "insert" || !errors.Is(err, base) {
		t.Fatalf("expected StorageFailure wrapping base, got %v", err)
	}
	pv := &PolicyViolation{Entity: "account", ID: "a", Reason: "default"}
	if got := AsStorageFailure("delete", pv); got != error(pv) {
		t.Fatalf("policy violation must pass through unchanged, got %v", got)
	}
}
