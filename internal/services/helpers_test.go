package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"spendly/internal/core"
	"spendly/internal/ports"
	"spendly/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

// faultyStore injects errors into selected store calls, including inside
// transactions.
type faultyStore struct {
	ports.Store
	failInsert        func(e core.LedgerEntry) error
	failSave          func(rt core.RecurringTemplate) error
	failDeleteAccount error
	failDefault       error
}

func (f *faultyStore) wrap(s ports.Store) *faultyStore {
	c := *f
	c.Store = s
	return &c
}

func (f *faultyStore) InTx(ctx context.Context, fn func(tx ports.Store) error) error {
	return f.Store.InTx(ctx, func(tx ports.Store) error {
		return fn(f.wrap(tx))
	})
}

func (f *faultyStore) InsertExpense(ctx context.Context, e core.LedgerEntry) error {
	if f.failInsert != nil {
		if err := f.failInsert(e); err != nil {
			return err
		}
	}
	return f.Store.InsertExpense(ctx, e)
}

func (f *faultyStore) InsertIncome(ctx context.Context, e core.LedgerEntry) error {
	if f.failInsert != nil {
		if err := f.failInsert(e); err != nil {
			return err
		}
	}
	return f.Store.InsertIncome(ctx, e)
}

func (f *faultyStore) SaveTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	if f.failSave != nil {
		if err := f.failSave(rt); err != nil {
			return err
		}
	}
	return f.Store.SaveTemplate(ctx, rt)
}

func (f *faultyStore) DeleteAccount(ctx context.Context, id string) error {
	if f.failDeleteAccount != nil {
		return f.failDeleteAccount
	}
	return f.Store.DeleteAccount(ctx, id)
}

func (f *faultyStore) DefaultAccount(ctx context.Context) (core.Account, error) {
	if f.failDefault != nil {
		return core.Account{}, f.failDefault
	}
	return f.Store.DefaultAccount(ctx)
}

// recordingNotifier captures every event it is given.
type recordingNotifier struct {
	mu        sync.Mutex
	entries   []core.LedgerEntry
	crossings []core.ThresholdCrossing
	failures  []core.MaterializationFailure
}

func (n *recordingNotifier) NotifyEntryRecorded(_ context.Context, e core.LedgerEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, e)
	return nil
}

func (n *recordingNotifier) NotifyBudgetThreshold(_ context.Context, c core.ThresholdCrossing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.crossings = append(n.crossings, c)
	return nil
}

func (n *recordingNotifier) NotifyMaterializationFailure(_ context.Context, f core.MaterializationFailure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, f)
	return nil
}

func (n *recordingNotifier) thresholds() []core.Threshold {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Threshold
	for _, c := range n.crossings {
		out = append(out, c.Threshold)
	}
	return out
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New([]string{"Food", "Rent"}, []string{"Bank"})
	return s
}

func categoryID(name string) string { return core.SeedID("category", name) }
func accountID(name string) string  { return core.SeedID("account", name) }

func mustCreateTemplate(t *testing.T, s ports.Store, rt core.RecurringTemplate) core.RecurringTemplate {
	t.Helper()
	if rt.Type == 0 {
		rt.Type = core.Expense
	}
	if rt.Amount.IsZero() {
		rt.Amount = core.Money{Cents: 1500}
	}
	if rt.Description == "" {
		rt.Description = "Template " + rt.ID
	}
	if rt.Frequency == 0 {
		rt.Frequency = core.Monthly
	}
	if err := s.CreateTemplate(context.Background(), rt); err != nil {
		t.Fatalf("create template %s: %v", rt.ID, err)
	}
	return rt
}

func mustRecordExpense(t *testing.T, s ports.Store, id string, cents int64, category *string, account string, date time.Time) {
	t.Helper()
	err := s.InsertExpense(context.Background(), core.LedgerEntry{
		ID: id, Amount: core.Money{Cents: cents}, CategoryID: category, AccountID: account,
		Date: date, CreatedAt: date, ModifiedAt: date,
	})
	if err != nil {
		t.Fatalf("insert expense %s: %v", id, err)
	}
}

func countEntries(t *testing.T, s ports.Store, months ...time.Time) int {
	t.Helper()
	n := 0
	for _, m := range months {
		entries, err := s.ListEntries(context.Background(), m.Year(), int(m.Month()))
		if err != nil {
			t.Fatalf("list entries: %v", err)
		}
		n += len(entries)
	}
	return n
}

// lastMonths returns the first instant of each of the n months ending at t.
func lastMonths(t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := n - 1; i >= 0; i-- {
		out = append(out, start.AddDate(0, -i, 0))
	}
	return out
}
