package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendly/internal/core"
	"spendly/internal/ports"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func ptr(s string) *string { return &s }

func TestMigrationsAndSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
	require.False(t, dirty)

	ctx := context.Background()
	acc, err := repo.DefaultAccount(ctx)
	require.NoError(t, err)
	require.Equal(t, core.DefaultAccountName, acc.Name)
	require.True(t, acc.IsDefault)

	// Seeding again must not duplicate rows.
	require.NoError(t, repo.SeedDefaults(ctx, []string{"Food"}, []string{"Bank"}))
	require.NoError(t, repo.SeedDefaults(ctx, []string{"Food"}, []string{"Bank"}))
	cats, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	accs, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accs, 2)
}

func TestTemplateRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	next := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)

	rt := core.RecurringTemplate{
		ID:          "tpl-1",
		Type:        core.Income,
		Amount:      core.Money{Cents: 250000},
		CategoryID:  ptr("salary"),
		Description: "Salary",
		Frequency:   core.Monthly,
		NextDate:    next,
		CreatedAt:   next.AddDate(0, -1, 0),
	}
	require.NoError(t, repo.CreateTemplate(ctx, rt))

	got, err := repo.GetTemplate(ctx, "tpl-1")
	require.NoError(t, err)
	require.Equal(t, core.Income, got.Type)
	require.Equal(t, core.Monthly, got.Frequency)
	require.True(t, got.NextDate.Equal(next))
	require.Nil(t, got.LastProcessed)
	require.Nil(t, got.AccountID)
	require.Equal(t, "salary", *got.CategoryID)

	processed := next.Add(time.Hour)
	got.LastProcessed = &processed
	got.NextDate = time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveTemplate(ctx, got))

	due, err := repo.FindDueTemplates(ctx, time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1, "next_date equal to now is due")
	require.True(t, due[0].LastProcessed.Equal(processed))

	due, err = repo.FindDueTemplates(ctx, time.Date(2025, 2, 28, 7, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, due)

	err = repo.SaveTemplate(ctx, core.RecurringTemplate{ID: "missing"})
	require.True(t, errors.Is(err, core.ErrNotFound))
}

func TestUnknownEnumsScanAsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (id, transaction_type, amount_cents, description, frequency, next_date, created_at)
		 VALUES ('bad', 'transfer', 100, 'x', 'fortnightly', ?, ?)`,
		encodeTime(time.Now()), encodeTime(time.Now()))
	require.NoError(t, err)

	rt, err := repo.GetTemplate(ctx, "bad")
	require.NoError(t, err)
	require.False(t, rt.Frequency.Valid())
	require.False(t, rt.Type.Valid())

	all, err := repo.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCountTemplatesByAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bank := "bank"
	require.NoError(t, repo.CreateAccount(ctx, core.Account{ID: bank, Name: "Bank"}))
	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.CreateTemplate(ctx, core.RecurringTemplate{
			ID: id, Type: core.Expense, Amount: core.Money{Cents: 100}, AccountID: &bank,
			Description: id, Frequency: core.Weekly, NextDate: now, CreatedAt: now,
		}))
	}
	require.NoError(t, repo.CreateTemplate(ctx, core.RecurringTemplate{
		ID: "c", Type: core.Expense, Amount: core.Money{Cents: 100},
		Description: "c", Frequency: core.Weekly, NextDate: now, CreatedAt: now,
	}))

	n, err := repo.CountTemplatesByAccount(ctx, bank)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestInTxRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, err := repo.DefaultAccount(ctx)
	require.NoError(t, err)
	boom := errors.New("boom")

	err = repo.InTx(ctx, func(tx ports.Store) error {
		require.NoError(t, tx.InsertExpense(ctx, core.LedgerEntry{
			ID: "e1", Amount: core.Money{Cents: 100}, AccountID: acc.ID,
			Date: time.Now(), CreatedAt: time.Now(), ModifiedAt: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetEntry(ctx, "e1", core.Expense)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestReassignAndNullify(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateAccount(ctx, core.Account{ID: "old", Name: "Old", IsCustom: true}))
	require.NoError(t, repo.CreateAccount(ctx, core.Account{ID: "new", Name: "New", IsCustom: true}))
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: "food", Name: "Food", IsCustom: true}))

	entry := func(id string, typ core.TransactionType) core.LedgerEntry {
		return core.LedgerEntry{
			ID: id, Type: typ, Amount: core.Money{Cents: 500}, CategoryID: ptr("food"), AccountID: "old",
			Date: created, CreatedAt: created, ModifiedAt: created,
		}
	}
	require.NoError(t, repo.InsertExpense(ctx, entry("e1", core.Expense)))
	require.NoError(t, repo.InsertIncome(ctx, entry("i1", core.Income)))

	n, err := repo.CountByAccount(ctx, "old")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = repo.ReassignAccount(ctx, "old", "new", later)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	e, err := repo.GetEntry(ctx, "e1", core.Expense)
	require.NoError(t, err)
	require.Equal(t, "new", e.AccountID)
	require.True(t, e.ModifiedAt.Equal(later))
	require.True(t, e.CreatedAt.Equal(created))

	n, err = repo.NullifyEntryCategory(ctx, "food", later)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	n, err = repo.CountByCategory(ctx, "food")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBudgetUniquenessIncludesOverall(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBudget(ctx, core.Budget{ID: "o1", Amount: core.Money{Cents: 1000}, Month: 3, Year: 2025}))
	err := repo.CreateBudget(ctx, core.Budget{ID: "o2", Amount: core.Money{Cents: 1000}, Month: 3, Year: 2025})
	require.ErrorIs(t, err, core.ErrBudgetExists)

	require.NoError(t, repo.CreateBudget(ctx, core.Budget{ID: "c1", CategoryID: ptr("food"), Amount: core.Money{Cents: 500}, Month: 3, Year: 2025}))
	require.NoError(t, repo.CreateBudget(ctx, core.Budget{ID: "c2", CategoryID: ptr("food"), Amount: core.Money{Cents: 500}, Month: 4, Year: 2025}))

	b, err := repo.FindBudget(ctx, nil, 2025, 3)
	require.NoError(t, err)
	require.Equal(t, "o1", b.ID)

	b.Notified75 = true
	require.NoError(t, repo.UpdateBudget(ctx, b))
	b, err = repo.GetBudget(ctx, "o1")
	require.NoError(t, err)
	require.True(t, b.Notified75)
	require.False(t, b.Notified100)

	nullified, deleted, err := repo.NullifyBudgetCategory(ctx, "food")
	require.NoError(t, err)
	require.EqualValues(t, 1, nullified)
	require.EqualValues(t, 1, deleted)

	_, err = repo.GetBudget(ctx, "c1")
	require.ErrorIs(t, err, core.ErrNotFound)
	april, err := repo.FindBudget(ctx, nil, 2025, 4)
	require.NoError(t, err)
	require.Equal(t, "c2", april.ID)
}

func TestMonthOverview(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, err := repo.DefaultAccount(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: "food", Name: "Food"}))

	day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 12, 0, 0, 0, time.UTC) }
	entries := []core.LedgerEntry{
		{ID: "a", Amount: core.Money{Cents: 1000}, CategoryID: ptr("food"), Date: day(3, 1)},
		{ID: "b", Amount: core.Money{Cents: 250}, CategoryID: ptr("food"), Date: day(3, 31)},
		{ID: "c", Amount: core.Money{Cents: 99}, Date: day(3, 15)},
		{ID: "d", Amount: core.Money{Cents: 7000}, Date: day(4, 1)},
	}
	for _, e := range entries {
		e.AccountID = acc.ID
		e.CreatedAt, e.ModifiedAt = e.Date, e.Date
		require.NoError(t, repo.InsertExpense(ctx, e))
	}
	require.NoError(t, repo.InsertIncome(ctx, core.LedgerEntry{
		ID: "inc", Amount: core.Money{Cents: 100000}, AccountID: acc.ID, Date: day(3, 27),
		CreatedAt: day(3, 27), ModifiedAt: day(3, 27),
	}))

	ov, err := repo.ReadMonthOverview(ctx, 2025, 3)
	require.NoError(t, err)
	require.EqualValues(t, 1349, ov.TotalExpense.Cents)
	require.EqualValues(t, 100000, ov.TotalIncome.Cents)
	require.Len(t, ov.ByCategory, 2)
	require.Equal(t, "Food", ov.ByCategory[0].Name)
	require.EqualValues(t, 1250, ov.ByCategory[0].Amount.Cents)
	require.Nil(t, ov.ByCategory[1].CategoryID)

	listed, err := repo.ListEntries(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	require.Equal(t, "a", listed[0].ID)
	require.Equal(t, core.Income, listed[2].Type)
}

func TestTagLinks(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	acc, err := repo.DefaultAccount(ctx)
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, repo.CreateTag(ctx, core.Tag{ID: "t1", Name: "trip"}))
	require.NoError(t, repo.InsertExpense(ctx, core.LedgerEntry{
		ID: "e1", Amount: core.Money{Cents: 1}, AccountID: acc.ID, Date: now, CreatedAt: now, ModifiedAt: now,
	}))
	link := core.TagLink{EntryID: "e1", EntryType: core.Expense, TagID: "t1"}
	require.NoError(t, repo.AddTag(ctx, link))
	require.NoError(t, repo.AddTag(ctx, link), "linking twice is a no-op")

	tags, err := repo.TagsForEntry(ctx, "e1", core.Expense)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	n, err := repo.DeleteAllForEntry(ctx, "e1", core.Expense)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	err = repo.AddTag(ctx, core.TagLink{EntryID: "nope", EntryType: core.Expense, TagID: "t1"})
	require.ErrorIs(t, err, core.ErrNotFound)
}
