package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spendly/internal/core"
	"spendly/internal/ports"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	tx      *sql.Tx // set on the view handed to InTx callbacks
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers; the ledger has a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	if err := repo.SeedDefaults(context.Background(), nil, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.tx != nil {
		return nil
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx implements ports.Store. Nested calls join the outer transaction.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx ports.Store) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	view := &SQLiteRepository{db: r.db, queries: r.queries.WithTx(tx), tx: tx}

	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SeedDefaults inserts the protected "Misc" category and "Cash" account plus
// any predefined names. Existing rows are left untouched.
func (r *SQLiteRepository) SeedDefaults(ctx context.Context, categories, accounts []string) error {
	return r.InTx(ctx, func(tx ports.Store) error {
		q := tx.(*SQLiteRepository).queries

		def := core.DefaultCategory()
		if err := q.insertReferenceIfMissing(ctx, "categories", categoryRow(def)); err != nil {
			return fmt.Errorf("seed category %s: %w", def.Name, err)
		}
		acc := core.DefaultAccount()
		if err := q.insertReferenceIfMissing(ctx, "accounts", accountRow(acc)); err != nil {
			return fmt.Errorf("seed account %s: %w", acc.Name, err)
		}
		for _, name := range categories {
			c := core.Category{ID: core.SeedID("category", name), Name: name}
			if err := q.insertReferenceIfMissing(ctx, "categories", categoryRow(c)); err != nil {
				return fmt.Errorf("seed category %s: %w", name, err)
			}
		}
		for _, name := range accounts {
			a := core.Account{ID: core.SeedID("account", name), Name: name}
			if err := q.insertReferenceIfMissing(ctx, "accounts", accountRow(a)); err != nil {
				return fmt.Errorf("seed account %s: %w", name, err)
			}
		}
		return nil
	})
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func requireRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Templates

func (r *SQLiteRepository) FindDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error) {
	templates, err := r.queries.GetDueTemplates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("get due templates: %w", err)
	}
	return templates, nil
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	rt, err := r.queries.GetTemplate(ctx, id)
	if err != nil {
		return rt, fmt.Errorf("get template %s: %w", id, notFound(err))
	}
	return rt, nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error) {
	templates, err := r.queries.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	if err := r.queries.CreateTemplate(ctx, rt); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	slog.InfoContext(ctx, "Recurring template saved to SQLite",
		"id", rt.ID,
		"type", rt.Type.String(),
		"frequency", rt.Frequency.String(),
		"amount_cents", rt.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	if err := requireRow(r.queries.UpdateTemplate(ctx, rt)); err != nil {
		return fmt.Errorf("save template %s: %w", rt.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id string) error {
	if err := requireRow(r.queries.DeleteTemplate(ctx, id)); err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) NullifyTemplateCategory(ctx context.Context, categoryID string) (int64, error) {
	n, err := r.queries.NullifyTemplateCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("nullify template category: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountTemplatesByAccount(ctx context.Context, accountID string) (int64, error) {
	n, err := r.queries.CountTemplatesByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("count templates by account: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ReassignTemplateAccount(ctx context.Context, oldID, newID string) (int64, error) {
	n, err := r.queries.ReassignTemplateAccount(ctx, oldID, newID)
	if err != nil {
		return 0, fmt.Errorf("reassign template account: %w", err)
	}
	return n, nil
}

// Ledger

func (r *SQLiteRepository) insertEntry(ctx context.Context, e core.LedgerEntry, t core.TransactionType) error {
	e.Type = t
	if err := e.Validate(); err != nil {
		return err
	}
	if err := r.queries.InsertEntry(ctx, e); err != nil {
		return fmt.Errorf("create %s: %w", t, err)
	}
	slog.InfoContext(ctx, "Entry saved to SQLite",
		"id", e.ID,
		"type", t.String(),
		"amount_cents", e.Amount.Cents,
		"date", e.Date.Format("2006-01-02"))
	return nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.LedgerEntry) error {
	return r.insertEntry(ctx, e, core.Expense)
}

func (r *SQLiteRepository) InsertIncome(ctx context.Context, e core.LedgerEntry) error {
	return r.insertEntry(ctx, e, core.Income)
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id string, t core.TransactionType) (core.LedgerEntry, error) {
	e, err := r.queries.GetEntry(ctx, id, t)
	if err != nil {
		return e, fmt.Errorf("get %s %s: %w", t, id, notFound(err))
	}
	return e, nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, year, month int) ([]core.LedgerEntry, error) {
	start, end := core.MonthRange(year, month)
	expenses, err := r.queries.ListEntriesBetween(ctx, core.Expense, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	incomes, err := r.queries.ListEntriesBetween(ctx, core.Income, start, end)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return mergeByDate(expenses, incomes), nil
}

func mergeByDate(a, b []core.LedgerEntry) []core.LedgerEntry {
	out := make([]core.LedgerEntry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Date.Before(a[i].Date) || (b[j].Date.Equal(a[i].Date) && b[j].ID < a[i].ID) {
			out = append(out, b[j])
			j++
			continue
		}
		out = append(out, a[i])
		i++
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id string, t core.TransactionType) error {
	if err := requireRow(r.queries.DeleteEntry(ctx, id, t)); err != nil {
		return fmt.Errorf("delete %s %s: %w", t, id, err)
	}
	return nil
}

func (r *SQLiteRepository) ReassignAccount(ctx context.Context, oldID, newID string, at time.Time) (int64, error) {
	var total int64
	for _, t := range []core.TransactionType{core.Expense, core.Income} {
		n, err := r.queries.ReassignEntryAccount(ctx, t, oldID, newID, at)
		if err != nil {
			return total, fmt.Errorf("reassign %s account: %w", t, err)
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) NullifyEntryCategory(ctx context.Context, categoryID string, at time.Time) (int64, error) {
	var total int64
	for _, t := range []core.TransactionType{core.Expense, core.Income} {
		n, err := r.queries.NullifyEntryCategory(ctx, t, categoryID, at)
		if err != nil {
			return total, fmt.Errorf("nullify %s category: %w", t, err)
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) CountByCategory(ctx context.Context, categoryID string) (int64, error) {
	n, err := r.queries.CountEntries(ctx, "category_id", categoryID)
	if err != nil {
		return 0, fmt.Errorf("count entries by category: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	n, err := r.queries.CountEntries(ctx, "account_id", accountID)
	if err != nil {
		return 0, fmt.Errorf("count entries by account: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SumExpenses(ctx context.Context, categoryID *string, year, month int) (core.Money, error) {
	start, end := core.MonthRange(year, month)
	total, err := r.queries.SumExpenses(ctx, categoryID, start, end)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: total}, nil
}

// ReadMonthOverview returns totals and the per-category expense breakdown.
func (r *SQLiteRepository) ReadMonthOverview(ctx context.Context, year int, month int) (core.MonthOverview, error) {
	overview := core.MonthOverview{
		Year:  year,
		Month: month,
	}
	start, end := core.MonthRange(year, month)

	expenses, err := r.queries.SumExpenses(ctx, nil, start, end)
	if err != nil {
		return overview, fmt.Errorf("get month expense total: %w", err)
	}
	overview.TotalExpense = core.Money{Cents: expenses}

	incomes, err := r.queries.SumIncomes(ctx, start, end)
	if err != nil {
		return overview, fmt.Errorf("get month income total: %w", err)
	}
	overview.TotalIncome = core.Money{Cents: incomes}

	categorySums, err := r.queries.GetCategorySums(ctx, start, end)
	if err != nil {
		return overview, fmt.Errorf("get category sums: %w", err)
	}

	for _, cs := range categorySums {
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{
			CategoryID: stringPtr(cs.CategoryID),
			Name:       cs.Name.String,
			Amount:     core.Money{Cents: cs.Total},
		})
	}

	return overview, nil
}

// Tag associations

func (r *SQLiteRepository) AddTag(ctx context.Context, link core.TagLink) error {
	if _, err := r.GetTag(ctx, link.TagID); err != nil {
		return err
	}
	if _, err := r.GetEntry(ctx, link.EntryID, link.EntryType); err != nil {
		return err
	}
	if err := r.queries.AddTag(ctx, link); err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TagsForEntry(ctx context.Context, entryID string, t core.TransactionType) ([]core.Tag, error) {
	tags, err := r.queries.TagsForEntry(ctx, entryID, t)
	if err != nil {
		return nil, fmt.Errorf("tags for entry: %w", err)
	}
	return tags, nil
}

func (r *SQLiteRepository) DeleteAllForEntry(ctx context.Context, entryID string, t core.TransactionType) (int64, error) {
	n, err := r.queries.DeleteTagsForEntry(ctx, entryID, t)
	if err != nil {
		return 0, fmt.Errorf("delete tag links for entry: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAllForTag(ctx context.Context, tagID string) (int64, error) {
	n, err := r.queries.DeleteLinksForTag(ctx, tagID)
	if err != nil {
		return 0, fmt.Errorf("delete tag links for tag: %w", err)
	}
	return n, nil
}

// Reference data

func categoryRow(c core.Category) referenceRow {
	return referenceRow{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, IsCustom: c.IsCustom, IsDefault: c.IsDefault}
}

func accountRow(a core.Account) referenceRow {
	return referenceRow{ID: a.ID, Name: a.Name, Icon: a.Icon, Color: a.Color, IsCustom: a.IsCustom, IsDefault: a.IsDefault}
}

func (rr referenceRow) category() core.Category {
	return core.Category{ID: rr.ID, Name: rr.Name, Icon: rr.Icon, Color: rr.Color, IsCustom: rr.IsCustom, IsDefault: rr.IsDefault}
}

func (rr referenceRow) account() core.Account {
	return core.Account{ID: rr.ID, Name: rr.Name, Icon: rr.Icon, Color: rr.Color, IsCustom: rr.IsCustom, IsDefault: rr.IsDefault}
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	row, err := r.queries.getReference(ctx, "categories", id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, notFound(err))
	}
	return row.category(), nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.listReference(ctx, "categories")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, row := range rows {
		out[i] = row.category()
	}
	return out, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if err := r.queries.upsertReference(ctx, "categories", categoryRow(c)); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	if err := requireRow(r.queries.deleteByID(ctx, "categories", id)); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row, err := r.queries.getReference(ctx, "accounts", id)
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, notFound(err))
	}
	return row.account(), nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.queries.listReference(ctx, "accounts")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, len(rows))
	for i, row := range rows {
		out[i] = row.account()
	}
	return out, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	if err := r.queries.upsertReference(ctx, "accounts", accountRow(a)); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	if err := requireRow(r.queries.deleteByID(ctx, "accounts", id)); err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DefaultAccount(ctx context.Context) (core.Account, error) {
	row, err := r.queries.GetDefaultAccount(ctx)
	if err != nil {
		return core.Account{}, fmt.Errorf("get default account: %w", notFound(err))
	}
	return row.account(), nil
}

func (r *SQLiteRepository) GetTag(ctx context.Context, id string) (core.Tag, error) {
	t, err := r.queries.GetTag(ctx, id)
	if err != nil {
		return t, fmt.Errorf("get tag %s: %w", id, notFound(err))
	}
	return t, nil
}

func (r *SQLiteRepository) ListTags(ctx context.Context) ([]core.Tag, error) {
	tags, err := r.queries.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (r *SQLiteRepository) CreateTag(ctx context.Context, t core.Tag) error {
	if err := r.queries.CreateTag(ctx, t); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTag(ctx context.Context, id string) error {
	if err := requireRow(r.queries.deleteByID(ctx, "tags", id)); err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	return nil
}

// Budgets

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := r.queries.CreateBudget(ctx, b); err != nil {
		if isUniqueViolation(err) {
			return core.ErrBudgetExists
		}
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := r.queries.GetBudget(ctx, id)
	if err != nil {
		return b, fmt.Errorf("get budget %s: %w", id, notFound(err))
	}
	return b, nil
}

func (r *SQLiteRepository) FindBudget(ctx context.Context, categoryID *string, year, month int) (core.Budget, error) {
	b, err := r.queries.FindBudget(ctx, categoryID, year, month)
	if err != nil {
		return b, fmt.Errorf("find budget: %w", notFound(err))
	}
	return b, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	n, err := r.queries.UpdateBudget(ctx, b)
	if isUniqueViolation(err) {
		return core.ErrBudgetExists
	}
	if err := requireRow(n, err); err != nil {
		return fmt.Errorf("update budget %s: %w", b.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	if err := requireRow(r.queries.deleteByID(ctx, "budgets", id)); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) NullifyBudgetCategory(ctx context.Context, categoryID string) (int64, int64, error) {
	deleted, err := r.queries.DeleteCollidingCategoryBudgets(ctx, categoryID)
	if err != nil {
		return 0, 0, fmt.Errorf("delete colliding budgets: %w", err)
	}
	nullified, err := r.queries.NullifyBudgetCategory(ctx, categoryID)
	if err != nil {
		return 0, deleted, fmt.Errorf("nullify budget category: %w", err)
	}
	return nullified, deleted, nil
}
