// Package ports declares the collaborator interfaces the ledger services
// consume. Storage backends and notification adapters implement them.
package ports

import (
	"context"
	"time"

	"spendly/internal/core"
)

// Ports for outbound adapters.
type (
	// TemplateStore persists recurring templates.
	TemplateStore interface {
		// FindDueTemplates returns templates with NextDate <= now ordered by NextDate then ID.
		FindDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error)
		GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error)
		ListTemplates(ctx context.Context) ([]core.RecurringTemplate, error)
		CreateTemplate(ctx context.Context, rt core.RecurringTemplate) error
		// SaveTemplate overwrites an existing template; core.ErrNotFound if it is gone.
		SaveTemplate(ctx context.Context, rt core.RecurringTemplate) error
		DeleteTemplate(ctx context.Context, id string) error
		NullifyTemplateCategory(ctx context.Context, categoryID string) (int64, error)
		CountTemplatesByAccount(ctx context.Context, accountID string) (int64, error)
		ReassignTemplateAccount(ctx context.Context, oldID, newID string) (int64, error)
	}

	// LedgerStore persists expenses and incomes and answers aggregate queries.
	LedgerStore interface {
		InsertExpense(ctx context.Context, e core.LedgerEntry) error
		InsertIncome(ctx context.Context, e core.LedgerEntry) error
		GetEntry(ctx context.Context, id string, t core.TransactionType) (core.LedgerEntry, error)
		// ListEntries returns both expenses and incomes dated inside the month, oldest first.
		ListEntries(ctx context.Context, year, month int) ([]core.LedgerEntry, error)
		DeleteEntry(ctx context.Context, id string, t core.TransactionType) error
		// ReassignAccount moves every expense and income of oldID to newID and
		// stamps modified_at. It returns the number of rows touched.
		ReassignAccount(ctx context.Context, oldID, newID string, at time.Time) (int64, error)
		// NullifyEntryCategory clears the category on every expense and income
		// that references it and stamps modified_at.
		NullifyEntryCategory(ctx context.Context, categoryID string, at time.Time) (int64, error)
		CountByCategory(ctx context.Context, categoryID string) (int64, error)
		CountByAccount(ctx context.Context, accountID string) (int64, error)
		// SumExpenses totals the month's expenses; a nil category sums all of them.
		SumExpenses(ctx context.Context, categoryID *string, year, month int) (core.Money, error)
		ReadMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error)
	}

	// TagAssociationStore maintains the entry/tag join relation.
	TagAssociationStore interface {
		AddTag(ctx context.Context, link core.TagLink) error
		TagsForEntry(ctx context.Context, entryID string, t core.TransactionType) ([]core.Tag, error)
		DeleteAllForEntry(ctx context.Context, entryID string, t core.TransactionType) (int64, error)
		DeleteAllForTag(ctx context.Context, tagID string) (int64, error)
	}

	// ReferenceStore holds categories, accounts and tags.
	ReferenceStore interface {
		GetCategory(ctx context.Context, id string) (core.Category, error)
		ListCategories(ctx context.Context) ([]core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, id string) error

		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context) ([]core.Account, error)
		CreateAccount(ctx context.Context, a core.Account) error
		DeleteAccount(ctx context.Context, id string) error
		// DefaultAccount returns the account flagged IsDefault.
		DefaultAccount(ctx context.Context) (core.Account, error)

		GetTag(ctx context.Context, id string) (core.Tag, error)
		ListTags(ctx context.Context) ([]core.Tag, error)
		CreateTag(ctx context.Context, t core.Tag) error
		DeleteTag(ctx context.Context, id string) error
	}

	// BudgetStore persists monthly budgets.
	BudgetStore interface {
		// CreateBudget fails with core.ErrBudgetExists when (category, month, year) is taken.
		CreateBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		// FindBudget looks up the budget for a category (nil = overall) and period.
		FindBudget(ctx context.Context, categoryID *string, year, month int) (core.Budget, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, id string) error
		// NullifyBudgetCategory turns the category's budgets into overall budgets.
		// A budget whose period already has an overall budget is deleted instead.
		// It returns how many were nullified and how many were deleted.
		NullifyBudgetCategory(ctx context.Context, categoryID string) (nullified, deleted int64, err error)
	}

	// Store is the full persistence surface plus its transaction boundary.
	Store interface {
		TemplateStore
		LedgerStore
		TagAssociationStore
		ReferenceStore
		BudgetStore

		// InTx runs fn against a transactional view of the store. The work is
		// committed when fn returns nil and rolled back otherwise.
		InTx(ctx context.Context, fn func(tx Store) error) error
	}

	// Notifier delivers ledger events to whatever the host uses for notifications.
	Notifier interface {
		NotifyEntryRecorded(ctx context.Context, e core.LedgerEntry) error
		NotifyBudgetThreshold(ctx context.Context, c core.ThresholdCrossing) error
		NotifyMaterializationFailure(ctx context.Context, f core.MaterializationFailure) error
	}

	// EntryObserver is told about entries after they are committed.
	EntryObserver interface {
		EntriesRecorded(ctx context.Context, entries []core.LedgerEntry)
	}
)

// InsertEntry dispatches to the expense or income table.
func InsertEntry(ctx context.Context, s LedgerStore, e core.LedgerEntry) error {
	switch e.Type {
	case core.Expense:
		return s.InsertExpense(ctx, e)
	case core.Income:
		return s.InsertIncome(ctx, e)
	default:
		return core.ErrUnknownTransactionType
	}
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) NotifyEntryRecorded(context.Context, core.LedgerEntry) error { return nil }
func (NopNotifier) NotifyBudgetThreshold(context.Context, core.ThresholdCrossing) error {
	return nil
}
func (NopNotifier) NotifyMaterializationFailure(context.Context, core.MaterializationFailure) error {
	return nil
}
