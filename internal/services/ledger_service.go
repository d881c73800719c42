package services

import (
	"context"
	"fmt"
	"time"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/ports"
)

// RecordEntryInput describes a manually entered expense or income.
type RecordEntryInput struct {
	Type        core.TransactionType
	Amount      core.Money
	CategoryID  *string
	AccountID   string // empty means the default account
	Date        time.Time
	Description string
	TagIDs      []string
}

// LedgerService records entries and fans them out to the notifier and the
// budget tracker. It also observes entries materialized by the engine.
type LedgerService struct {
	store    ports.Store
	notifier ports.Notifier
	budgets  *BudgetTracker
	logger   *log.Logger
}

var _ ports.EntryObserver = (*LedgerService)(nil)

func NewLedgerService(store ports.Store, notifier ports.Notifier, budgets *BudgetTracker) *LedgerService {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	return &LedgerService{
		store:    store,
		notifier: notifier,
		budgets:  budgets,
		logger:   log.Default(log.ComponentLedger),
	}
}

// RecordEntry saves the entry and its tags atomically, then publishes it and
// recalculates the affected budgets.
func (s *LedgerService) RecordEntry(ctx context.Context, in RecordEntryInput, now time.Time) (core.LedgerEntry, error) {
	entry := core.LedgerEntry{
		ID:          core.NewID(),
		Type:        in.Type,
		Amount:      in.Amount,
		CategoryID:  in.CategoryID,
		AccountID:   in.AccountID,
		Date:        in.Date,
		Description: in.Description,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if entry.Date.IsZero() {
		entry.Date = now
	}

	err := s.store.InTx(ctx, func(tx ports.Store) error {
		if entry.AccountID == "" {
			acc, err := tx.DefaultAccount(ctx)
			if err != nil {
				return fmt.Errorf("resolve default account: %w", err)
			}
			entry.AccountID = acc.ID
		} else if _, err := tx.GetAccount(ctx, entry.AccountID); err != nil {
			return err
		}
		if entry.CategoryID != nil {
			if _, err := tx.GetCategory(ctx, *entry.CategoryID); err != nil {
				return err
			}
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		if err := ports.InsertEntry(ctx, tx, entry); err != nil {
			return err
		}
		for _, tagID := range in.TagIDs {
			if err := tx.AddTag(ctx, core.TagLink{EntryID: entry.ID, EntryType: entry.Type, TagID: tagID}); err != nil {
				return fmt.Errorf("tag %s: %w", tagID, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("record %s: %w", in.Type, err)
	}

	s.logger.InfoContext(ctx, "Entry recorded",
		log.NewFields().WithEntry(entry).WithOperation(log.OpCreate).ToSlice()...)

	s.EntriesRecorded(ctx, []core.LedgerEntry{entry})
	return entry, nil
}

// TagEntry links an existing entry to an existing tag.
func (s *LedgerService) TagEntry(ctx context.Context, entryID string, t core.TransactionType, tagID string) error {
	if err := s.store.AddTag(ctx, core.TagLink{EntryID: entryID, EntryType: t, TagID: tagID}); err != nil {
		return fmt.Errorf("tag entry %s: %w", entryID, err)
	}
	return nil
}

type budgetPeriod struct {
	category    string
	hasCategory bool
	year, month int
}

// EntriesRecorded publishes every entry and recalculates each distinct
// budget period touched by the expenses among them. Failures are logged; the
// entries are already committed.
func (s *LedgerService) EntriesRecorded(ctx context.Context, entries []core.LedgerEntry) {
	seen := map[budgetPeriod]struct{}{}
	var periods []budgetPeriod

	for _, e := range entries {
		if err := s.notifier.NotifyEntryRecorded(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish entry",
				log.FieldEntryID, e.ID,
				log.FieldError, err)
		}
		if e.Type != core.Expense {
			continue
		}
		d := e.Date.UTC()
		p := budgetPeriod{year: d.Year(), month: int(d.Month())}
		if e.CategoryID != nil {
			p.category, p.hasCategory = *e.CategoryID, true
		}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			periods = append(periods, p)
		}
	}

	if s.budgets == nil {
		return
	}
	for _, p := range periods {
		var cat *string
		if p.hasCategory {
			c := p.category
			cat = &c
		}
		if _, err := s.budgets.Recalculate(ctx, cat, p.year, p.month); err != nil {
			s.logger.ErrorContext(ctx, "Budget recalculation failed",
				log.FieldYear, p.year,
				log.FieldMonth, p.month,
				log.FieldError, err)
		}
	}
}
