package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/ports"
)

// ProcessReport summarizes one ProcessAll run.
type ProcessReport struct {
	// Templates counts the due templates found at invocation time.
	Templates int
	// Advanced counts templates whose schedule was committed.
	Advanced     int
	Materialized []core.LedgerEntry
	Failures     []core.MaterializationFailure
	// Dropped counts occurrences older than the catch-up window.
	Dropped int
}

// Created returns how many entries were committed.
func (r ProcessReport) Created() int { return len(r.Materialized) }

// RecurrenceEngine turns due recurring templates into ledger entries.
type RecurrenceEngine struct {
	store    ports.Store
	observer ports.EntryObserver
	notifier ports.Notifier
	logger   *log.Logger
}

// EngineOption configures a RecurrenceEngine.
type EngineOption func(*RecurrenceEngine)

// WithEntryObserver receives the entries of every committed template.
func WithEntryObserver(o ports.EntryObserver) EngineOption {
	return func(e *RecurrenceEngine) { e.observer = o }
}

// WithFailureNotifier receives every MaterializationFailure after commit.
func WithFailureNotifier(n ports.Notifier) EngineOption {
	return func(e *RecurrenceEngine) { e.notifier = n }
}

// NewRecurrenceEngine creates a new engine over store.
func NewRecurrenceEngine(store ports.Store, opts ...EngineOption) *RecurrenceEngine {
	e := &RecurrenceEngine{
		store:  store,
		logger: log.Default(log.ComponentEngine),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessAll materializes every template due at now, in the order the store
// returns them. Each template runs in its own transaction: its entries and
// its advanced schedule commit together. A failing entry insert is recorded
// in the report and does not stop the template; a failing schedule write
// rolls that template back and is returned as a *core.StorageFailure while
// the remaining templates still run.
func (e *RecurrenceEngine) ProcessAll(ctx context.Context, now time.Time) (ProcessReport, error) {
	var report ProcessReport
	if e.store == nil {
		return report, fmt.Errorf("engine not properly initialized")
	}
	// Schedules are stored and stepped in UTC.
	now = now.UTC()

	due, err := e.store.FindDueTemplates(ctx, now)
	if err != nil {
		return report, core.AsStorageFailure("find due templates", err)
	}
	report.Templates = len(due)

	e.logger.InfoContext(ctx, "Processing recurring templates",
		log.FieldCount, len(due),
		"processing_date", now.Format("2006-01-02"))

	if len(due) == 0 {
		return report, nil
	}

	var (
		defaultAccountID string
		defaultErr       error
		errs             []error
	)

	for _, rt := range due {
		accountID := ""
		if rt.AccountID != nil {
			accountID = *rt.AccountID
		} else {
			if defaultAccountID == "" && defaultErr == nil {
				acc, err := e.store.DefaultAccount(ctx)
				if err != nil {
					defaultErr = core.AsStorageFailure("get default account", err)
					errs = append(errs, defaultErr)
				}
				defaultAccountID = acc.ID
			}
			if defaultErr != nil {
				e.logger.ErrorContext(ctx, "Skipping template without a default account",
					log.NewFields().WithTemplate(rt).WithError(defaultErr).ToSlice()...)
				continue
			}
			accountID = defaultAccountID
		}

		res, err := e.processTemplate(ctx, rt, accountID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to process recurring template",
				log.NewFields().WithTemplate(rt).WithError(err).ToSlice()...)
			errs = append(errs, err)
			continue
		}

		report.Advanced++
		report.Dropped += res.dropped
		report.Materialized = append(report.Materialized, res.entries...)
		report.Failures = append(report.Failures, res.failures...)
		e.afterCommit(ctx, res)
	}

	e.logger.InfoContext(ctx, "Recurring template processing complete",
		"created", report.Created(),
		"failed", len(report.Failures),
		"dropped", report.Dropped,
		"advanced", report.Advanced,
		"total_checked", report.Templates)

	return report, errors.Join(errs...)
}

type templateResult struct {
	entries  []core.LedgerEntry
	failures []core.MaterializationFailure
	dropped  int
}

func (e *RecurrenceEngine) processTemplate(ctx context.Context, rt core.RecurringTemplate, accountID string, now time.Time) (templateResult, error) {
	var res templateResult
	if !rt.Frequency.Valid() {
		return res, fmt.Errorf("template %s: %w", rt.ID, core.ErrUnknownFrequency)
	}
	if !rt.Type.Valid() {
		return res, fmt.Errorf("template %s: %w", rt.ID, core.ErrUnknownTransactionType)
	}

	err := e.store.InTx(ctx, func(tx ports.Store) error {
		res = templateResult{}

		dates, dropped, err := core.MissedOccurrences(rt, now)
		if err != nil {
			return fmt.Errorf("template %s: %w", rt.ID, err)
		}
		res.dropped = dropped
		if dropped > 0 {
			e.logger.WarnContext(ctx, "Dropped occurrences outside the catch-up window",
				log.FieldTemplateID, rt.ID,
				"dropped", dropped)
		}

		for _, d := range dates {
			entry := core.LedgerEntry{
				ID:          core.NewID(),
				Type:        rt.Type,
				Amount:      rt.Amount,
				CategoryID:  rt.CategoryID,
				AccountID:   accountID,
				Date:        d,
				Description: rt.Description,
				CreatedAt:   now,
				ModifiedAt:  now,
			}
			if err := ports.InsertEntry(ctx, tx, entry); err != nil {
				res.failures = append(res.failures, core.MaterializationFailure{
					TemplateID: rt.ID,
					Occurrence: d,
					Err:        err,
				})
				e.logger.ErrorContext(ctx, "Failed to materialize occurrence",
					log.FieldTemplateID, rt.ID,
					log.FieldOccurrence, d.Format("2006-01-02"),
					log.FieldError, err)
				continue
			}
			res.entries = append(res.entries, entry)
		}

		next, err := core.NextOccurrence(now, rt.Frequency)
		if err != nil {
			return fmt.Errorf("template %s: %w", rt.ID, err)
		}
		advanced := rt
		advanced.NextDate = next
		processed := now
		advanced.LastProcessed = &processed
		if err := tx.SaveTemplate(ctx, advanced); err != nil {
			return core.AsStorageFailure("save template "+rt.ID, err)
		}
		return nil
	})
	if errors.Is(err, core.ErrUnknownFrequency) {
		return templateResult{}, err
	}
	if err != nil {
		return templateResult{}, core.AsStorageFailure("process template "+rt.ID, err)
	}

	e.logger.InfoContext(ctx, "Materialized recurring template",
		log.NewFields().WithTemplate(rt).ToSlice()...)
	return res, nil
}

func (e *RecurrenceEngine) afterCommit(ctx context.Context, res templateResult) {
	if e.observer != nil && len(res.entries) > 0 {
		e.observer.EntriesRecorded(ctx, res.entries)
	}
	if e.notifier == nil {
		return
	}
	for _, f := range res.failures {
		if err := e.notifier.NotifyMaterializationFailure(ctx, f); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish materialization failure",
				log.FieldTemplateID, f.TemplateID,
				log.FieldError, err)
		}
	}
}
