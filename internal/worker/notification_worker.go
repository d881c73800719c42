// Package worker consumes ledger events and renders them for the user.
package worker

import (
	"context"
	"time"

	"spendly/internal/amqp"
	"spendly/internal/cache"
	"spendly/internal/core"
	"spendly/internal/log"
)

const (
	// DefaultDedupeWindow bounds how long a delivered event is remembered.
	DefaultDedupeWindow = 24 * time.Hour
	defaultDedupeSize   = 10_000
)

// NotificationWorker turns consumed ledger events into user-facing log
// lines. Redelivered events (broker requeue, publisher retry) are shown
// once per dedupe window. Hosts that push to a phone or mailbox replace
// the rendering.
type NotificationWorker struct {
	logger *log.Logger
	symbol string
	seen   *cache.LRU[struct{}]
}

// NewNotificationWorker creates a worker formatting amounts with symbol.
func NewNotificationWorker(logger *log.Logger, symbol string, seen *cache.LRU[struct{}]) *NotificationWorker {
	if seen == nil {
		seen = cache.NewLRU[struct{}](defaultDedupeSize, DefaultDedupeWindow)
	}
	return &NotificationWorker{logger: logger, symbol: symbol, seen: seen}
}

// Handlers returns the consumer callbacks for every ledger routing key.
func (w *NotificationWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		EntryRecorded:         w.HandleEntryRecorded,
		BudgetThreshold:       w.HandleBudgetThreshold,
		MaterializationFailed: w.HandleMaterializationFailed,
	}
}

func (w *NotificationWorker) duplicate(ctx context.Context, key string) bool {
	if !w.seen.Remember(key, struct{}{}) {
		return false
	}
	w.logger.DebugContext(ctx, "Skipping duplicate event", "key", key)
	return true
}

// HandleEntryRecorded reports a new expense or income.
func (w *NotificationWorker) HandleEntryRecorded(ctx context.Context, m *amqp.EntryRecordedMessage) error {
	if w.duplicate(ctx, "entry:"+m.EntryID) {
		return nil
	}
	w.logger.InfoContext(ctx, "Entry recorded",
		log.FieldEntryID, m.EntryID,
		log.FieldEntryType, m.Type,
		"amount", core.Money{Cents: m.AmountCents}.Format(w.symbol),
		"date", m.Date.Format("2006-01-02"),
		"description", m.Description)
	return nil
}

// HandleBudgetThreshold warns that a budget reached 75% or 100%.
func (w *NotificationWorker) HandleBudgetThreshold(ctx context.Context, m *amqp.BudgetThresholdMessage) error {
	if w.duplicate(ctx, "budget:"+m.BudgetID+":"+m.Threshold) {
		return nil
	}
	scope := "overall"
	if m.CategoryID != nil {
		scope = *m.CategoryID
	}
	w.logger.WarnContext(ctx, "Budget threshold reached",
		log.FieldBudgetID, m.BudgetID,
		log.FieldCategoryID, scope,
		log.FieldYear, m.Year,
		log.FieldMonth, m.Month,
		log.FieldThreshold, m.Threshold,
		"percent", m.Percent+"%",
		"spent", core.Money{Cents: m.SpentCents}.Format(w.symbol),
		"cap", core.Money{Cents: m.CapCents}.Format(w.symbol))
	return nil
}

// HandleMaterializationFailed reports an occurrence the engine could not record.
func (w *NotificationWorker) HandleMaterializationFailed(ctx context.Context, m *amqp.MaterializationFailedMessage) error {
	occurrence := m.Occurrence.Format("2006-01-02")
	if w.duplicate(ctx, "failure:"+m.TemplateID+":"+occurrence) {
		return nil
	}
	w.logger.ErrorContext(ctx, "Recurring occurrence could not be recorded",
		log.FieldTemplateID, m.TemplateID,
		log.FieldOccurrence, occurrence,
		log.FieldError, m.Error)
	return nil
}
