package log

import (
	"time"

	"spendly/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDuration    = "duration_ms"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldAmountCents = "amount_cents"
	FieldTemplateID  = "template_id"
	FieldFrequency   = "frequency"
	FieldOccurrence  = "occurrence"
	FieldEntryID     = "entry_id"
	FieldEntryType   = "entry_type"
	FieldAccountID   = "account_id"
	FieldCategoryID  = "category_id"
	FieldTagID       = "tag_id"
	FieldBudgetID    = "budget_id"
	FieldBasisPoints = "basis_points"
	FieldThreshold   = "threshold"
	FieldCount       = "count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentEngine    = "recurrence"
	ComponentPolicy    = "integrity"
	ComponentBudget    = "budget"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentScheduler = "scheduler"
	ComponentBackend   = "backend"
	ComponentNotifier  = "notifier"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpProcess     = "process"
	OpMaterialize = "materialize"
	OpAdvance     = "advance"
	OpCreate      = "create"
	OpDelete      = "delete"
	OpReassign    = "reassign"
	OpNullify     = "nullify"
	OpRecalculate = "recalculate"
	OpPublish     = "publish"
	OpConsume     = "consume"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithDuration records elapsed time in milliseconds.
func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

// WithTemplate adds the identifying fields of a recurring template.
func (f LogFields) WithTemplate(rt core.RecurringTemplate) LogFields {
	f[FieldTemplateID] = rt.ID
	f[FieldFrequency] = rt.Frequency.String()
	f[FieldAmountCents] = rt.Amount.Cents
	return f
}

// WithEntry adds ledger entry fields.
func (f LogFields) WithEntry(e core.LedgerEntry) LogFields {
	f[FieldEntryID] = e.ID
	f[FieldEntryType] = e.Type.String()
	f[FieldAmountCents] = e.Amount.Cents
	f[FieldAccountID] = e.AccountID
	if e.CategoryID != nil {
		f[FieldCategoryID] = *e.CategoryID
	}
	return f
}

// WithBudget adds budget fields.
func (f LogFields) WithBudget(b core.Budget) LogFields {
	f[FieldBudgetID] = b.ID
	f[FieldYear] = b.Year
	f[FieldMonth] = b.Month
	if b.CategoryID != nil {
		f[FieldCategoryID] = *b.CategoryID
	}
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
