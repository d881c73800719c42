package backend

import (
	"spendly/internal/services"
)

// Services bundles the ledger services wired over one backend.
type Services struct {
	Engine    *services.RecurrenceEngine
	Policy    *services.IntegrityPolicy
	Budgets   *services.BudgetTracker
	Ledger    *services.LedgerService
	Templates *services.TemplateService
}

// NewServices wires the services so that entries materialized by the engine
// flow through the ledger into budgets and the notifier.
func NewServices(res *BackendResult) *Services {
	budgets := services.NewBudgetTracker(res.Store, res.Notifier)
	ledger := services.NewLedgerService(res.Store, res.Notifier, budgets)
	return &Services{
		Engine: services.NewRecurrenceEngine(res.Store,
			services.WithEntryObserver(ledger),
			services.WithFailureNotifier(res.Notifier)),
		Policy:    services.NewIntegrityPolicy(res.Store),
		Budgets:   budgets,
		Ledger:    ledger,
		Templates: services.NewTemplateService(res.Store),
	}
}
