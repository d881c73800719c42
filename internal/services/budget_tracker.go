package services

import (
	"context"
	"errors"
	"fmt"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/ports"
)

// BudgetStatus is a read-only view of one budget's progress.
type BudgetStatus struct {
	Budget   core.Budget
	Spent    core.Money
	Progress core.BasisPoints
}

// BudgetTracker recomputes budget progress after ledger writes and emits
// each threshold crossing exactly once per budget.
type BudgetTracker struct {
	store    ports.Store
	notifier ports.Notifier
	logger   *log.Logger
}

func NewBudgetTracker(store ports.Store, notifier ports.Notifier) *BudgetTracker {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	return &BudgetTracker{
		store:    store,
		notifier: notifier,
		logger:   log.Default(log.ComponentBudget),
	}
}

// SetBudget creates the budget for a category (nil = overall) and period and
// evaluates it immediately against what was already spent.
func (t *BudgetTracker) SetBudget(ctx context.Context, categoryID *string, amount core.Money, year, month int) (core.Budget, []core.ThresholdCrossing, error) {
	b := core.Budget{
		ID:         core.NewID(),
		CategoryID: categoryID,
		Amount:     amount,
		Month:      month,
		Year:       year,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, nil, err
	}

	err := t.store.InTx(ctx, func(tx ports.Store) error {
		if categoryID != nil {
			if _, err := tx.GetCategory(ctx, *categoryID); err != nil {
				return err
			}
		}
		return tx.CreateBudget(ctx, b)
	})
	if err != nil {
		if errors.Is(err, core.ErrBudgetExists) || errors.Is(err, core.ErrNotFound) {
			return core.Budget{}, nil, err
		}
		return core.Budget{}, nil, core.AsStorageFailure("create budget", err)
	}

	t.logger.InfoContext(ctx, "Budget created",
		log.NewFields().WithBudget(b).WithOperation(log.OpCreate).ToSlice()...)

	crossings, err := t.Recalculate(ctx, categoryID, year, month)
	if err != nil {
		return b, nil, err
	}
	for _, c := range crossings {
		if c.Budget.ID == b.ID {
			b = c.Budget
		}
	}
	return b, crossings, nil
}

// Recalculate evaluates the category budget (when categoryID is set) and the
// overall budget for the period. Flags are persisted in one transaction
// before any notification is sent, so a crossing is never reported twice.
func (t *BudgetTracker) Recalculate(ctx context.Context, categoryID *string, year, month int) ([]core.ThresholdCrossing, error) {
	targets := []*string{nil}
	if categoryID != nil {
		targets = []*string{categoryID, nil}
	}

	var crossings []core.ThresholdCrossing
	err := t.store.InTx(ctx, func(tx ports.Store) error {
		crossings = nil
		for _, cat := range targets {
			st, err := status(ctx, tx, cat, year, month)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			updated, fired := core.EvaluateThresholds(st.Budget, st.Progress)
			if len(fired) == 0 {
				continue
			}
			if err := tx.UpdateBudget(ctx, updated); err != nil {
				return fmt.Errorf("persist budget flags: %w", err)
			}
			for _, th := range fired {
				crossings = append(crossings, core.ThresholdCrossing{
					Budget:    updated,
					Threshold: th,
					Spent:     st.Spent,
					Progress:  st.Progress,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, core.AsStorageFailure("recalculate budget", err)
	}

	for _, c := range crossings {
		t.logger.InfoContext(ctx, "Budget threshold crossed",
			append(log.NewFields().WithBudget(c.Budget).ToSlice(),
				log.FieldThreshold, c.Threshold.String(),
				log.FieldBasisPoints, int64(c.Progress))...)
		if err := t.notifier.NotifyBudgetThreshold(ctx, c); err != nil {
			t.logger.WarnContext(ctx, "Failed to publish budget threshold",
				log.FieldBudgetID, c.Budget.ID,
				log.FieldError, err)
		}
	}
	return crossings, nil
}

// Status reports a budget's progress without changing its flags.
func (t *BudgetTracker) Status(ctx context.Context, categoryID *string, year, month int) (BudgetStatus, error) {
	st, err := status(ctx, t.store, categoryID, year, month)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return st, core.AsStorageFailure("budget status", err)
	}
	return st, err
}

func status(ctx context.Context, s ports.Store, categoryID *string, year, month int) (BudgetStatus, error) {
	b, err := s.FindBudget(ctx, categoryID, year, month)
	if err != nil {
		return BudgetStatus{}, err
	}
	spent, err := s.SumExpenses(ctx, categoryID, year, month)
	if err != nil {
		return BudgetStatus{}, err
	}
	return BudgetStatus{
		Budget:   b,
		Spent:    spent,
		Progress: core.Progress(spent, b.Amount),
	}, nil
}
