package services

import (
	"context"
	"fmt"
	"time"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/ports"
)

// NewTemplateInput holds the user-supplied fields of a recurring template.
type NewTemplateInput struct {
	Type        core.TransactionType
	Amount      core.Money
	CategoryID  *string
	AccountID   *string
	Description string
	Frequency   core.Frequency
	// Start is the first occurrence.
	Start time.Time
}

// TemplateService manages recurring templates on behalf of users. Schedule
// fields are left to the RecurrenceEngine.
type TemplateService struct {
	store  ports.Store
	logger *log.Logger
}

func NewTemplateService(store ports.Store) *TemplateService {
	return &TemplateService{
		store:  store,
		logger: log.Default(log.ComponentLedger),
	}
}

// Create validates and stores a new template that has never run.
func (s *TemplateService) Create(ctx context.Context, in NewTemplateInput, now time.Time) (core.RecurringTemplate, error) {
	rt := core.RecurringTemplate{
		ID:          core.NewID(),
		Type:        in.Type,
		Amount:      in.Amount,
		CategoryID:  in.CategoryID,
		AccountID:   in.AccountID,
		Description: in.Description,
		Frequency:   in.Frequency,
		NextDate:    in.Start.UTC(),
		CreatedAt:   now.UTC(),
	}
	if rt.NextDate.IsZero() {
		rt.NextDate = now.UTC()
	}
	if err := rt.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}

	err := s.store.InTx(ctx, func(tx ports.Store) error {
		if rt.CategoryID != nil {
			if _, err := tx.GetCategory(ctx, *rt.CategoryID); err != nil {
				return err
			}
		}
		if rt.AccountID != nil {
			if _, err := tx.GetAccount(ctx, *rt.AccountID); err != nil {
				return err
			}
		}
		return tx.CreateTemplate(ctx, rt)
	})
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("create template: %w", err)
	}

	s.logger.InfoContext(ctx, "Recurring template created",
		log.NewFields().WithTemplate(rt).WithOperation(log.OpCreate).ToSlice()...)
	return rt, nil
}

// List returns every template ordered by next occurrence.
func (s *TemplateService) List(ctx context.Context) ([]core.RecurringTemplate, error) {
	return s.store.ListTemplates(ctx)
}

// Delete removes a template. Entries it already produced are independent
// and stay untouched.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	s.logger.InfoContext(ctx, "Recurring template deleted",
		log.FieldTemplateID, id,
		log.FieldOperation, log.OpDelete)
	return nil
}
