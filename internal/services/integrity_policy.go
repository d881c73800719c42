package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spendly/internal/core"
	"spendly/internal/log"
	"spendly/internal/ports"
)

// DeletionResult counts the dependent rows a deletion touched.
type DeletionResult struct {
	Reassigned     int64 // entries and templates moved to the replacement account
	Nullified      int64 // entries, templates and budgets that lost the reference
	BudgetsDeleted int64 // category budgets that collided with an overall budget
	Unlinked       int64 // tag associations removed
}

// IntegrityPolicy executes deletions together with the dependent updates
// they require, each inside one store transaction.
type IntegrityPolicy struct {
	store  ports.Store
	logger *log.Logger
}

func NewIntegrityPolicy(store ports.Store) *IntegrityPolicy {
	return &IntegrityPolicy{
		store:  store,
		logger: log.Default(log.ComponentPolicy),
	}
}

// DeleteCategory clears the category from entries, templates and budgets,
// then removes it. The default category cannot be deleted.
func (p *IntegrityPolicy) DeleteCategory(ctx context.Context, id string, now time.Time) (DeletionResult, error) {
	var res DeletionResult
	err := p.store.InTx(ctx, func(tx ports.Store) error {
		res = DeletionResult{}
		cat, err := tx.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if cat.IsDefault {
			return &core.PolicyViolation{Entity: "category", ID: id, Reason: "the default category cannot be deleted"}
		}

		n, err := tx.NullifyEntryCategory(ctx, id, now)
		if err != nil {
			return err
		}
		res.Nullified += n

		n, err = tx.NullifyTemplateCategory(ctx, id)
		if err != nil {
			return err
		}
		res.Nullified += n

		nullified, deleted, err := tx.NullifyBudgetCategory(ctx, id)
		if err != nil {
			return err
		}
		res.Nullified += nullified
		res.BudgetsDeleted = deleted

		return tx.DeleteCategory(ctx, id)
	})
	if err != nil {
		return DeletionResult{}, p.fail(ctx, "category", id, err)
	}

	p.logger.InfoContext(ctx, "Category deleted",
		log.FieldCategoryID, id,
		log.FieldOperation, log.OpNullify,
		"nullified", res.Nullified,
		"budgets_deleted", res.BudgetsDeleted)
	return res, nil
}

// DeleteAccount moves the account's entries and templates to replacementID
// and removes the account. An account referenced by entries or templates
// needs a replacement; the default account can never be deleted.
func (p *IntegrityPolicy) DeleteAccount(ctx context.Context, id, replacementID string, now time.Time) (DeletionResult, error) {
	replacementID = strings.TrimSpace(replacementID)

	var res DeletionResult
	err := p.store.InTx(ctx, func(tx ports.Store) error {
		res = DeletionResult{}
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if acc.IsDefault {
			return &core.PolicyViolation{Entity: "account", ID: id, Reason: "the default account cannot be deleted"}
		}

		entries, err := tx.CountByAccount(ctx, id)
		if err != nil {
			return err
		}
		templates, err := tx.CountTemplatesByAccount(ctx, id)
		if err != nil {
			return err
		}
		if replacementID == "" {
			if entries > 0 || templates > 0 {
				return &core.PolicyViolation{
					Entity: "account", ID: id,
					Reason: fmt.Sprintf("%d entries and %d templates reference it and no replacement account was given", entries, templates),
				}
			}
		} else {
			if replacementID == id {
				return &core.PolicyViolation{Entity: "account", ID: id, Reason: "replacement account is the account being deleted"}
			}
			if _, err := tx.GetAccount(ctx, replacementID); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					return &core.PolicyViolation{Entity: "account", ID: id, Reason: "replacement account " + replacementID + " does not exist"}
				}
				return err
			}

			n, err := tx.ReassignAccount(ctx, id, replacementID, now)
			if err != nil {
				return err
			}
			res.Reassigned += n

			n, err = tx.ReassignTemplateAccount(ctx, id, replacementID)
			if err != nil {
				return err
			}
			res.Reassigned += n
		}

		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return DeletionResult{}, p.fail(ctx, "account", id, err)
	}

	p.logger.InfoContext(ctx, "Account deleted",
		log.FieldAccountID, id,
		log.FieldOperation, log.OpReassign,
		"replacement_id", replacementID,
		"reassigned", res.Reassigned)
	return res, nil
}

// DeleteTag removes every association of the tag and then the tag.
func (p *IntegrityPolicy) DeleteTag(ctx context.Context, id string) (DeletionResult, error) {
	var res DeletionResult
	err := p.store.InTx(ctx, func(tx ports.Store) error {
		res = DeletionResult{}
		if _, err := tx.GetTag(ctx, id); err != nil {
			return err
		}
		n, err := tx.DeleteAllForTag(ctx, id)
		if err != nil {
			return err
		}
		res.Unlinked = n
		return tx.DeleteTag(ctx, id)
	})
	if err != nil {
		return DeletionResult{}, p.fail(ctx, "tag", id, err)
	}

	p.logger.InfoContext(ctx, "Tag deleted",
		log.FieldTagID, id,
		"unlinked", res.Unlinked)
	return res, nil
}

// DeleteEntry removes the entry's tag associations and then the entry.
func (p *IntegrityPolicy) DeleteEntry(ctx context.Context, id string, t core.TransactionType) (DeletionResult, error) {
	var res DeletionResult
	err := p.store.InTx(ctx, func(tx ports.Store) error {
		res = DeletionResult{}
		if _, err := tx.GetEntry(ctx, id, t); err != nil {
			return err
		}
		n, err := tx.DeleteAllForEntry(ctx, id, t)
		if err != nil {
			return err
		}
		res.Unlinked = n
		return tx.DeleteEntry(ctx, id, t)
	})
	if err != nil {
		return DeletionResult{}, p.fail(ctx, t.String(), id, err)
	}

	p.logger.InfoContext(ctx, "Entry deleted",
		log.FieldEntryID, id,
		log.FieldEntryType, t.String(),
		"unlinked", res.Unlinked)
	return res, nil
}

// fail classifies err: policy violations and lookups of missing rows pass
// through, anything else becomes a StorageFailure.
func (p *IntegrityPolicy) fail(ctx context.Context, entity, id string, err error) error {
	var pv *core.PolicyViolation
	if errors.As(err, &pv) {
		p.logger.WarnContext(ctx, "Deletion rejected",
			"entity", entity,
			"id", id,
			"reason", pv.Reason)
		return err
	}
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	p.logger.ErrorContext(ctx, "Deletion failed",
		"entity", entity,
		"id", id,
		log.FieldError, err)
	return core.AsStorageFailure("delete "+entity, err)
}
