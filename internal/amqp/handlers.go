package amqp

import (
	"context"
	"errors"
	"fmt"
)

// ErrPoisonMessage marks a delivery that can never succeed: unknown routing
// key or a body that does not decode.
var ErrPoisonMessage = errors.New("poison message")

// Handlers routes consumed events by kind. A nil handler acknowledges and
// ignores that kind.
type Handlers struct {
	EntryRecorded         func(ctx context.Context, msg *EntryRecordedMessage) error
	BudgetThreshold       func(ctx context.Context, msg *BudgetThresholdMessage) error
	MaterializationFailed func(ctx context.Context, msg *MaterializationFailedMessage) error
}

// Dispatch decodes body according to routingKey and calls the matching handler.
func (h Handlers) Dispatch(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case RoutingEntryRecorded:
		return dispatch(ctx, body, h.EntryRecorded)
	case RoutingBudgetThreshold:
		return dispatch(ctx, body, h.BudgetThreshold)
	case RoutingMaterializationFailed:
		return dispatch(ctx, body, h.MaterializationFailed)
	default:
		return fmt.Errorf("%w: unknown routing key %q", ErrPoisonMessage, routingKey)
	}
}

func dispatch[T any](ctx context.Context, body []byte, handle func(context.Context, *T) error) error {
	msg, err := FromJSON[T](body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	if handle == nil {
		return nil
	}
	return handle(ctx, msg)
}
