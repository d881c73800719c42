package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spendly/internal/core"
)

func TestNewEntryRecordedMessage(t *testing.T) {
	food := "food"
	date := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	msg := NewEntryRecordedMessage(core.LedgerEntry{
		ID: "e1", Type: core.Income, Amount: core.Money{Cents: 123456},
		CategoryID: &food, AccountID: "cash", Date: date, Description: "Refund",
	})

	if msg.Type != "income" || msg.Amount != "1234.56" || msg.AmountCents != 123456 {
		t.Errorf("unexpected amount fields: %+v", msg)
	}
	if msg.CategoryID == nil || *msg.CategoryID != "food" || !msg.Date.Equal(date) {
		t.Errorf("unexpected reference fields: %+v", msg)
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestBudgetThresholdMessageOmitsOverallCategory(t *testing.T) {
	msg := NewBudgetThresholdMessage(core.ThresholdCrossing{
		Budget:    core.Budget{ID: "b1", Amount: core.Money{Cents: 10000}, Year: 2025, Month: 6},
		Threshold: core.ThresholdWarning,
		Spent:     core.Money{Cents: 8025},
		Progress:  8025,
	})
	if msg.Percent != "80.25" || msg.Threshold != "75%" || msg.CapCents != 10000 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	body, err := ToJSON(msg)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["category_id"]; ok {
		t.Errorf("overall budget should not carry category_id: %s", body)
	}
}

func TestMaterializationFailedMessage(t *testing.T) {
	occ := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	msg := NewMaterializationFailedMessage(core.MaterializationFailure{
		TemplateID: "rent", Occurrence: occ, Err: errors.New("disk full"),
	})
	if msg.Error != "disk full" || !msg.Occurrence.Equal(occ) {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHandlersDispatch(t *testing.T) {
	var got []string
	h := Handlers{
		EntryRecorded: func(_ context.Context, m *EntryRecordedMessage) error {
			got = append(got, "entry:"+m.EntryID)
			return nil
		},
		MaterializationFailed: func(_ context.Context, m *MaterializationFailedMessage) error {
			return errors.New("handler down")
		},
	}
	ctx := context.Background()

	body, _ := ToJSON(&EntryRecordedMessage{EntryID: "e1"})
	if err := h.Dispatch(ctx, RoutingEntryRecorded, body); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(got) != 1 || got[0] != "entry:e1" {
		t.Fatalf("handler calls = %v", got)
	}

	// No handler for thresholds: acknowledged and ignored.
	body, _ = ToJSON(&BudgetThresholdMessage{BudgetID: "b1"})
	if err := h.Dispatch(ctx, RoutingBudgetThreshold, body); err != nil {
		t.Fatalf("missing handler should be a no-op, got %v", err)
	}

	body, _ = ToJSON(&MaterializationFailedMessage{TemplateID: "t"})
	if err := h.Dispatch(ctx, RoutingMaterializationFailed, body); err == nil || errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("handler errors should be retryable, got %v", err)
	}

	if err := h.Dispatch(ctx, "ledger.unknown", body); !errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("unknown routing key: expected ErrPoisonMessage, got %v", err)
	}
	if err := h.Dispatch(ctx, RoutingEntryRecorded, []byte(`{"amount_cents": "nope"}`)); !errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("bad body: expected ErrPoisonMessage, got %v", err)
	}
}
