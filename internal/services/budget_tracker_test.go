package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"spendly/internal/core"
)

func TestBudgetThresholdsFireOnce(t *testing.T) {
	tests := []struct {
		name     string
		expenses []int64
		want     []core.Threshold
	}{
		{"below warning", []int64{7000}, nil},
		{"warning only", []int64{8000}, []core.Threshold{core.ThresholdWarning}},
		{"warning then exceeded", []int64{8000, 3000}, []core.Threshold{core.ThresholdWarning, core.ThresholdExceeded}},
		{"both in one step", []int64{12000}, []core.Threshold{core.ThresholdWarning, core.ThresholdExceeded}},
		{"exactly the cap", []int64{10000}, []core.Threshold{core.ThresholdWarning, core.ThresholdExceeded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			notifier := &recordingNotifier{}
			tracker := NewBudgetTracker(s, notifier)
			if _, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 10000}, 2025, 6); err != nil {
				t.Fatal(err)
			}

			for i, cents := range tt.expenses {
				mustRecordExpense(t, s, string(rune('a'+i)), cents, nil, core.DefaultAccount().ID, testNow)
				// Re-evaluating twice must not repeat a notification.
				for j := 0; j < 2; j++ {
					if _, err := tracker.Recalculate(ctx, nil, 2025, 6); err != nil {
						t.Fatal(err)
					}
				}
			}

			if got := notifier.thresholds(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("thresholds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBudgetFlagsArePersisted(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tracker := NewBudgetTracker(s, nil)
	b, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 10000}, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}
	mustRecordExpense(t, s, "e1", 8000, nil, core.DefaultAccount().ID, testNow)

	crossings, err := tracker.Recalculate(ctx, nil, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(crossings) != 1 || crossings[0].Progress != 8000 || crossings[0].Spent.Cents != 8000 {
		t.Fatalf("unexpected crossings: %+v", crossings)
	}

	stored, err := s.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Notified75 || stored.Notified100 {
		t.Fatalf("flags = %v/%v, want true/false", stored.Notified75, stored.Notified100)
	}
}

func TestCategorySpendCountsTowardOverallBudget(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	notifier := &recordingNotifier{}
	tracker := NewBudgetTracker(s, notifier)
	food := categoryID("Food")

	overall, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 20000}, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}
	category, _, err := tracker.SetBudget(ctx, &food, core.Money{Cents: 10000}, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}

	mustRecordExpense(t, s, "e1", 16000, &food, core.DefaultAccount().ID, testNow)
	crossings, err := tracker.Recalculate(ctx, &food, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}

	fired := map[string][]core.Threshold{}
	for _, c := range crossings {
		fired[c.Budget.ID] = append(fired[c.Budget.ID], c.Threshold)
	}
	if want := []core.Threshold{core.ThresholdWarning, core.ThresholdExceeded}; !reflect.DeepEqual(fired[category.ID], want) {
		t.Errorf("category budget fired %v, want %v", fired[category.ID], want)
	}
	if want := []core.Threshold{core.ThresholdWarning}; !reflect.DeepEqual(fired[overall.ID], want) {
		t.Errorf("overall budget fired %v, want %v", fired[overall.ID], want)
	}
	if len(notifier.crossings) != 3 {
		t.Errorf("notifier got %d crossings, want 3", len(notifier.crossings))
	}
}

func TestSetBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate period", func(t *testing.T) {
		tracker := NewBudgetTracker(newStore(t), nil)
		if _, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 100}, 2025, 6); err != nil {
			t.Fatal(err)
		}
		_, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 200}, 2025, 6)
		if !errors.Is(err, core.ErrBudgetExists) {
			t.Fatalf("expected ErrBudgetExists, got %v", err)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		tracker := NewBudgetTracker(newStore(t), nil)
		_, _, err := tracker.SetBudget(ctx, ptr("missing"), core.Money{Cents: 100}, 2025, 6)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid month", func(t *testing.T) {
		tracker := NewBudgetTracker(newStore(t), nil)
		_, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 100}, 2025, 13)
		if !errors.Is(err, core.ErrInvalidMonth) {
			t.Fatalf("expected ErrInvalidMonth, got %v", err)
		}
	})

	t.Run("existing spend is evaluated immediately", func(t *testing.T) {
		s := newStore(t)
		notifier := &recordingNotifier{}
		tracker := NewBudgetTracker(s, notifier)
		mustRecordExpense(t, s, "e1", 900, nil, core.DefaultAccount().ID, testNow)

		b, crossings, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 1000}, 2025, 6)
		if err != nil {
			t.Fatal(err)
		}
		if len(crossings) != 1 || !b.Notified75 {
			t.Fatalf("crossings=%v budget=%+v", crossings, b)
		}
	})
}

func TestBudgetStatus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tracker := NewBudgetTracker(s, nil)

	if _, err := tracker.Status(ctx, nil, 2025, 6); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a budget, got %v", err)
	}

	if _, _, err := tracker.SetBudget(ctx, nil, core.Money{Cents: 30000}, 2025, 6); err != nil {
		t.Fatal(err)
	}
	mustRecordExpense(t, s, "e1", 10000, nil, core.DefaultAccount().ID, testNow)
	// Other months do not count.
	mustRecordExpense(t, s, "e2", 10000, nil, core.DefaultAccount().ID, testNow.AddDate(0, 1, 0))

	st, err := tracker.Status(ctx, nil, 2025, 6)
	if err != nil {
		t.Fatal(err)
	}
	if st.Spent.Cents != 10000 || st.Progress != 3333 {
		t.Fatalf("status = %+v, want 10000 spent and 3333 bp", st)
	}
	if st.Budget.Notified75 {
		t.Fatalf("Status must not change flags")
	}
}
