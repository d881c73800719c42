package amqp

import (
	"encoding/json"
	"time"

	"spendly/internal/core"
)

// Routing keys, one per ledger event. The queue is bound to all of them.
const (
	RoutingEntryRecorded         = "ledger.entry.recorded"
	RoutingBudgetThreshold       = "ledger.budget.threshold"
	RoutingMaterializationFailed = "ledger.recurring.failed"
)

// RoutingKeys lists every key the queue is bound to.
var RoutingKeys = []string{RoutingEntryRecorded, RoutingBudgetThreshold, RoutingMaterializationFailed}

// EntryRecordedMessage announces a committed expense or income.
type EntryRecordedMessage struct {
	EntryID     string    `json:"entry_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	CategoryID  *string   `json:"category_id,omitempty"`
	AccountID   string    `json:"account_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEntryRecordedMessage(e core.LedgerEntry) *EntryRecordedMessage {
	return &EntryRecordedMessage{
		EntryID:     e.ID,
		Type:        e.Type.String(),
		AmountCents: e.Amount.Cents,
		Amount:      e.Amount.String(),
		CategoryID:  e.CategoryID,
		AccountID:   e.AccountID,
		Date:        e.Date,
		Description: e.Description,
		Timestamp:   time.Now(),
	}
}

// BudgetThresholdMessage announces that a budget crossed 75% or 100%.
type BudgetThresholdMessage struct {
	BudgetID    string    `json:"budget_id"`
	CategoryID  *string   `json:"category_id,omitempty"` // absent for the overall budget
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Threshold   string    `json:"threshold"`
	BasisPoints int64     `json:"basis_points"`
	Percent     string    `json:"percent"`
	SpentCents  int64     `json:"spent_cents"`
	CapCents    int64     `json:"cap_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBudgetThresholdMessage(c core.ThresholdCrossing) *BudgetThresholdMessage {
	return &BudgetThresholdMessage{
		BudgetID:    c.Budget.ID,
		CategoryID:  c.Budget.CategoryID,
		Year:        c.Budget.Year,
		Month:       c.Budget.Month,
		Threshold:   c.Threshold.String(),
		BasisPoints: int64(c.Progress),
		Percent:     c.Progress.Percent(),
		SpentCents:  c.Spent.Cents,
		CapCents:    c.Budget.Amount.Cents,
		Timestamp:   time.Now(),
	}
}

// MaterializationFailedMessage reports an occurrence the engine could not write.
type MaterializationFailedMessage struct {
	TemplateID string    `json:"template_id"`
	Occurrence time.Time `json:"occurrence"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewMaterializationFailedMessage(f core.MaterializationFailure) *MaterializationFailedMessage {
	msg := &MaterializationFailedMessage{
		TemplateID: f.TemplateID,
		Occurrence: f.Occurrence,
		Timestamp:  time.Now(),
	}
	if f.Err != nil {
		msg.Error = f.Err.Error()
	}
	return msg
}

// ToJSON converts a message to JSON bytes
func ToJSON(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// FromJSON decodes a message of type T
func FromJSON[T any](data []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
