package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeLoanOriginated      = "loan.originated"
	EventTypeLoanCanceled        = "loan.canceled"
	EventTypeLoanRescheduled     = "loan.rescheduled"
	EventTypeLoanSettled         = "loan.settled"
	EventTypeLoanRefreshed       = "loan.refreshed"
	EventTypeLoanGroupCreated    = "loan_group.created"
	EventTypeInstallmentPaid     = "installment.paid"
	EventTypePrepaymentSubmitted = "installment.prepayment_submitted"
	EventTypePrepaymentConfirmed = "installment.prepayment_confirmed"
	EventTypePrepaymentRejected  = "installment.prepayment_rejected"
	EventTypeMoraReduced         = "installment.mora_reduced"
	EventTypeObservationsUpdated = "installment.observations_updated"
)

// Aggregate types
const (
	AggregateTypeLoan      = "loan"
	AggregateTypeLoanGroup = "loan_group"
)

// SystemOperator is the operator reference used by scheduled jobs.
const SystemOperator = "system"

// LedgerEvent is the replayable record of one successful ledger mutation.
type LedgerEvent struct {
	Type               string
	LoanID             string
	InstallmentNumbers []int
	Amounts            map[string]decimal.Decimal
	Flags              map[string]bool
	ProofRef           string
	Reason             string
	OperatorRef        string
	OccurredAt         time.Time
	Version            int64
}

// Payload flattens the event for the outbox. Amounts are rendered as strings
// so no precision is lost in JSON.
func (e LedgerEvent) Payload() map[string]any {
	amounts := make(map[string]string, len(e.Amounts))
	for k, v := range e.Amounts {
		amounts[k] = v.String()
	}

	p := map[string]any{
		"loan_id":      e.LoanID,
		"installments": e.InstallmentNumbers,
		"amounts":      amounts,
		"operator_ref": e.OperatorRef,
		"occurred_at":  e.OccurredAt.UTC().Format(time.RFC3339),
		"version":      e.Version,
	}
	for k, v := range e.Flags {
		p[k] = v
	}
	if e.ProofRef != "" {
		p["proof_ref"] = e.ProofRef
	}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	return p
}

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewLoanOutboxEvent wraps a ledger event for the outbox.
func NewLoanOutboxEvent(id string, ev LedgerEvent) *OutboxEvent {
	return &OutboxEvent{
		ID:            id,
		AggregateID:   ev.LoanID,
		AggregateType: AggregateTypeLoan,
		EventType:     ev.Type,
		Payload:       ev.Payload(),
		CreatedAt:     ev.OccurredAt,
	}
}

// LoanGroupCreatedEvent payload
type LoanGroupCreatedEvent struct {
	GroupID   string   `json:"group_id"`
	Name      string   `json:"name"`
	AdvisorID string   `json:"advisor_id"`
	LoanIDs   []string `json:"loan_ids"`
}
