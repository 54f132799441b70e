package domain

import (
	"encoding/json"
	"time"
)

// AuditLog represents an audit trail entry for compliance and debugging
type AuditLog struct {
	ID           string
	UserID       string // operator reference
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	RequestID    string
	BeforeState  JSON
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionLoanOriginate      AuditAction = "loan.originate"
	AuditActionLoanCancel         AuditAction = "loan.cancel"
	AuditActionLoanReschedule     AuditAction = "loan.reschedule"
	AuditActionLoanSettle         AuditAction = "loan.settle"
	AuditActionLoanGroupCreate    AuditAction = "loan_group.create"
	AuditActionInstallmentPay     AuditAction = "installment.pay"
	AuditActionPrepaymentSubmit   AuditAction = "installment.prepayment_submit"
	AuditActionPrepaymentConfirm  AuditAction = "installment.prepayment_confirm"
	AuditActionPrepaymentReject   AuditAction = "installment.prepayment_reject"
	AuditActionMoraReduce         AuditAction = "installment.mora_reduce"
	AuditActionObservationsUpdate AuditAction = "installment.observations_update"
)

var auditActionByEvent = map[string]AuditAction{
	EventTypeLoanOriginated:      AuditActionLoanOriginate,
	EventTypeLoanCanceled:        AuditActionLoanCancel,
	EventTypeLoanRescheduled:     AuditActionLoanReschedule,
	EventTypeLoanSettled:         AuditActionLoanSettle,
	EventTypeLoanGroupCreated:    AuditActionLoanGroupCreate,
	EventTypeInstallmentPaid:     AuditActionInstallmentPay,
	EventTypePrepaymentSubmitted: AuditActionPrepaymentSubmit,
	EventTypePrepaymentConfirmed: AuditActionPrepaymentConfirm,
	EventTypePrepaymentRejected:  AuditActionPrepaymentReject,
	EventTypeMoraReduced:         AuditActionMoraReduce,
	EventTypeObservationsUpdated: AuditActionObservationsUpdate,
}

// AuditActionFor maps a ledger event type to its audit action.
func AuditActionFor(eventType string) AuditAction {
	if a, ok := auditActionByEvent[eventType]; ok {
		return a
	}
	return AuditAction(eventType)
}

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}

// BookState is the audit snapshot of the parts of a book an operation
// touched.
func BookState(b *LoanBook, numbers []int) JSON {
	if b == nil {
		return nil
	}
	want := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}

	type installmentState struct {
		Number         int    `json:"number"`
		Status         string `json:"status"`
		Amount         string `json:"amount"`
		CarriedSurplus string `json:"carried_surplus"`
		Mora           string `json:"mora"`
		AmountPaid     string `json:"amount_paid"`
	}
	state := struct {
		LoanID       string             `json:"loan_id"`
		Status       string             `json:"status"`
		Version      int64              `json:"version"`
		Installments []installmentState `json:"installments"`
	}{LoanID: b.Loan.ID, Status: string(b.Loan.Status), Version: b.Version}

	for _, inst := range b.Installments {
		if len(want) > 0 && !want[inst.Number] {
			continue
		}
		state.Installments = append(state.Installments, installmentState{
			Number:         inst.Number,
			Status:         string(inst.Status),
			Amount:         inst.Amount.String(),
			CarriedSurplus: inst.CarriedSurplus.String(),
			Mora:           inst.MoraAmount.String(),
			AmountPaid:     inst.AmountPaid.String(),
		})
	}
	return MarshalState(state)
}
