package server

import (
	"github.com/iho/microloan/internal/adapter/http/dto"
)

// LoanRef addresses a single loan.
type LoanRef struct {
	LoanID string `json:"loan_id"`
}

// InstallmentRef addresses one installment of a loan.
type InstallmentRef struct {
	LoanID string `json:"loan_id"`
	Number int    `json:"number"`
}

type ListLoansRequest struct {
	Status    string `json:"status,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	AdvisorID string `json:"advisor_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type PayInstallmentRequest struct {
	InstallmentRef
	dto.PayInstallmentRequest
}

type SubmitPrepaymentRequest struct {
	InstallmentRef
	dto.PrepaymentRequest
}

type ConfirmPrepaymentRequest struct {
	InstallmentRef
	dto.VersionedRequest
}

type RejectPrepaymentRequest struct {
	InstallmentRef
	dto.RejectPrepaymentRequest
}

type CancelLoanRequest struct {
	LoanRef
	dto.CancelLoanRequest
}

type RescheduleRequest struct {
	LoanRef
	dto.RescheduleRequest
}
