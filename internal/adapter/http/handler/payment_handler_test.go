package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// paymentServiceStub records the last call and returns book or err.
type paymentServiceStub struct {
	book *domain.LoanBook
	err  error

	op     string
	cmd    usecase.LoanCommand
	number int
	amount decimal.Decimal
	text   string
	flag   bool
}

func (s *paymentServiceStub) record(op string, cmd usecase.LoanCommand, n int) (*domain.LoanBook, error) {
	s.op, s.cmd, s.number = op, cmd, n
	return s.book, s.err
}

func (s *paymentServiceStub) PayInstallment(_ context.Context, cmd usecase.LoanCommand, n int, amount decimal.Decimal) (*domain.LoanBook, error) {
	s.amount = amount
	return s.record("pay", cmd, n)
}

func (s *paymentServiceStub) CancelLoan(_ context.Context, cmd usecase.LoanCommand, total decimal.Decimal) (*domain.LoanBook, error) {
	s.amount = total
	return s.record("cancel", cmd, 0)
}

func (s *paymentServiceStub) Reschedule(_ context.Context, cmd usecase.LoanCommand, rate decimal.Decimal) (*domain.LoanBook, error) {
	s.amount = rate
	return s.record("reschedule", cmd, 0)
}

func (s *paymentServiceStub) SettleByAgreement(_ context.Context, cmd usecase.LoanCommand, onlyPrincipal bool) (*domain.LoanBook, error) {
	s.flag = onlyPrincipal
	return s.record("settle", cmd, 0)
}

func (s *paymentServiceStub) SubmitPrepayment(_ context.Context, cmd usecase.LoanCommand, n int, amount decimal.Decimal, proofRef string) (*domain.LoanBook, error) {
	s.amount, s.text = amount, proofRef
	return s.record("submit", cmd, n)
}

func (s *paymentServiceStub) ConfirmPrepayment(_ context.Context, cmd usecase.LoanCommand, n int) (*domain.LoanBook, error) {
	return s.record("confirm", cmd, n)
}

func (s *paymentServiceStub) RejectPrepayment(_ context.Context, cmd usecase.LoanCommand, n int, reason string) (*domain.LoanBook, error) {
	s.text = reason
	return s.record("reject", cmd, n)
}

func (s *paymentServiceStub) ApplyMoraReduction(_ context.Context, cmd usecase.LoanCommand, n int, pct decimal.Decimal) (*domain.LoanBook, error) {
	s.amount = pct
	return s.record("mora", cmd, n)
}

func (s *paymentServiceStub) UpdateObservations(_ context.Context, cmd usecase.LoanCommand, n int, text string) (*domain.LoanBook, error) {
	s.text = text
	return s.record("observations", cmd, n)
}

func TestPaymentHandler_Routes(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *PaymentHandler) http.HandlerFunc
		body    string
		number  string
		wantOp  string
		wantN   int
		wantAmt string
		wantTxt string
	}{
		{"pay", func(h *PaymentHandler) http.HandlerFunc { return h.Pay }, `{"expected_version":2,"amount":"303"}`, "1", "pay", 1, "303", ""},
		{"cancel", func(h *PaymentHandler) http.HandlerFunc { return h.Cancel }, `{"expected_version":2,"total":"909"}`, "", "cancel", 0, "909", ""},
		{"reschedule", func(h *PaymentHandler) http.HandlerFunc { return h.Reschedule }, `{"expected_version":2,"interest_rate":"3"}`, "", "reschedule", 0, "3", ""},
		{"submit", func(h *PaymentHandler) http.HandlerFunc { return h.SubmitPrepayment }, `{"expected_version":2,"amount":"303","proof_ref":"proof-1"}`, "2", "submit", 2, "303", "proof-1"},
		{"confirm", func(h *PaymentHandler) http.HandlerFunc { return h.ConfirmPrepayment }, `{"expected_version":2}`, "2", "confirm", 2, "0", ""},
		{"reject", func(h *PaymentHandler) http.HandlerFunc { return h.RejectPrepayment }, `{"expected_version":2,"reason":"blurry"}`, "2", "reject", 2, "0", "blurry"},
		{"mora", func(h *PaymentHandler) http.HandlerFunc { return h.ReduceMora }, `{"expected_version":2,"percent":"50"}`, "3", "mora", 3, "50", ""},
		{"observations", func(h *PaymentHandler) http.HandlerFunc { return h.UpdateObservations }, `{"expected_version":2,"observations":"called client"}`, "3", "observations", 3, "0", "called client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &paymentServiceStub{book: testBook()}
			h := NewPaymentHandler(stub)

			params := map[string]string{"id": "loan-1"}
			if tt.number != "" {
				params["number"] = tt.number
			}
			req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), params)
			rec := httptest.NewRecorder()
			tt.call(h)(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if stub.op != tt.wantOp || stub.number != tt.wantN {
				t.Fatalf("called %s(%d), want %s(%d)", stub.op, stub.number, tt.wantOp, tt.wantN)
			}
			if stub.cmd.LoanID != "loan-1" || stub.cmd.ExpectedVersion != 2 {
				t.Fatalf("unexpected command: %+v", stub.cmd)
			}
			if !stub.amount.Equal(decimal.RequireFromString(tt.wantAmt)) {
				t.Fatalf("amount = %s, want %s", stub.amount, tt.wantAmt)
			}
			if stub.text != tt.wantTxt {
				t.Fatalf("text = %q, want %q", stub.text, tt.wantTxt)
			}

			var resp dto.LoanBookResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Version != 1 {
				t.Fatalf("version = %d", resp.Version)
			}
		})
	}
}

func TestPaymentHandler_Settle(t *testing.T) {
	stub := &paymentServiceStub{book: testBook()}
	h := NewPaymentHandler(stub)

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"expected_version":4,"only_principal":true}`)), map[string]string{"id": "loan-1"})
	rec := httptest.NewRecorder()
	h.Settle(rec, req)

	if rec.Code != http.StatusOK || !stub.flag || stub.cmd.ExpectedVersion != 4 {
		t.Fatalf("unexpected settle call: code=%d stub=%+v", rec.Code, stub)
	}
}

func TestPaymentHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		number string
		body   string
		want   int
	}{
		{"stale version", domain.ErrStaleState, "1", `{"expected_version":1,"amount":"303"}`, http.StatusConflict},
		{"too low", domain.ErrPaymentTooLow, "1", `{"expected_version":1,"amount":"1"}`, http.StatusUnprocessableEntity},
		{"out of order", domain.ErrSequenceViolation, "2", `{"expected_version":1,"amount":"303"}`, http.StatusUnprocessableEntity},
		{"bad number", nil, "zero", `{"expected_version":1}`, http.StatusBadRequest},
		{"bad body", nil, "1", `{"amount":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &paymentServiceStub{err: tt.err}
			h := NewPaymentHandler(stub)

			req := withURLParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)),
				map[string]string{"id": "loan-1", "number": tt.number})
			rec := httptest.NewRecorder()
			h.Pay(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
