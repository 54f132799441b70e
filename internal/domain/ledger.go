package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy windows for restructuring an overdue loan.
const (
	RescheduleMaxDaysOverdue = 8
	MaxObservationsLength    = 1000
)

// LoanBook is a loan with its full installment set and the version token
// used for optimistic concurrency.
type LoanBook struct {
	Loan         Loan
	Installments []Installment
	Version      int64
}

// Clone returns a deep copy.
func (b *LoanBook) Clone() *LoanBook {
	out := &LoanBook{Loan: b.Loan, Version: b.Version}
	out.Installments = make([]Installment, len(b.Installments))
	for i, inst := range b.Installments {
		if inst.PaidAt != nil {
			at := *inst.PaidAt
			inst.PaidAt = &at
		}
		out.Installments[i] = inst
	}
	return out
}

// Installment returns the installment with the given number.
func (b *LoanBook) Installment(number int) (*Installment, error) {
	for i := range b.Installments {
		if b.Installments[i].Number == number {
			return &b.Installments[i], nil
		}
	}
	return nil, fmt.Errorf("%w: loan %s has no installment %d", ErrInstallmentMissing, b.Loan.ID, number)
}

// Open returns the installments that are not in a terminal state.
func (b *LoanBook) Open() []*Installment {
	var out []*Installment
	for i := range b.Installments {
		if !b.Installments[i].IsResolved() {
			out = append(out, &b.Installments[i])
		}
	}
	return out
}

// MaxDaysOverdue is the largest overdue count across open installments.
func (b *LoanBook) MaxDaysOverdue() int {
	maxDays := 0
	for _, inst := range b.Open() {
		if inst.DaysOverdue > maxDays {
			maxDays = inst.DaysOverdue
		}
	}
	return maxDays
}

// Outstanding is the sum of TotalDue over open installments.
func (b *LoanBook) Outstanding() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range b.Open() {
		total = total.Add(inst.TotalDue())
	}
	return total
}

func (b *LoanBook) hasPrepaid() bool {
	for _, inst := range b.Open() {
		if inst.Status == InstallmentStatusPrepaid {
			return true
		}
	}
	return false
}

func (b *LoanBook) refresh(today time.Time, lateFee LateFeePolicy) bool {
	changed := false
	for i := range b.Installments {
		if b.Installments[i].Refresh(today, lateFee) {
			changed = true
		}
	}
	return changed
}

// checkSequence fails unless every installment numbered below n is resolved.
// With allowPrepaid, predecessors awaiting proof confirmation also pass.
// Rescheduled installments count as resolved: their replacements carry new
// numbers after them, and those must stay payable.
func (b *LoanBook) checkSequence(n int, allowPrepaid bool) error {
	for _, inst := range b.Installments {
		if inst.Number >= n || inst.IsResolved() {
			continue
		}
		if allowPrepaid && inst.Status == InstallmentStatusPrepaid {
			continue
		}
		return fmt.Errorf("%w: installment %d is %s", ErrSequenceViolation, inst.Number, inst.Status)
	}
	return nil
}

// surplusRoom is how much credit the open installments after n can absorb.
func (b *LoanBook) surplusRoom(n int) decimal.Decimal {
	room := decimal.Zero
	for _, inst := range b.Installments {
		if inst.Number > n && !inst.IsResolved() && inst.Status != InstallmentStatusPrepaid {
			room = room.Add(inst.AmountDue())
		}
	}
	return room
}

// carry credits excess onto the open installments after n in order, moving
// on once an installment's amount due reaches zero. Returns the numbers
// that received credit.
func (b *LoanBook) carry(n int, excess decimal.Decimal) []int {
	var touched []int
	for i := range b.Installments {
		if !excess.IsPositive() {
			break
		}
		inst := &b.Installments[i]
		if inst.Number <= n || inst.IsResolved() || inst.Status == InstallmentStatusPrepaid {
			continue
		}
		take := decimal.Min(excess, inst.AmountDue())
		if !take.IsPositive() {
			continue
		}
		inst.CarriedSurplus = inst.CarriedSurplus.Add(take)
		excess = excess.Sub(take)
		touched = append(touched, inst.Number)
	}
	return touched
}

func (b *LoanBook) lastNumber() int {
	last := 0
	for _, inst := range b.Installments {
		if inst.Number > last {
			last = inst.Number
		}
	}
	return last
}

// Ledger applies operations to loan books. Every operation checks the
// caller's version, works on a copy and returns the new book only on
// success, so a failed call never leaves partial state behind.
type Ledger struct {
	clock   Clock
	lateFee LateFeePolicy
}

// NewLedger creates a Ledger. A nil lateFee charges no mora.
func NewLedger(clock Clock, lateFee LateFeePolicy) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if lateFee == nil {
		lateFee = NoLateFee
	}
	return &Ledger{clock: clock, lateFee: lateFee}
}

// Now returns the ledger clock's current instant.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// Today returns the ledger's current calendar date.
func (l *Ledger) Today() time.Time {
	return DateOf(l.clock.Now())
}

type operation func(b *LoanBook, now time.Time) (LedgerEvent, error)

func (l *Ledger) apply(book *LoanBook, expectedVersion int64, ref string, op operation) (*LoanBook, LedgerEvent, error) {
	if book == nil {
		return nil, LedgerEvent{}, fmt.Errorf("%w: loan book is required", ErrInvalidInput)
	}
	if book.Version != expectedVersion {
		return nil, LedgerEvent{}, fmt.Errorf("%w: loan %s is at version %d, caller has %d",
			ErrStaleState, book.Loan.ID, book.Version, expectedVersion)
	}

	now := l.clock.Now()
	today := DateOf(now)
	next := book.Clone()
	next.refresh(today, l.lateFee)

	ev, err := op(next, now)
	if err != nil {
		return nil, LedgerEvent{}, err
	}

	next.refresh(today, l.lateFee)
	next.Version++
	next.Loan.UpdatedAt = now

	ev.LoanID = next.Loan.ID
	ev.OperatorRef = ref
	ev.OccurredAt = now
	ev.Version = next.Version
	return next, ev, nil
}

func requireActive(b *LoanBook) error {
	if b.Loan.IsClosed() {
		return fmt.Errorf("%w: loan %s is %s", ErrAlreadyClosed, b.Loan.ID, b.Loan.Status)
	}
	return nil
}

func requireNoPendingProof(b *LoanBook) error {
	if b.hasPrepaid() {
		return fmt.Errorf("%w: loan %s has unconfirmed prepayments", ErrAlreadyClosed, b.Loan.ID)
	}
	return nil
}

// Originate validates terms, builds the schedule and returns a new book at
// version 1. The loan header supplies identity fields only. A zero
// OtherFeesRate selects DefaultOtherFeeRate.
func (l *Ledger) Originate(header Loan, t Terms, ref string) (*LoanBook, LedgerEvent, error) {
	if t.OtherFeesRate.IsZero() {
		t.OtherFeesRate = DefaultOtherFeeRate
	}
	if err := ValidateOriginationTerms(t); err != nil {
		return nil, LedgerEvent{}, err
	}

	now := l.clock.Now()
	installments, q, err := BuildSchedule(t, DateOf(now), l.lateFee)
	if err != nil {
		return nil, LedgerEvent{}, err
	}

	loan := header
	loan.Principal = RoundMoney(t.Principal)
	loan.InterestRate = t.InterestRate
	loan.TermCount = t.TermCount
	loan.Frequency = t.Frequency
	loan.OtherFeesRate = t.OtherFeesRate
	loan.StartDate = DateOf(t.StartDate)
	loan.TotalPayable = q.TotalPayable
	loan.InstallmentAmount = q.InstallmentAmount
	loan.Status = LoanStatusActive
	loan.CreatedAt = now
	loan.UpdatedAt = now

	book := &LoanBook{Loan: loan, Installments: installments, Version: 1}
	return book, LedgerEvent{
		Type:               EventTypeLoanOriginated,
		LoanID:             loan.ID,
		InstallmentNumbers: numbers(installments),
		Amounts: map[string]decimal.Decimal{
			"principal":          loan.Principal,
			"other_fees":         q.OtherFees,
			"interest":           q.Interest,
			"total_payable":      q.TotalPayable,
			"installment_amount": q.InstallmentAmount,
		},
		OperatorRef: ref,
		OccurredAt:  now,
		Version:     book.Version,
	}, nil
}

// PayInstallment records a payment for installment n. The payment has to
// cover the amount due plus mora; any excess is carried onto the following
// installments.
func (l *Ledger) PayInstallment(book *LoanBook, expectedVersion int64, n int, amountPaid decimal.Decimal, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		if amountPaid.IsNegative() {
			return LedgerEvent{}, fmt.Errorf("%w: amount paid cannot be negative", ErrInvalidInput)
		}
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		return settle(b, inst, amountPaid, now, ref, EventTypeInstallmentPaid)
	})
}

func settle(b *LoanBook, inst *Installment, amountPaid decimal.Decimal, now time.Time, ref, eventType string) (LedgerEvent, error) {
	if inst.IsResolved() {
		return LedgerEvent{}, fmt.Errorf("%w: installment %d is %s", ErrAlreadyClosed, inst.Number, inst.Status)
	}
	if err := b.checkSequence(inst.Number, false); err != nil {
		return LedgerEvent{}, err
	}

	due := inst.TotalDue()
	if amountPaid.LessThan(due) {
		return LedgerEvent{}, fmt.Errorf("%w: installment %d requires %s, got %s", ErrPaymentTooLow, inst.Number, due, amountPaid)
	}
	excess := amountPaid.Sub(due)
	if excess.GreaterThan(b.surplusRoom(inst.Number)) {
		return LedgerEvent{}, fmt.Errorf("%w: payment exceeds the outstanding balance of loan %s", ErrInvalidInput, b.Loan.ID)
	}

	amounts := map[string]decimal.Decimal{
		"amount_paid": amountPaid,
		"amount_due":  inst.AmountDue(),
		"mora":        inst.MoraAmount,
		"surplus":     excess,
	}
	if err := inst.markPaid(amountPaid, now, ref); err != nil {
		return LedgerEvent{}, err
	}
	touched := append([]int{inst.Number}, b.carry(inst.Number, excess)...)

	if len(b.Open()) == 0 {
		b.Loan.Status = LoanStatusPaidOff
	}

	return LedgerEvent{Type: eventType, InstallmentNumbers: touched, Amounts: amounts}, nil
}

// CancelLoan pays off every open installment in a single settlement and
// closes the loan. Pending prepayment proofs must be resolved first.
func (l *Ledger) CancelLoan(book *LoanBook, expectedVersion int64, totalPayment decimal.Decimal, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		if err := requireNoPendingProof(b); err != nil {
			return LedgerEvent{}, err
		}

		outstanding := b.Outstanding()
		if totalPayment.LessThan(outstanding) {
			return LedgerEvent{}, fmt.Errorf("%w: cancellation requires %s, got %s", ErrPaymentTooLow, outstanding, totalPayment)
		}
		if totalPayment.GreaterThan(outstanding) {
			return LedgerEvent{}, fmt.Errorf("%w: cancellation payment %s exceeds outstanding %s", ErrInvalidInput, totalPayment, outstanding)
		}

		var touched []int
		for _, inst := range b.Open() {
			if err := inst.resolve(InstallmentStatusCanceled, inst.TotalDue(), now, ref); err != nil {
				return LedgerEvent{}, err
			}
			touched = append(touched, inst.Number)
		}
		b.Loan.Status = LoanStatusCanceled

		return LedgerEvent{
			Type:               EventTypeLoanCanceled,
			InstallmentNumbers: touched,
			Amounts: map[string]decimal.Decimal{
				"total_payment": totalPayment,
				"outstanding":   outstanding,
			},
		}, nil
	})
}

// Reschedule replaces the open installments with a new schedule over the
// outstanding principal at newRatePercent. Allowed only while no open
// installment is more than RescheduleMaxDaysOverdue days late.
func (l *Ledger) Reschedule(book *LoanBook, expectedVersion int64, newRatePercent decimal.Decimal, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := ValidateRescheduleRate(newRatePercent); err != nil {
			return LedgerEvent{}, err
		}
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		if err := requireNoPendingProof(b); err != nil {
			return LedgerEvent{}, err
		}

		open := b.Open()
		if len(open) == 0 {
			return LedgerEvent{}, fmt.Errorf("%w: loan %s has nothing left to reschedule", ErrNotEligible, b.Loan.ID)
		}
		if maxDays := b.MaxDaysOverdue(); maxDays > RescheduleMaxDaysOverdue {
			return LedgerEvent{}, fmt.Errorf("%w: loan %s is %d days overdue, reschedule allows at most %d",
				ErrNotEligible, b.Loan.ID, maxDays, RescheduleMaxDaysOverdue)
		}

		principal, credit := decimal.Zero, decimal.Zero
		var replaced []int
		for _, inst := range open {
			principal = principal.Add(inst.PrincipalPortion)
			credit = credit.Add(inst.CarriedSurplus)
			replaced = append(replaced, inst.Number)
		}

		q, err := Compute(principal, newRatePercent, len(open), decimal.Zero)
		if err != nil {
			return LedgerEvent{}, err
		}

		for _, inst := range open {
			if err := inst.resolve(InstallmentStatusRescheduled, decimal.Zero, now, ref); err != nil {
				return LedgerEvent{}, err
			}
		}

		last := b.lastNumber()
		fresh := splitQuote(q, principal, len(open), b.Loan.Frequency, DateOf(now), last+1)
		b.Installments = append(b.Installments, fresh...)
		b.carry(last, credit)
		b.Loan.RescheduleCount++

		return LedgerEvent{
			Type:               EventTypeLoanRescheduled,
			InstallmentNumbers: append(replaced, numbers(fresh)...),
			Amounts: map[string]decimal.Decimal{
				"outstanding_principal": principal,
				"new_rate":              newRatePercent,
				"new_total":             q.TotalPayable,
				"new_installment":       q.InstallmentAmount,
				"carried_credit":        credit,
			},
		}, nil
	})
}

// SettleByAgreement closes the open installments under a settlement
// agreement. Allowed only once some installment is more than
// RescheduleMaxDaysOverdue days late. With onlyPrincipal the remaining
// interest and mora are waived.
func (l *Ledger) SettleByAgreement(book *LoanBook, expectedVersion int64, onlyPrincipal bool, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		if err := requireNoPendingProof(b); err != nil {
			return LedgerEvent{}, err
		}
		if maxDays := b.MaxDaysOverdue(); maxDays <= RescheduleMaxDaysOverdue {
			return LedgerEvent{}, fmt.Errorf("%w: loan %s is %d days overdue, settlement needs more than %d",
				ErrNotEligible, b.Loan.ID, maxDays, RescheduleMaxDaysOverdue)
		}

		agreed, waived := decimal.Zero, decimal.Zero
		var touched []int
		for _, inst := range b.Open() {
			if onlyPrincipal {
				waived = waived.Add(inst.InterestPortion).Add(inst.MoraAmount)
				inst.Amount = inst.Amount.Sub(inst.InterestPortion)
				inst.InterestPortion = decimal.Zero
				inst.MoraAmount = decimal.Zero
			}
			due := inst.TotalDue()
			agreed = agreed.Add(due)
			if err := inst.resolve(InstallmentStatusRefinanced, due, now, ref); err != nil {
				return LedgerEvent{}, err
			}
			touched = append(touched, inst.Number)
		}
		b.Loan.Status = LoanStatusRefinanced

		return LedgerEvent{
			Type:               EventTypeLoanSettled,
			InstallmentNumbers: touched,
			Amounts: map[string]decimal.Decimal{
				"agreed_amount": agreed,
				"waived":        waived,
			},
			Flags: map[string]bool{"only_principal": onlyPrincipal},
		}, nil
	})
}

// SubmitPrepayment marks installment n as paid by the client pending staff
// review of the attached proof.
func (l *Ledger) SubmitPrepayment(book *LoanBook, expectedVersion int64, n int, amount decimal.Decimal, proofRef, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, _ time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		if strings.TrimSpace(proofRef) == "" {
			return LedgerEvent{}, fmt.Errorf("%w: proof reference is required", ErrInvalidInput)
		}
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		if inst.Status == InstallmentStatusPrepaid {
			return LedgerEvent{}, fmt.Errorf("%w: installment %d already has a pending proof", ErrAlreadyClosed, n)
		}
		if inst.IsResolved() {
			return LedgerEvent{}, fmt.Errorf("%w: installment %d is %s", ErrAlreadyClosed, n, inst.Status)
		}
		if err := b.checkSequence(n, true); err != nil {
			return LedgerEvent{}, err
		}
		due := inst.TotalDue()
		if amount.LessThan(due) {
			return LedgerEvent{}, fmt.Errorf("%w: installment %d requires %s, got %s", ErrPaymentTooLow, n, due, amount)
		}
		if amount.Sub(due).GreaterThan(b.surplusRoom(n)) {
			return LedgerEvent{}, fmt.Errorf("%w: payment exceeds the outstanding balance of loan %s", ErrInvalidInput, b.Loan.ID)
		}

		prior := inst.Status
		if err := inst.transition(InstallmentStatusPrepaid); err != nil {
			return LedgerEvent{}, err
		}
		inst.PriorStatus = prior
		inst.ProofRef = proofRef
		inst.PrepaidAmount = amount
		inst.RejectionReason = ""

		return LedgerEvent{
			Type:               EventTypePrepaymentSubmitted,
			InstallmentNumbers: []int{n},
			Amounts:            map[string]decimal.Decimal{"amount": amount, "amount_due": due},
			ProofRef:           proofRef,
		}, nil
	})
}

// ConfirmPrepayment accepts a pending proof and pays the installment with
// the submitted amount.
func (l *Ledger) ConfirmPrepayment(book *LoanBook, expectedVersion int64, n int, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		if inst.Status != InstallmentStatusPrepaid {
			return LedgerEvent{}, fmt.Errorf("%w: installment %d has no pending prepayment", ErrInvalidInput, n)
		}
		proof := inst.ProofRef
		ev, err := settle(b, inst, inst.PrepaidAmount, now, ref, EventTypePrepaymentConfirmed)
		if err != nil {
			return LedgerEvent{}, err
		}
		ev.ProofRef = proof
		return ev, nil
	})
}

// RejectPrepayment discards a pending proof and returns the installment to
// the state its due date implies.
func (l *Ledger) RejectPrepayment(book *LoanBook, expectedVersion int64, n int, reason, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, now time.Time) (LedgerEvent, error) {
		if err := ValidateRejectionReason(reason); err != nil {
			return LedgerEvent{}, err
		}
		reason = strings.TrimSpace(reason)
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		if inst.Status != InstallmentStatusPrepaid {
			return LedgerEvent{}, fmt.Errorf("%w: installment %d has no pending prepayment", ErrInvalidInput, n)
		}

		restored, _ := inst.dateStatus(DateOf(now))
		if err := inst.transition(restored); err != nil {
			return LedgerEvent{}, err
		}
		proof, amount := inst.ProofRef, inst.PrepaidAmount
		inst.PriorStatus = ""
		inst.ProofRef = ""
		inst.PrepaidAmount = decimal.Zero
		inst.RejectionReason = reason

		return LedgerEvent{
			Type:               EventTypePrepaymentRejected,
			InstallmentNumbers: []int{n},
			Amounts:            map[string]decimal.Decimal{"amount": amount},
			ProofRef:           proof,
			Reason:             reason,
		}, nil
	})
}

// ApplyMoraReduction grants the one-time mora discount on installment n.
func (l *Ledger) ApplyMoraReduction(book *LoanBook, expectedVersion int64, n int, pct decimal.Decimal, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, _ time.Time) (LedgerEvent, error) {
		if err := requireActive(b); err != nil {
			return LedgerEvent{}, err
		}
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		before := inst.MoraAmount
		if err := inst.ApplyMoraReduction(pct); err != nil {
			return LedgerEvent{}, err
		}
		return LedgerEvent{
			Type:               EventTypeMoraReduced,
			InstallmentNumbers: []int{n},
			Amounts: map[string]decimal.Decimal{
				"percent":     pct,
				"mora_before": before,
				"mora_after":  inst.MoraAmount,
			},
		}, nil
	})
}

// UpdateObservations replaces the operator note on installment n.
func (l *Ledger) UpdateObservations(book *LoanBook, expectedVersion int64, n int, text, ref string) (*LoanBook, LedgerEvent, error) {
	return l.apply(book, expectedVersion, ref, func(b *LoanBook, _ time.Time) (LedgerEvent, error) {
		if len(text) > MaxObservationsLength {
			return LedgerEvent{}, fmt.Errorf("%w: observations exceed %d characters", ErrInvalidInput, MaxObservationsLength)
		}
		inst, err := b.Installment(n)
		if err != nil {
			return LedgerEvent{}, err
		}
		inst.Observations = text
		return LedgerEvent{Type: EventTypeObservationsUpdated, InstallmentNumbers: []int{n}, Reason: text}, nil
	})
}

// Refresh recomputes derived statuses and mora without a version check. It
// reports false, and returns the input book, when nothing changed.
func (l *Ledger) Refresh(book *LoanBook) (*LoanBook, LedgerEvent, bool) {
	next := book.Clone()
	now := l.clock.Now()
	if !next.refresh(DateOf(now), l.lateFee) {
		return book, LedgerEvent{}, false
	}
	next.Version++
	next.Loan.UpdatedAt = now

	var overdue []int
	mora := decimal.Zero
	for _, inst := range next.Open() {
		if inst.Status == InstallmentStatusOverdue {
			overdue = append(overdue, inst.Number)
			mora = mora.Add(inst.MoraAmount)
		}
	}
	return next, LedgerEvent{
		Type:               EventTypeLoanRefreshed,
		LoanID:             next.Loan.ID,
		InstallmentNumbers: overdue,
		Amounts:            map[string]decimal.Decimal{"mora": mora},
		OperatorRef:        SystemOperator,
		OccurredAt:         now,
		Version:            next.Version,
	}, true
}

// View returns a refreshed copy for display; nothing is meant to be saved.
func (l *Ledger) View(book *LoanBook) *LoanBook {
	next := book.Clone()
	next.refresh(l.Today(), l.lateFee)
	return next
}

func numbers(installments []Installment) []int {
	out := make([]int, len(installments))
	for i, inst := range installments {
		out[i] = inst.Number
	}
	return out
}
