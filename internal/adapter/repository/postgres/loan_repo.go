package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

const loanColumns = `id, client_id, advisor_id, group_id, principal, interest_rate, term_count, frequency,
	other_fees_rate, start_date, total_payable, installment_amount, status, reschedule_count,
	version, created_at, updated_at`

const installmentColumns = `number, due_date, principal_portion, interest_portion, other_portion, amount,
	carried_surplus, status, days_overdue, mora_amount, mora_reduction_percent, observations,
	amount_paid, paid_at, operation_ref, proof_ref, prepaid_amount, prior_status, rejection_reason`

const insertLoanSQL = `
	INSERT INTO loans (` + loanColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const updateLoanSQL = `
	UPDATE loans
	SET status = $2, reschedule_count = $3, version = $4, updated_at = $5
	WHERE id = $1 AND version = $6`

const upsertInstallmentSQL = `
	INSERT INTO installments (loan_id, ` + installmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	ON CONFLICT (loan_id, number) DO UPDATE SET
		due_date = EXCLUDED.due_date,
		principal_portion = EXCLUDED.principal_portion,
		interest_portion = EXCLUDED.interest_portion,
		other_portion = EXCLUDED.other_portion,
		amount = EXCLUDED.amount,
		carried_surplus = EXCLUDED.carried_surplus,
		status = EXCLUDED.status,
		days_overdue = EXCLUDED.days_overdue,
		mora_amount = EXCLUDED.mora_amount,
		mora_reduction_percent = EXCLUDED.mora_reduction_percent,
		observations = EXCLUDED.observations,
		amount_paid = EXCLUDED.amount_paid,
		paid_at = EXCLUDED.paid_at,
		operation_ref = EXCLUDED.operation_ref,
		proof_ref = EXCLUDED.proof_ref,
		prepaid_amount = EXCLUDED.prepaid_amount,
		prior_status = EXCLUDED.prior_status,
		rejection_reason = EXCLUDED.rejection_reason`

const selectLoanSQL = `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

const selectInstallmentsSQL = `SELECT ` + installmentColumns + ` FROM installments WHERE loan_id = $1 ORDER BY number`

// LoanRepository implements usecase.LoanRepository. A loan row carries the
// book's version; its installments are rewritten with every save.
type LoanRepository struct {
	db DBTX
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return newLoanRepositoryWithDB(pool)
}

func newLoanRepositoryWithDB(db DBTX) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create inserts a new book within a transaction.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, book *domain.LoanBook) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	l := book.Loan
	_, err = q.Exec(ctx, insertLoanSQL,
		l.ID,
		l.ClientID,
		l.AdvisorID,
		optionalText(l.GroupID),
		decimalToNumeric(l.Principal),
		decimalToNumeric(l.InterestRate),
		l.TermCount,
		string(l.Frequency),
		decimalToNumeric(l.OtherFeesRate),
		dateToPg(l.StartDate),
		decimalToNumeric(l.TotalPayable),
		decimalToNumeric(l.InstallmentAmount),
		string(l.Status),
		l.RescheduleCount,
		book.Version,
		timeToPgTimestamptz(l.CreatedAt),
		timeToPgTimestamptz(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert loan %s: %w", l.ID, err)
	}

	return r.writeInstallments(ctx, q, l.ID, book.Installments)
}

// GetByID loads a book without locking it.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.LoanBook, error) {
	return r.load(ctx, r.db, selectLoanSQL, id)
}

// GetByIDForUpdate loads a book and locks its loan row until the
// transaction ends.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.LoanBook, error) {
	q, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, q, selectLoanSQL+" FOR UPDATE", id)
}

// Save writes book if the stored version still equals expectedVersion.
func (r *LoanRepository) Save(ctx context.Context, tx usecase.Transaction, book *domain.LoanBook, expectedVersion int64) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updateLoanSQL,
		book.Loan.ID,
		string(book.Loan.Status),
		book.Loan.RescheduleCount,
		book.Version,
		timeToPgTimestamptz(book.Loan.UpdatedAt),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update loan %s: %w", book.Loan.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: loan %s is no longer at version %d", domain.ErrStaleState, book.Loan.ID, expectedVersion)
	}

	return r.writeInstallments(ctx, q, book.Loan.ID, book.Installments)
}

// List returns loan headers matching filter, newest first.
func (r *LoanRepository) List(ctx context.Context, filter usecase.LoanFilter) ([]*domain.Loan, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("status", string(filter.Status))
	add("client_id", filter.ClientID)
	add("advisor_id", filter.AdvisorID)
	add("group_id", filter.GroupID)

	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]*domain.Loan, 0)
	for rows.Next() {
		loan, _, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

// ListIDs pages loan ids in ascending order.
func (r *LoanRepository) ListIDs(ctx context.Context, status domain.LoanStatus, afterID string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM loans
		WHERE ($1 = '' OR status = $1) AND id > $2
		ORDER BY id
		LIMIT $3`, string(status), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *LoanRepository) load(ctx context.Context, q DBTX, query, id string) (*domain.LoanBook, error) {
	loan, version, err := scanLoan(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLoanNotFound, id)
		}
		return nil, err
	}

	rows, err := q.Query(ctx, selectInstallmentsSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	book := &domain.LoanBook{Loan: *loan, Version: version}
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		book.Installments = append(book.Installments, inst)
	}

	return book, rows.Err()
}

func (r *LoanRepository) writeInstallments(ctx context.Context, q DBTX, loanID string, installments []domain.Installment) error {
	for _, inst := range installments {
		_, err := q.Exec(ctx, upsertInstallmentSQL,
			loanID,
			inst.Number,
			dateToPg(inst.DueDate),
			decimalToNumeric(inst.PrincipalPortion),
			decimalToNumeric(inst.InterestPortion),
			decimalToNumeric(inst.OtherPortion),
			decimalToNumeric(inst.Amount),
			decimalToNumeric(inst.CarriedSurplus),
			string(inst.Status),
			inst.DaysOverdue,
			decimalToNumeric(inst.MoraAmount),
			decimalToNumeric(inst.MoraReductionPercent),
			inst.Observations,
			decimalToNumeric(inst.AmountPaid),
			optionalTime(inst.PaidAt),
			inst.OperationRef,
			inst.ProofRef,
			decimalToNumeric(inst.PrepaidAmount),
			string(inst.PriorStatus),
			inst.RejectionReason,
		)
		if err != nil {
			return fmt.Errorf("write installment %d of loan %s: %w", inst.Number, loanID, err)
		}
	}
	return nil
}

func scanLoan(row pgx.Row) (*domain.Loan, int64, error) {
	var (
		l                               domain.Loan
		groupID                         pgtype.Text
		principal, rate, feeRate        pgtype.Numeric
		totalPayable, installmentAmount pgtype.Numeric
		frequency, status               string
		startDate                       pgtype.Date
		createdAt, updatedAt            pgtype.Timestamptz
		version                         int64
	)

	err := row.Scan(
		&l.ID,
		&l.ClientID,
		&l.AdvisorID,
		&groupID,
		&principal,
		&rate,
		&l.TermCount,
		&frequency,
		&feeRate,
		&startDate,
		&totalPayable,
		&installmentAmount,
		&status,
		&l.RescheduleCount,
		&version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, 0, err
	}

	l.GroupID = groupID.String
	l.Principal = numericToDecimal(principal)
	l.InterestRate = numericToDecimal(rate)
	l.Frequency = domain.Frequency(frequency)
	l.OtherFeesRate = numericToDecimal(feeRate)
	l.StartDate = pgToDate(startDate)
	l.TotalPayable = numericToDecimal(totalPayable)
	l.InstallmentAmount = numericToDecimal(installmentAmount)
	l.Status = domain.LoanStatus(status)
	l.CreatedAt = createdAt.Time.UTC()
	l.UpdatedAt = updatedAt.Time.UTC()

	return &l, version, nil
}

func scanInstallment(row pgx.Row) (domain.Installment, error) {
	var (
		inst                                   domain.Installment
		dueDate                                pgtype.Date
		principal, interest, other, amount     pgtype.Numeric
		surplus, mora, reduction, paid, prepay pgtype.Numeric
		status, prior                          string
		paidAt                                 pgtype.Timestamptz
	)

	err := row.Scan(
		&inst.Number,
		&dueDate,
		&principal,
		&interest,
		&other,
		&amount,
		&surplus,
		&status,
		&inst.DaysOverdue,
		&mora,
		&reduction,
		&inst.Observations,
		&paid,
		&paidAt,
		&inst.OperationRef,
		&inst.ProofRef,
		&prepay,
		&prior,
		&inst.RejectionReason,
	)
	if err != nil {
		return domain.Installment{}, err
	}

	inst.DueDate = pgToDate(dueDate)
	inst.PrincipalPortion = numericToDecimal(principal)
	inst.InterestPortion = numericToDecimal(interest)
	inst.OtherPortion = numericToDecimal(other)
	inst.Amount = numericToDecimal(amount)
	inst.CarriedSurplus = numericToDecimal(surplus)
	inst.Status = domain.InstallmentStatus(status)
	inst.MoraAmount = numericToDecimal(mora)
	inst.MoraReductionPercent = numericToDecimal(reduction)
	inst.AmountPaid = numericToDecimal(paid)
	inst.PaidAt = timePtr(paidAt)
	inst.PrepaidAmount = numericToDecimal(prepay)
	inst.PriorStatus = domain.InstallmentStatus(prior)

	return inst, nil
}
