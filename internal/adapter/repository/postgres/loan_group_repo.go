package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// LoanGroupRepository implements usecase.LoanGroupRepository.
type LoanGroupRepository struct {
	db DBTX
}

// NewLoanGroupRepository creates a new LoanGroupRepository.
func NewLoanGroupRepository(pool *pgxpool.Pool) *LoanGroupRepository {
	return &LoanGroupRepository{db: pool}
}

// Create inserts the group header. Member loans reference it through
// loans.group_id and are inserted afterwards in the same transaction.
func (r *LoanGroupRepository) Create(ctx context.Context, tx usecase.Transaction, group *domain.LoanGroup) error {
	q, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO loan_groups (id, name, advisor_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		group.ID, group.Name, group.AdvisorID, timeToPgTimestamptz(group.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert loan group %s: %w", group.ID, err)
	}

	return nil
}

// GetByID returns the group with the ids of its loans.
func (r *LoanGroupRepository) GetByID(ctx context.Context, id string) (*domain.LoanGroup, error) {
	var (
		group     domain.LoanGroup
		createdAt pgtype.Timestamptz
	)

	err := r.db.QueryRow(ctx, `SELECT id, name, advisor_id, created_at FROM loan_groups WHERE id = $1`, id).
		Scan(&group.ID, &group.Name, &group.AdvisorID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLoanGroupNotFound, id)
		}
		return nil, err
	}
	group.CreatedAt = createdAt.Time.UTC()

	rows, err := r.db.Query(ctx, `SELECT id FROM loans WHERE group_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var loanID string
		if err := rows.Scan(&loanID); err != nil {
			return nil, err
		}
		group.LoanIDs = append(group.LoanIDs, loanID)
	}

	return &group, rows.Err()
}
