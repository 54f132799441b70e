package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/microloan/internal/domain"
)

// ProofRepository implements usecase.ProofRepository.
type ProofRepository struct {
	db DBTX
}

// NewProofRepository creates a new ProofRepository.
func NewProofRepository(pool *pgxpool.Pool) *ProofRepository {
	return &ProofRepository{db: pool}
}

// Create stores an uploaded proof.
func (r *ProofRepository) Create(ctx context.Context, proof *domain.PaymentProof) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_proofs (id, loan_id, content_type, content, checksum, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		proof.ID,
		proof.LoanID,
		proof.ContentType,
		proof.Content,
		proof.Checksum,
		proof.UploadedBy,
		timeToPgTimestamptz(proof.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment proof %s: %w", proof.ID, err)
	}
	return nil
}

// Exists reports whether a proof with id has been uploaded.
func (r *ProofRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_proofs WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
