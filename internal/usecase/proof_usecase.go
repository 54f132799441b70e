package usecase

import (
	"context"

	"github.com/iho/microloan/internal/domain"
)

// UploadProofInput represents an uploaded proof of payment.
type UploadProofInput struct {
	LoanID      string
	ContentType string
	Content     []byte
}

type ProofUseCase struct {
	proofRepo ProofRepository
	loanRepo  LoanRepository
	idGen     IDGenerator
	clock     domain.Clock
}

func NewProofUseCase(proofRepo ProofRepository, loanRepo LoanRepository, idGen IDGenerator, clock domain.Clock) *ProofUseCase {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ProofUseCase{proofRepo: proofRepo, loanRepo: loanRepo, idGen: idGen, clock: clock}
}

// Upload stores a proof for a loan and returns it. Its ID is the proof
// reference a prepayment submission quotes.
func (uc *ProofUseCase) Upload(ctx context.Context, input UploadProofInput) (*domain.PaymentProof, error) {
	if _, err := uc.loanRepo.GetByID(ctx, input.LoanID); err != nil {
		return nil, err
	}

	proof, err := domain.NewPaymentProof(
		uc.idGen.Generate(),
		input.LoanID,
		input.ContentType,
		input.Content,
		domain.OperatorRef(ctx),
		uc.clock.Now(),
	)
	if err != nil {
		return nil, err
	}

	if err := uc.proofRepo.Create(ctx, proof); err != nil {
		return nil, err
	}
	return proof, nil
}
