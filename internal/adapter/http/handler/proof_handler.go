package handler

import (
	"context"
	"net/http"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
)

// ProofService defines the behavior needed by ProofHandler.
type ProofService interface {
	Upload(ctx context.Context, input usecase.UploadProofInput) (*domain.PaymentProof, error)
}

// ProofHandler handles payment proof uploads.
type ProofHandler struct {
	proofUC ProofService
}

// NewProofHandler creates a new ProofHandler.
func NewProofHandler(proofUC ProofService) *ProofHandler {
	return &ProofHandler{proofUC: proofUC}
}

// Upload stores a proof and returns its reference for a later prepayment.
func (h *ProofHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req dto.UploadProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	proof, err := h.proofUC.Upload(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to upload proof", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ProofFromDomain(proof))
}
