package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxProofSize bounds an uploaded proof of payment.
const MaxProofSize = 5 << 20

var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// PaymentProof is an uploaded proof of payment. The ledger only ever sees
// its ID, as the opaque proof reference on a prepaid installment.
type PaymentProof struct {
	ID          string
	LoanID      string
	ContentType string
	Content     []byte
	Checksum    string
	UploadedBy  string
	CreatedAt   time.Time
}

// NewPaymentProof validates the upload and computes its checksum.
func NewPaymentProof(id, loanID, contentType string, content []byte, uploadedBy string, at time.Time) (*PaymentProof, error) {
	if !allowedProofTypes[contentType] {
		return nil, fmt.Errorf("%w: unsupported proof content type %q", ErrInvalidInput, contentType)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: proof is empty", ErrInvalidInput)
	}
	if len(content) > MaxProofSize {
		return nil, fmt.Errorf("%w: proof exceeds %d bytes", ErrInvalidInput, MaxProofSize)
	}

	sum := sha256.Sum256(content)
	return &PaymentProof{
		ID:          id,
		LoanID:      loanID,
		ContentType: contentType,
		Content:     content,
		Checksum:    hex.EncodeToString(sum[:]),
		UploadedBy:  uploadedBy,
		CreatedAt:   at,
	}, nil
}
