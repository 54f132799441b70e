package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/microloan/internal/domain"
	"github.com/iho/microloan/internal/usecase"
	"github.com/iho/microloan/internal/usecase/mocks"
)

func TestProofUseCase_Upload(t *testing.T) {
	ctrl := gomock.NewController(t)
	loans := mocks.NewMockLoanRepository(ctrl)
	proofs := mocks.NewMockProofRepository(ctrl)
	idGen := mocks.NewMockIDGenerator(ctrl)
	uc := usecase.NewProofUseCase(proofs, loans, idGen, domain.FixedClock(day(2024, 1, 3)))

	loans.EXPECT().GetByID(gomock.Any(), "loan-1").Return(&domain.LoanBook{}, nil)
	idGen.EXPECT().Generate().Return("proof-1")
	proofs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	proof, err := uc.Upload(advisorCtx(), usecase.UploadProofInput{
		LoanID:      "loan-1",
		ContentType: "image/png",
		Content:     []byte("\x89PNG fake"),
	})
	require.NoError(t, err)
	assert.Equal(t, "proof-1", proof.ID)
	assert.Equal(t, "adv-1", proof.UploadedBy)
	assert.Len(t, proof.Checksum, 64)
}

func TestProofUseCase_UploadRejects(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		content     []byte
	}{
		{"unsupported type", "text/plain", []byte("hello")},
		{"empty", "image/jpeg", nil},
		{"too large", "application/pdf", make([]byte, domain.MaxProofSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			loans := mocks.NewMockLoanRepository(ctrl)
			idGen := mocks.NewMockIDGenerator(ctrl)
			loans.EXPECT().GetByID(gomock.Any(), "loan-1").Return(&domain.LoanBook{}, nil)
			idGen.EXPECT().Generate().Return("proof-1")

			uc := usecase.NewProofUseCase(mocks.NewMockProofRepository(ctrl), loans, idGen, nil)
			_, err := uc.Upload(context.Background(), usecase.UploadProofInput{
				LoanID: "loan-1", ContentType: tt.contentType, Content: tt.content,
			})
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestProofUseCase_UploadUnknownLoan(t *testing.T) {
	ctrl := gomock.NewController(t)
	loans := mocks.NewMockLoanRepository(ctrl)
	loans.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, domain.ErrLoanNotFound)

	uc := usecase.NewProofUseCase(mocks.NewMockProofRepository(ctrl), loans, mocks.NewMockIDGenerator(ctrl), nil)
	_, err := uc.Upload(context.Background(), usecase.UploadProofInput{LoanID: "missing", ContentType: "image/png", Content: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}
