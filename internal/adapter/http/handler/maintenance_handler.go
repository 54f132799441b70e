package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/microloan/internal/adapter/http/dto"
	"github.com/iho/microloan/internal/usecase"
)

// OverdueService refreshes derived installment state.
type OverdueService interface {
	RefreshAll(ctx context.Context) (*usecase.SweepResult, error)
	RefreshLoan(ctx context.Context, id string) (bool, error)
}

// ReconciliationService re-verifies stored books.
type ReconciliationService interface {
	ReconcileLoan(ctx context.Context, id string) (*usecase.ReconciliationResult, error)
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// MaintenanceHandler exposes the overdue sweep and reconciliation checks.
type MaintenanceHandler struct {
	overdueUC OverdueService
	reconUC   ReconciliationService
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(overdueUC OverdueService, reconUC ReconciliationService) *MaintenanceHandler {
	return &MaintenanceHandler{overdueUC: overdueUC, reconUC: reconUC}
}

// RefreshOverdue runs the overdue sweep over every active loan.
func (h *MaintenanceHandler) RefreshOverdue(w http.ResponseWriter, r *http.Request) {
	result, err := h.overdueUC.RefreshAll(r.Context())
	if err != nil {
		writeDomainError(w, "overdue refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SweepFromUseCase(result))
}

// RefreshLoan refreshes one loan.
func (h *MaintenanceHandler) RefreshLoan(w http.ResponseWriter, r *http.Request) {
	changed, err := h.overdueUC.RefreshLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "overdue refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": changed})
}

// ReconcileLoan checks the invariants of one loan.
func (h *MaintenanceHandler) ReconcileLoan(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconUC.ReconcileLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromUseCase(result))
}

// Report checks every stored loan.
func (h *MaintenanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconUC.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, "reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationReportFromUseCase(report))
}
