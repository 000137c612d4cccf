package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/jibledger/internal/adapter/http/dto"
	"github.com/iho/jibledger/internal/usecase"
)

// ReconciliationService is the part of usecase.ReconciliationUseCase used over HTTP.
type ReconciliationService interface {
	RecordFunding(ctx context.Context, in usecase.SettlementInput) (*usecase.ReconciliationResult, error)
	RecordPayment(ctx context.Context, in usecase.SettlementInput) (*usecase.ReconciliationResult, error)
	MarkDispute(ctx context.Context, ledgerID, partyID, reason string) (*usecase.ReconciliationResult, error)
	ResolveDispute(ctx context.Context, ledgerID, partyID, note string) (*usecase.ReconciliationResult, error)
	MarkDefault(ctx context.Context, ledgerID, partyID string, penalty *decimal.Decimal) (*usecase.ReconciliationResult, error)
}

// ReconciliationHandler handles partner actions on obligations. Routes are
// keyed by ledger id and party id.
type ReconciliationHandler struct {
	recon ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(recon ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{recon: recon}
}

// Fund records a cash call funding.
func (h *ReconciliationHandler) Fund(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "failed to record funding", h.recon.RecordFunding)
}

// Pay records a JIB payment.
func (h *ReconciliationHandler) Pay(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "failed to record payment", h.recon.RecordPayment)
}

func (h *ReconciliationHandler) settle(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	apply func(context.Context, usecase.SettlementInput) (*usecase.ReconciliationResult, error),
) {
	var req dto.SettlementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "id"), chi.URLParam(r, "party"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := apply(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, message, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, dto.ReconciliationFromResult(result))
}

// Dispute opens a dispute.
func (h *ReconciliationHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req dto.DisputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.recon.MarkDispute(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "party"), req.Reason)
	if err != nil {
		writeDomainError(w, r, "failed to mark dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromResult(result))
}

// Resolve closes a dispute.
func (h *ReconciliationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.DisputeRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.recon.ResolveDispute(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "party"), req.Reason)
	if err != nil {
		writeDomainError(w, r, "failed to resolve dispute", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromResult(result))
}

// Default marks a partner as defaulted.
func (h *ReconciliationHandler) Default(w http.ResponseWriter, r *http.Request) {
	var req dto.DefaultRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.recon.MarkDefault(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "party"), req.PenaltyAmount)
	if err != nil {
		writeDomainError(w, r, "failed to mark default", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ReconciliationFromResult(result))
}
