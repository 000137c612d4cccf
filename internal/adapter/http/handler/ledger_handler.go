package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/jibledger/internal/adapter/http/dto"
	"github.com/iho/jibledger/internal/domain"
	"github.com/iho/jibledger/internal/usecase"
)

// LedgerService is the part of usecase.LedgerUseCase used over HTTP.
type LedgerService interface {
	CreateCashCall(ctx context.Context, in usecase.CreateCashCallInput) (*domain.Ledger, error)
	CreateJIBStatement(ctx context.Context, in usecase.CreateJIBStatementInput) (*domain.Ledger, error)
	SendLedger(ctx context.Context, ledgerID string) (*domain.Ledger, bool, error)
	GetLedger(ctx context.Context, ledgerID string) (*domain.Ledger, error)
	ListLedgers(ctx context.Context, filter usecase.LedgerFilter) ([]*domain.Ledger, error)
	GetLedgerStatus(ctx context.Context, ledgerID string) (domain.LedgerStatus, error)
	VerifyLedger(ctx context.Context, ledgerID string) (*usecase.VerificationResult, error)
}

// LedgerHandler handles cash call and JIB statement requests.
type LedgerHandler struct {
	ledgers LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgers LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgers: ledgers}
}

// CreateCashCall allocates a new cash call.
func (h *LedgerHandler) CreateCashCall(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCashCallRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	ledger, err := h.ledgers.CreateCashCall(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, "failed to create cash call", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LedgerFromDomain(ledger))
}

// CreateJIBStatement allocates a new JIB statement.
func (h *LedgerHandler) CreateJIBStatement(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateJIBStatementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	ledger, err := h.ledgers.CreateJIBStatement(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, "failed to create JIB statement", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LedgerFromDomain(ledger))
}

// Send releases a draft ledger to its partners.
func (h *LedgerHandler) Send(w http.ResponseWriter, r *http.Request) {
	ledger, changed, err := h.ledgers.SendLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to send ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SendResponse{Ledger: dto.LedgerFromDomain(ledger), Changed: changed})
}

// Get retrieves a ledger with its obligations.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.ledgers.GetLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LedgerFromDomain(ledger))
}

// List lists ledgers, optionally by contract_id and kind.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := usecase.LedgerFilter{
		ContractID: r.URL.Query().Get("contract_id"),
		Kind:       domain.LedgerKind(r.URL.Query().Get("kind")),
		Limit:      parseIntQuery(r, "limit", 50),
		Offset:     parseIntQuery(r, "offset", 0),
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid kind", string(filter.Kind))
		return
	}

	ledgers, err := h.ledgers.ListLedgers(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "failed to list ledgers", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LedgersFromDomain(ledgers))
}

// Status returns the aggregate status.
func (h *LedgerHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.ledgers.GetLedgerStatus(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get ledger status", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.StatusResponse{LedgerID: id, Status: string(status)})
}

// Verify compares the stored, cached and derived status.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledgers.VerifyLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to verify ledger", err)
		return
	}

	status := http.StatusOK
	if !result.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.VerificationFromResult(result))
}
