/*
handlers.go - HTTP API handlers for the loan accounting engine

PURPOSE:
  Exposes the loan, payment, and ledger services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Loans:
    POST   /api/loans                  Create loans (batch, atomic)
    GET    /api/loans/{id}             Get loan details
    GET    /api/loans/{id}/payments    Payment history
    POST   /api/loans/{id}/cancel      Cancel an erroneous loan

  Payments:
    POST   /api/payments               Record a standalone payment
    DELETE /api/payments/{id}          Delete a payment (reverts balances)

  Collection batches:
    POST   /api/batches                Record a collection run
    GET    /api/batches/{id}           Get batch with its payments
    PUT    /api/batches/{id}           Edit a batch (full desired state)
    POST   /api/batches/{id}/falco-compensations  Repay a reported shortage

  Accounts:
    GET    /api/accounts                    List accounts
    GET    /api/accounts/reconcile          Reconcile every account
    GET    /api/accounts/{id}/entries       Ledger entries
    GET    /api/accounts/{id}/reconcile     Stored vs calculated balance
    POST   /api/accounts/{id}/fix           Append a balance adjustment

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate renewal, over-compensation, blocked cancel)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
	"github.com/warp/loan-engine/loans"
	"github.com/warp/loan-engine/payments"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo     engine.Repository
	Balance  *ledger.BalanceService
	Payments *payments.PaymentService
	Loans    *loans.LoanService
}

// NewHandler creates a new handler over the given repository and services.
func NewHandler(repo engine.Repository, balance *ledger.BalanceService, paymentSvc *payments.PaymentService, loanSvc *loans.LoanService) *Handler {
	return &Handler{
		Repo:     repo,
		Balance:  balance,
		Payments: paymentSvc,
		Loans:    loanSvc,
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// CreateLoans creates a batch of loans as one transaction.
// POST /api/loans
func (h *Handler) CreateLoans(w http.ResponseWriter, r *http.Request) {
	var req CreateLoansRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Loans) == 0 {
		writeError(w, http.StatusBadRequest, "No loans in request", nil)
		return
	}

	requests := make([]loans.CreateLoanRequest, 0, len(req.Loans))
	for _, dto := range req.Loans {
		domain, err := dto.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid loan", err)
			return
		}
		requests = append(requests, domain)
	}

	created, err := h.Loans.CreateLoans(r.Context(), requests)
	if err != nil {
		writeDomainError(w, "Failed to create loans", err)
		return
	}

	dtos := make([]LoanDTO, len(created))
	for i, l := range created {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// GetLoan returns a single loan.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loan, err := h.Repo.GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// GetLoanPayments returns a loan's payment history.
// GET /api/loans/{id}/payments
func (h *Handler) GetLoanPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Repo.GetLoan(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get loan", err)
		return
	}
	list, err := h.Repo.PaymentsByLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(list))
	for i, p := range list {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CancelLoan cancels an erroneously created loan, restoring account
// balances and the predecessor's state. A loan with payment history beyond
// the sign-day advance is refused with 409 and a report of what blocked it.
// POST /api/loans/{id}/cancel
func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.Loans.CancelLoan(r.Context(), id)
	if errors.Is(err, engine.ErrUnaffectedPayments) && result != nil {
		writeJSON(w, http.StatusConflict, toCancelLoanDTO(result, false))
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to cancel loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toCancelLoanDTO(result, true))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a standalone collection against a loan.
// POST /api/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	input, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment", err)
		return
	}
	payment, err := h.Payments.RecordPayment(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// DeletePayment removes a payment and reverts every balance it touched.
// DELETE /api/payments/{id}
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Payments.DeletePayment(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// RecordBatch records one agent's collection run atomically.
// POST /api/batches
func (h *Handler) RecordBatch(w http.ResponseWriter, r *http.Request) {
	var req RecordBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	input, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch", err)
		return
	}
	batch, err := h.Payments.RecordBatch(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to record batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(batch))
}

// GetBatch returns a batch together with its payments.
// GET /api/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	batch, err := h.Repo.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}
	list, err := h.Repo.PaymentsByBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list batch payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(list))
	for i, p := range list {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, struct {
		BatchDTO
		Payments []PaymentDTO `json:"payments"`
	}{toBatchDTO(batch), dtos})
}

// EditBatch replaces a batch with the submitted desired state. Unchanged
// lines are left untouched; added, edited, and deleted lines are applied
// and every account balance moves by exactly the net difference. Deleting
// every line removes the batch and returns 204.
// PUT /api/batches/{id}
func (h *Handler) EditBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req EditBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	input, err := req.toDomain(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch edit", err)
		return
	}
	batch, err := h.Payments.EditBatch(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to edit batch", err)
		return
	}
	if batch == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// CompensateShortage records a repayment against a batch's reported falco.
// POST /api/batches/{id}/falco-compensations
func (h *Handler) CompensateShortage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CompensateShortageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid compensation", err)
		return
	}
	receivedAt, err := parseDate("receivedAt", req.ReceivedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid compensation", err)
		return
	}
	comp, err := h.Payments.CompensateShortage(r.Context(), payments.CompensateShortageInput{
		BatchID:    id,
		Amount:     amount,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		writeDomainError(w, "Failed to compensate shortage", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFalcoCompensationDTO(comp))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts with their stored balances.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Repo.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccountEntries returns an account's ledger entries.
// GET /api/accounts/{id}/entries
func (h *Handler) GetAccountEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Repo.GetAccount(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	entries, err := h.Repo.EntriesByAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReconcileAccount compares an account's stored balance against the balance
// calculated from its entries.
// GET /api/accounts/{id}/reconcile
func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.Balance.ReconcileAccount(r.Context(), h.Repo, id)
	if err != nil {
		writeDomainError(w, "Failed to reconcile account", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(rec))
}

// ReconcileAll reconciles every account.
// GET /api/accounts/reconcile
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Balance.ReconcileAll(r.Context(), h.Repo)
	if err != nil {
		writeDomainError(w, "Failed to reconcile accounts", err)
		return
	}
	dtos := make([]ReconciliationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toReconciliationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FixBalance appends a BALANCE_ADJUSTMENT entry closing the gap between an
// account's entry history and its stored balance. A consistent account is a
// no-op and returns 204.
// POST /api/accounts/{id}/fix
func (h *Handler) FixBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req FixBalanceRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var entry *engine.AccountEntry
	err := h.Repo.WithinTx(r.Context(), func(tx engine.Repository) error {
		var err error
		entry, err = h.Balance.FixBalance(r.Context(), tx, id, req.Description)
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to fix balance", err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrDuplicateRenewal),
		errors.Is(err, engine.ErrExceedsRemaining),
		errors.Is(err, engine.ErrUnaffectedPayments):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
