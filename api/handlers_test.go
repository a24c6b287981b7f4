/*
handlers_test.go - HTTP-level tests over the in-memory store

Tests for:
- Loan creation and retrieval round trip
- Cancellation refusal with the operator report
- Reconcile / fix-balance flow
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/engine/store"
	"github.com/warp/loan-engine/ledger"
	"github.com/warp/loan-engine/loans"
	"github.com/warp/loan-engine/payments"
)

type testEnv struct {
	repo   *store.Memory
	router http.Handler
	lead   uuid.UUID
	cash   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()
	clock := engine.FixedClock{At: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
	balance := ledger.NewBalanceService(clock, nil)
	paymentSvc := payments.NewPaymentService(repo, balance, clock, nil)
	loanSvc := loans.NewLoanService(repo, balance, paymentSvc, clock, nil)

	routeID := uuid.New()
	lead := &engine.Employee{ID: uuid.New(), Name: "lead", RouteID: routeID}
	if err := repo.CreateEmployee(ctx, lead); err != nil {
		t.Fatalf("create employee: %v", err)
	}
	cash := &engine.Account{
		ID:      uuid.New(),
		Name:    "route cash fund",
		Type:    engine.AccountEmployeeCashFund,
		RouteID: &routeID,
		Amount:  decimal.RequireFromString("10000"),
	}
	if err := repo.CreateAccount(ctx, cash); err != nil {
		t.Fatalf("create account: %v", err)
	}
	bank := &engine.Account{
		ID:      uuid.New(),
		Name:    "route bank",
		Type:    engine.AccountBank,
		RouteID: &routeID,
		Amount:  decimal.RequireFromString("5000"),
	}
	if err := repo.CreateAccount(ctx, bank); err != nil {
		t.Fatalf("create account: %v", err)
	}

	return &testEnv{
		repo:   repo,
		router: NewRouter(NewHandler(repo, balance, paymentSvc, loanSvc)),
		lead:   lead.ID,
		cash:   cash.ID,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (env *testEnv) createLoan(t *testing.T) LoanDTO {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/loans", CreateLoansRequest{
		Loans: []CreateLoanDTO{{
			LeadID:           env.lead.String(),
			RequestedAmount:  "3000",
			Rate:             "0.40",
			WeekDuration:     14,
			PaymentComission: "8",
			GrantComission:   "60",
			SignDate:         "2024-03-04",
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create loan: status %d body %s", rec.Code, rec.Body.String())
	}
	var created []LoanDTO
	decodeInto(t, rec, &created)
	if len(created) != 1 {
		t.Fatalf("expected 1 created loan, got %d", len(created))
	}
	return created[0]
}

func TestCreateAndGetLoan(t *testing.T) {
	// GIVEN: a loan created through the API
	env := newTestEnv(t)
	loan := env.createLoan(t)

	// THEN: the derived aggregates are on the wire as decimal strings
	if loan.TotalDebtAcquired != "4200" {
		t.Errorf("totalDebtAcquired = %s, want 4200", loan.TotalDebtAcquired)
	}
	if loan.ExpectedWeeklyPayment != "300" {
		t.Errorf("expectedWeeklyPayment = %s, want 300", loan.ExpectedWeeklyPayment)
	}

	// WHEN: fetching it back
	rec := env.do(t, http.MethodGet, "/api/loans/"+loan.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get loan: status %d", rec.Code)
	}
	var fetched LoanDTO
	decodeInto(t, rec, &fetched)
	if fetched.ID != loan.ID || fetched.Status != "ACTIVE" {
		t.Errorf("fetched %s/%s, want %s/ACTIVE", fetched.ID, fetched.Status, loan.ID)
	}
}

func TestGetLoan_UnknownIDIs404(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/loans/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateLoans_EmptyListIs400(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/loans", CreateLoansRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCancelLoan_WithHistoryReturns409AndReport(t *testing.T) {
	// GIVEN: a loan with a collection a week after signing
	env := newTestEnv(t)
	loan := env.createLoan(t)

	rec := env.do(t, http.MethodPost, "/api/payments", RecordPaymentRequest{
		LoanID:     loan.ID,
		Amount:     "300",
		ReceivedAt: "2024-03-11",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record payment: status %d body %s", rec.Code, rec.Body.String())
	}

	// WHEN: cancelling it
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%s/cancel", loan.ID), nil)

	// THEN: the refusal still carries the operator report
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %s", rec.Code, rec.Body.String())
	}
	var report CancelLoanDTO
	decodeInto(t, rec, &report)
	if report.Cancelled || !report.HasUnaffectedPayments || report.UnaffectedPaymentsCount != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	// AND: the loan survived
	rec = env.do(t, http.MethodGet, "/api/loans/"+loan.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("loan gone after refused cancellation: status %d", rec.Code)
	}
}

func TestCancelLoan_CleanLoanIs200(t *testing.T) {
	env := newTestEnv(t)
	loan := env.createLoan(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%s/cancel", loan.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var report CancelLoanDTO
	decodeInto(t, rec, &report)
	if !report.Cancelled || report.AmountToRestore != "3060" {
		t.Errorf("unexpected report: %+v", report)
	}

	rec = env.do(t, http.MethodGet, "/api/loans/"+loan.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancelled loan still readable: status %d", rec.Code)
	}
}

func TestReconcileAndFixBalance(t *testing.T) {
	// GIVEN: a cash fund whose stored balance was corrupted out-of-band
	env := newTestEnv(t)
	env.createLoan(t)

	ctx := context.Background()
	account, err := env.repo.GetAccount(ctx, env.cash)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	account.Amount = account.Amount.Add(decimal.RequireFromString("50"))
	if err := env.repo.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("update account: %v", err)
	}

	// WHEN: reconciling
	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%s/reconcile", env.cash), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: status %d", rec.Code)
	}
	var report ReconciliationDTO
	decodeInto(t, rec, &report)
	if report.IsConsistent || report.Difference != "50" {
		t.Errorf("unexpected reconciliation: %+v", report)
	}

	// AND WHEN: fixing the drift
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%s/fix", env.cash), FixBalanceRequest{Description: "audit 2024-03"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("fix: status %d body %s", rec.Code, rec.Body.String())
	}
	var entry EntryDTO
	decodeInto(t, rec, &entry)
	if entry.Type != "CREDIT" || entry.Amount != "50" {
		t.Errorf("adjustment entry = %s %s, want CREDIT 50", entry.Type, entry.Amount)
	}

	// THEN: a second reconcile is consistent and a second fix is a no-op
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%s/reconcile", env.cash), nil)
	decodeInto(t, rec, &report)
	if !report.IsConsistent {
		t.Errorf("still inconsistent after fix: %+v", report)
	}
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%s/fix", env.cash), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("second fix: status %d, want 204", rec.Code)
	}
}
