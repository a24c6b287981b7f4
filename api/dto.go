/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients. Monetary amounts travel as decimal
  strings ("1500.00"), never as JSON numbers, so no client-side float ever
  touches money. Dates use RFC3339.

CONVERSION:
  The to*DTO helpers map domain structs into wire shapes; toDomain methods on
  the request types validate and convert the other way. Handlers never touch
  shopspring/decimal parsing directly.

SEE ALSO:
  - handlers.go: Handler implementations
*/
package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
	"github.com/warp/loan-engine/loans"
	"github.com/warp/loan-engine/payments"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	return d, nil
}

func parseOptionalAmount(field string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseAmount(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: invalid id %q", field, s)
	}
	return id, nil
}

func parseOptionalID(field string, s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := parseID(field, *s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", field, s)
	}
	return t, nil
}

func parseMethod(s string) (engine.PaymentMethod, error) {
	switch engine.PaymentMethod(s) {
	case engine.MethodCash, engine.MethodMoneyTransfer:
		return engine.PaymentMethod(s), nil
	case "":
		return engine.MethodCash, nil
	}
	return "", fmt.Errorf("method: unknown value %q", s)
}

// =============================================================================
// LOANS
// =============================================================================

// FirstPaymentDTO is an advance collected at signing.
type FirstPaymentDTO struct {
	Amount string `json:"amount"`
	Method string `json:"method,omitempty"`
}

// CreateLoanDTO is one loan in a creation batch request.
type CreateLoanDTO struct {
	LeadID           string           `json:"leadId"`
	RequestedAmount  string           `json:"requestedAmount"`
	Rate             string           `json:"rate"`
	WeekDuration     int              `json:"weekDuration"`
	PaymentComission string           `json:"paymentComission,omitempty"`
	GrantComission   string           `json:"grantComission,omitempty"`
	SignDate         string           `json:"signDate"`
	PreviousLoanID   *string          `json:"previousLoanId,omitempty"`
	FirstPayment     *FirstPaymentDTO `json:"firstPayment,omitempty"`
}

// CreateLoansRequest creates one or more loans atomically.
type CreateLoansRequest struct {
	Loans []CreateLoanDTO `json:"loans"`
}

func (d CreateLoanDTO) toDomain() (loans.CreateLoanRequest, error) {
	var req loans.CreateLoanRequest
	var err error
	if req.LeadID, err = parseID("leadId", d.LeadID); err != nil {
		return req, err
	}
	if req.Requested, err = parseAmount("requestedAmount", d.RequestedAmount); err != nil {
		return req, err
	}
	if req.Rate, err = parseAmount("rate", d.Rate); err != nil {
		return req, err
	}
	req.WeekDuration = d.WeekDuration
	if d.PaymentComission != "" {
		if req.PaymentComission, err = parseAmount("paymentComission", d.PaymentComission); err != nil {
			return req, err
		}
	}
	if d.GrantComission != "" {
		if req.GrantComission, err = parseAmount("grantComission", d.GrantComission); err != nil {
			return req, err
		}
	}
	if req.SignDate, err = parseDate("signDate", d.SignDate); err != nil {
		return req, err
	}
	if req.PreviousLoanID, err = parseOptionalID("previousLoanId", d.PreviousLoanID); err != nil {
		return req, err
	}
	if d.FirstPayment != nil {
		amount, err := parseAmount("firstPayment.amount", d.FirstPayment.Amount)
		if err != nil {
			return req, err
		}
		method, err := parseMethod(d.FirstPayment.Method)
		if err != nil {
			return req, err
		}
		req.FirstPayment = &loans.FirstPayment{Amount: amount, Method: method}
	}
	return req, nil
}

// LoanDTO is the wire shape of a loan.
type LoanDTO struct {
	ID                    string  `json:"id"`
	LeadID                string  `json:"leadId"`
	RequestedAmount       string  `json:"requestedAmount"`
	AmountGived           string  `json:"amountGived"`
	Rate                  string  `json:"rate"`
	WeekDuration          int     `json:"weekDuration"`
	ProfitAmount          string  `json:"profitAmount"`
	TotalDebtAcquired     string  `json:"totalDebtAcquired"`
	PendingAmountStored   string  `json:"pendingAmountStored"`
	TotalPaid             string  `json:"totalPaid"`
	ExpectedWeeklyPayment string  `json:"expectedWeeklyPayment"`
	ComissionAmount       string  `json:"comissionAmount"`
	Status                string  `json:"status"`
	SignDate              string  `json:"signDate"`
	FinishedDate          *string `json:"finishedDate,omitempty"`
	PreviousLoanID        *string `json:"previousLoanId,omitempty"`
}

func toLoanDTO(l *engine.Loan) LoanDTO {
	dto := LoanDTO{
		ID:                    l.ID.String(),
		LeadID:                l.LeadID.String(),
		RequestedAmount:       l.RequestedAmount.String(),
		AmountGived:           l.AmountGived.String(),
		Rate:                  l.Rate.String(),
		WeekDuration:          l.WeekDuration,
		ProfitAmount:          l.ProfitAmount.String(),
		TotalDebtAcquired:     l.TotalDebtAcquired.String(),
		PendingAmountStored:   l.PendingAmountStored.String(),
		TotalPaid:             l.TotalPaid.String(),
		ExpectedWeeklyPayment: l.ExpectedWeeklyPayment.String(),
		ComissionAmount:       l.ComissionAmount.String(),
		Status:                string(l.Status),
		SignDate:              l.SignDate.Format(time.RFC3339),
	}
	if l.FinishedDate != nil {
		s := l.FinishedDate.Format(time.RFC3339)
		dto.FinishedDate = &s
	}
	if l.PreviousLoanID != nil {
		s := l.PreviousLoanID.String()
		dto.PreviousLoanID = &s
	}
	return dto
}

// CancelLoanDTO reports what cancellation recovered, or what blocked it.
type CancelLoanDTO struct {
	Cancelled                bool   `json:"cancelled"`
	AmountToRestore          string `json:"amountToRestore"`
	FirstPaymentDeducted     bool   `json:"firstPaymentDeducted"`
	HasUnaffectedPayments    bool   `json:"hasUnaffectedPayments"`
	UnaffectedPaymentsCount  int    `json:"unaffectedPaymentsCount,omitempty"`
	UnaffectedPaymentsAmount string `json:"unaffectedPaymentsAmount,omitempty"`
}

func toCancelLoanDTO(res *engine.CancelLoanResult, cancelled bool) CancelLoanDTO {
	dto := CancelLoanDTO{
		Cancelled:             cancelled,
		AmountToRestore:       res.AmountToRestore.String(),
		FirstPaymentDeducted:  res.FirstPaymentDeducted,
		HasUnaffectedPayments: res.HasUnaffectedPayments,
	}
	if res.HasUnaffectedPayments {
		dto.UnaffectedPaymentsCount = res.UnaffectedPaymentsCount
		dto.UnaffectedPaymentsAmount = res.UnaffectedPaymentsAmount.String()
	}
	return dto
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPaymentRequest records one standalone collection.
type RecordPaymentRequest struct {
	LoanID     string  `json:"loanId"`
	Amount     string  `json:"amount"`
	Comission  *string `json:"comission,omitempty"`
	Method     string  `json:"method,omitempty"`
	ReceivedAt string  `json:"receivedAt"`
}

func (d RecordPaymentRequest) toDomain() (payments.RecordPaymentInput, error) {
	var in payments.RecordPaymentInput
	var err error
	if in.LoanID, err = parseID("loanId", d.LoanID); err != nil {
		return in, err
	}
	if in.Amount, err = parseAmount("amount", d.Amount); err != nil {
		return in, err
	}
	if in.Comission, err = parseOptionalAmount("comission", d.Comission); err != nil {
		return in, err
	}
	if in.Method, err = parseMethod(d.Method); err != nil {
		return in, err
	}
	if in.ReceivedAt, err = parseDate("receivedAt", d.ReceivedAt); err != nil {
		return in, err
	}
	return in, nil
}

// PaymentDTO is the wire shape of a payment.
type PaymentDTO struct {
	ID         string  `json:"id"`
	LoanID     string  `json:"loanId"`
	BatchID    *string `json:"batchId,omitempty"`
	Amount     string  `json:"amount"`
	Comission  string  `json:"comission"`
	Method     string  `json:"method"`
	ReceivedAt string  `json:"receivedAt"`
}

func toPaymentDTO(p *engine.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:         p.ID.String(),
		LoanID:     p.LoanID.String(),
		Amount:     p.Amount.String(),
		Comission:  p.Comission.String(),
		Method:     string(p.Method),
		ReceivedAt: p.ReceivedAt.Format(time.RFC3339),
	}
	if p.LeadPaymentReceivedID != nil {
		s := p.LeadPaymentReceivedID.String()
		dto.BatchID = &s
	}
	return dto
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchLineDTO is one loan collection inside a batch request. PaymentID and
// Delete only apply to edits.
type BatchLineDTO struct {
	PaymentID *string `json:"paymentId,omitempty"`
	LoanID    string  `json:"loanId"`
	Amount    string  `json:"amount"`
	Comission *string `json:"comission,omitempty"`
	Method    string  `json:"method,omitempty"`
	Delete    bool    `json:"delete,omitempty"`
}

// RecordBatchRequest records one collection run.
type RecordBatchRequest struct {
	LeadID         string         `json:"leadId"`
	AgentID        string         `json:"agentId"`
	ExpectedAmount string         `json:"expectedAmount"`
	BankPaidAmount string         `json:"bankPaidAmount,omitempty"`
	FalcoAmount    string         `json:"falcoAmount,omitempty"`
	ReceivedAt     string         `json:"receivedAt"`
	Lines          []BatchLineDTO `json:"payments"`
}

func (d RecordBatchRequest) toDomain() (payments.RecordBatchInput, error) {
	var in payments.RecordBatchInput
	var err error
	if in.LeadID, err = parseID("leadId", d.LeadID); err != nil {
		return in, err
	}
	if in.AgentID, err = parseID("agentId", d.AgentID); err != nil {
		return in, err
	}
	if in.ExpectedAmount, err = parseAmount("expectedAmount", d.ExpectedAmount); err != nil {
		return in, err
	}
	if d.BankPaidAmount != "" {
		if in.BankPaidAmount, err = parseAmount("bankPaidAmount", d.BankPaidAmount); err != nil {
			return in, err
		}
	}
	if d.FalcoAmount != "" {
		if in.FalcoAmount, err = parseAmount("falcoAmount", d.FalcoAmount); err != nil {
			return in, err
		}
	}
	if in.ReceivedAt, err = parseDate("receivedAt", d.ReceivedAt); err != nil {
		return in, err
	}
	for i, l := range d.Lines {
		field := fmt.Sprintf("payments[%d]", i)
		loanID, err := parseID(field+".loanId", l.LoanID)
		if err != nil {
			return in, err
		}
		amount, err := parseAmount(field+".amount", l.Amount)
		if err != nil {
			return in, err
		}
		comission, err := parseOptionalAmount(field+".comission", l.Comission)
		if err != nil {
			return in, err
		}
		method, err := parseMethod(l.Method)
		if err != nil {
			return in, err
		}
		in.Lines = append(in.Lines, payments.BatchLine{
			LoanID:    loanID,
			Amount:    amount,
			Comission: comission,
			Method:    method,
		})
	}
	return in, nil
}

// EditBatchRequest is the full desired state of an existing batch.
type EditBatchRequest struct {
	BankPaidAmount string         `json:"bankPaidAmount,omitempty"`
	FalcoAmount    string         `json:"falcoAmount,omitempty"`
	Lines          []BatchLineDTO `json:"payments"`
}

func (d EditBatchRequest) toDomain(batchID uuid.UUID) (payments.EditBatchInput, error) {
	in := payments.EditBatchInput{BatchID: batchID}
	var err error
	if d.BankPaidAmount != "" {
		if in.BankPaidAmount, err = parseAmount("bankPaidAmount", d.BankPaidAmount); err != nil {
			return in, err
		}
	}
	if d.FalcoAmount != "" {
		if in.FalcoAmount, err = parseAmount("falcoAmount", d.FalcoAmount); err != nil {
			return in, err
		}
	}
	for i, l := range d.Lines {
		field := fmt.Sprintf("payments[%d]", i)
		paymentID, err := parseOptionalID(field+".paymentId", l.PaymentID)
		if err != nil {
			return in, err
		}
		loanID, err := parseID(field+".loanId", l.LoanID)
		if err != nil {
			return in, err
		}
		amount, err := parseAmount(field+".amount", l.Amount)
		if err != nil {
			return in, err
		}
		comission, err := parseOptionalAmount(field+".comission", l.Comission)
		if err != nil {
			return in, err
		}
		method, err := parseMethod(l.Method)
		if err != nil {
			return in, err
		}
		in.Lines = append(in.Lines, payments.EditLine{
			PaymentID: paymentID,
			LoanID:    loanID,
			Amount:    amount,
			Comission: comission,
			Method:    method,
			Delete:    l.Delete,
		})
	}
	return in, nil
}

// BatchDTO is the wire shape of a collection batch.
type BatchDTO struct {
	ID             string `json:"id"`
	LeadID         string `json:"leadId"`
	AgentID        string `json:"agentId"`
	ExpectedAmount string `json:"expectedAmount"`
	PaidAmount     string `json:"paidAmount"`
	CashPaidAmount string `json:"cashPaidAmount"`
	BankPaidAmount string `json:"bankPaidAmount"`
	FalcoAmount    string `json:"falcoAmount"`
	PaymentStatus  string `json:"paymentStatus"`
	ReceivedAt     string `json:"receivedAt"`
}

func toBatchDTO(b *engine.LeadPaymentReceived) BatchDTO {
	return BatchDTO{
		ID:             b.ID.String(),
		LeadID:         b.LeadID.String(),
		AgentID:        b.AgentID.String(),
		ExpectedAmount: b.ExpectedAmount.String(),
		PaidAmount:     b.PaidAmount.String(),
		CashPaidAmount: b.CashPaidAmount.String(),
		BankPaidAmount: b.BankPaidAmount.String(),
		FalcoAmount:    b.FalcoAmount.String(),
		PaymentStatus:  string(b.PaymentStatus),
		ReceivedAt:     b.ReceivedAt.Format(time.RFC3339),
	}
}

// CompensateShortageRequest claims part of a batch's reported falco.
type CompensateShortageRequest struct {
	Amount     string `json:"amount"`
	ReceivedAt string `json:"receivedAt"`
}

// FalcoCompensationDTO is the wire shape of a shortage repayment.
type FalcoCompensationDTO struct {
	ID         string `json:"id"`
	BatchID    string `json:"batchId"`
	Amount     string `json:"amount"`
	ReceivedAt string `json:"receivedAt"`
}

func toFalcoCompensationDTO(c *engine.FalcoCompensatoryPayment) FalcoCompensationDTO {
	return FalcoCompensationDTO{
		ID:         c.ID.String(),
		BatchID:    c.LeadPaymentReceivedID.String(),
		Amount:     c.Amount.String(),
		ReceivedAt: c.ReceivedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ACCOUNTS + RECONCILIATION
// =============================================================================

// AccountDTO is the wire shape of an account.
type AccountDTO struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	RouteID *string `json:"routeId,omitempty"`
	Amount  string  `json:"amount"`
}

func toAccountDTO(a *engine.Account) AccountDTO {
	dto := AccountDTO{
		ID:     a.ID.String(),
		Name:   a.Name,
		Type:   string(a.Type),
		Amount: a.Amount.String(),
	}
	if a.RouteID != nil {
		s := a.RouteID.String()
		dto.RouteID = &s
	}
	return dto
}

// ReconciliationDTO compares stored and calculated balances.
type ReconciliationDTO struct {
	AccountID         string `json:"accountId"`
	StoredBalance     string `json:"storedBalance"`
	CalculatedBalance string `json:"calculatedBalance"`
	Difference        string `json:"difference"`
	IsConsistent      bool   `json:"isConsistent"`
}

func toReconciliationDTO(r *ledger.Reconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		AccountID:         r.AccountID.String(),
		StoredBalance:     r.StoredBalance.String(),
		CalculatedBalance: r.CalculatedBalance.String(),
		Difference:        r.Difference.String(),
		IsConsistent:      r.IsConsistent,
	}
}

// FixBalanceRequest optionally annotates the adjustment entry.
type FixBalanceRequest struct {
	Description string `json:"description,omitempty"`
}

// EntryDTO is the wire shape of a ledger entry.
type EntryDTO struct {
	ID              string `json:"id"`
	AccountID       string `json:"accountId"`
	Amount          string `json:"amount"`
	Type            string `json:"type"`
	Source          string `json:"source"`
	ProfitAmount    string `json:"profitAmount"`
	ReturnToCapital string `json:"returnToCapital"`
	Description     string `json:"description,omitempty"`
	EntryDate       string `json:"entryDate"`
}

func toEntryDTO(e *engine.AccountEntry) EntryDTO {
	return EntryDTO{
		ID:              e.ID.String(),
		AccountID:       e.AccountID.String(),
		Amount:          e.Amount.String(),
		Type:            string(e.Type),
		Source:          string(e.Source),
		ProfitAmount:    e.ProfitAmount.String(),
		ReturnToCapital: e.ReturnToCapital.String(),
		Description:     e.Description,
		EntryDate:       e.EntryDate.Format(time.RFC3339),
	}
}
