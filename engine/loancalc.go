/*
loancalc.go - Pure loan arithmetic

PURPOSE:
  The deterministic core: turns a loan request, a payment, or a cancellation
  into profit/capital splits and refund amounts. No I/O, no mutable state,
  no clock - every function here is a total function of its inputs.

CRITICAL INVARIANTS:
  1. TOTAL: divisions guard a zero denominator by substituting 0, never panic
  2. BOUNDED: a payment's profit share never exceeds the payment itself
  3. EXACT: rounding (half up) happens at the same steps the ledger rounds,
     because intermediate rounding choices change outputs at the cent level

RENEWAL INHERITANCE POLICY:
  When a loan is refinanced before being fully paid, the ENTIRE pending
  balance of the predecessor is treated as paid off by the new loan, but
  only the profit fraction of that pending balance is re-added as inherited
  profit. The capital fraction is simply folded into the disbursement:
  amountGived = requested - prevPending (clamped at 0).

  This is a domain policy, not an engineering constraint: the business
  waives nothing on renewal, it converts outstanding profit into new-loan
  profit and nets the disbursement. See RenewalInheritancePolicy.

CANCELLATION POLICY:
  A single payment on the loan's own sign date is an advance first payment
  and is reversible with the loan. Anything else implies real collection
  activity: the refund excludes it and the result flags it for an operator.

SEE ALSO:
  - types.go: Round2/Round4/MaxZero helpers and epsilon constants
  - loans/service.go, payments/service.go: orchestration over these results
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAN CREATION
// =============================================================================

// CreateLoanInput are the caller-supplied terms of a new loan.
type CreateLoanInput struct {
	Requested    decimal.Decimal
	Rate         decimal.Decimal
	WeekDuration int
	SignDate     time.Time
}

// PreviousLoanData is the predecessor snapshot a renewal inherits from.
type PreviousLoanData struct {
	PendingAmount     decimal.Decimal
	ProfitAmount      decimal.Decimal
	TotalDebtAcquired decimal.Decimal
}

// LoanResult is the full set of derived aggregates for a new loan.
type LoanResult struct {
	ProfitBase            decimal.Decimal
	ProfitInherited       decimal.Decimal
	ProfitAmount          decimal.Decimal
	TotalDebtAcquired     decimal.Decimal
	AmountGived           decimal.Decimal
	PendingAmountStored   decimal.Decimal
	ExpectedWeeklyPayment decimal.Decimal
	// ProfitRatio is profit over total debt, rounded to 4 decimals. It is
	// informational; payment splits recompute the ratio at full precision.
	ProfitRatio decimal.Decimal
	IsRenewal   bool
}

// RenewalInheritancePolicy computes the profit a renewal inherits from its
// predecessor: the profit fraction of the predecessor's pending balance,
// at the predecessor's own profit ratio, rounded to cents.
//
// The ratio is taken at full precision; rounding it first would shift the
// inherited amount by whole cents on typical balances.
func RenewalInheritancePolicy(prev PreviousLoanData) decimal.Decimal {
	if prev.TotalDebtAcquired.IsZero() {
		return decimal.Zero
	}
	ratio := prev.ProfitAmount.Div(prev.TotalDebtAcquired)
	return Round2(prev.PendingAmount.Mul(ratio))
}

// CreateLoan computes the creation splits for a loan.
//
// For a first loan: profitInherited = 0 and amountGived = requested.
// For a renewal: see RenewalInheritancePolicy; the disbursement nets out the
// predecessor's full pending balance, clamped at zero.
func CreateLoan(input CreateLoanInput, previous *PreviousLoanData) LoanResult {
	profitBase := Round2(input.Requested.Mul(input.Rate))

	profitInherited := decimal.Zero
	amountGived := input.Requested
	if previous != nil {
		profitInherited = RenewalInheritancePolicy(*previous)
		amountGived = MaxZero(input.Requested.Sub(previous.PendingAmount))
	}

	profitAmount := profitBase.Add(profitInherited)
	totalDebt := input.Requested.Add(profitAmount)

	weekly := decimal.Zero
	if input.WeekDuration > 0 {
		weekly = Round2(totalDebt.Div(decimal.NewFromInt(int64(input.WeekDuration))))
	}

	ratio := decimal.Zero
	if !totalDebt.IsZero() {
		ratio = Round4(profitAmount.Div(totalDebt))
	}

	return LoanResult{
		ProfitBase:            profitBase,
		ProfitInherited:       profitInherited,
		ProfitAmount:          profitAmount,
		TotalDebtAcquired:     totalDebt,
		AmountGived:           amountGived,
		PendingAmountStored:   totalDebt,
		ExpectedWeeklyPayment: weekly,
		ProfitRatio:           ratio,
		IsRenewal:             previous != nil,
	}
}

// =============================================================================
// PAYMENT SPLIT
// =============================================================================

// ProcessPaymentInput carries the loan aggregates a split depends on.
type ProcessPaymentInput struct {
	Amount        decimal.Decimal
	LoanProfit    decimal.Decimal
	LoanTotalDebt decimal.Decimal
	LoanPending   decimal.Decimal
	IsBadDebt     bool
}

// PaymentResult is the profit/capital allocation of one payment.
//
// Invariants: 0 <= ProfitAmount <= Amount and
// ProfitAmount + ReturnToCapital == Amount, to cent precision.
type PaymentResult struct {
	ProfitAmount    decimal.Decimal
	ReturnToCapital decimal.Decimal
	NewPending      decimal.Decimal
	IsFullyPaid     bool
	// ProfitClamped is set when the stored ratio implied profit greater
	// than the payment. That reflects corrupt historical data; the split is
	// clamped and the caller should log it, not fail.
	ProfitClamped bool
}

// ProcessPayment allocates a payment between profit and capital.
//
// Bad debt: 100% profit (collection incentive on defaulted debt).
// Zero total debt: 100% capital (degenerate/corrupt data guard).
// Otherwise profit = amount * (loanProfit / loanTotalDebt), rounded to
// cents and clamped to never exceed the payment.
func ProcessPayment(input ProcessPaymentInput) PaymentResult {
	var profit decimal.Decimal
	clamped := false

	switch {
	case input.IsBadDebt:
		profit = input.Amount
	case input.LoanTotalDebt.IsZero():
		profit = decimal.Zero
	default:
		profit = Round2(input.Amount.Mul(input.LoanProfit.Div(input.LoanTotalDebt)))
		if profit.GreaterThan(input.Amount) {
			profit = input.Amount
			clamped = true
		}
		if profit.IsNegative() {
			profit = decimal.Zero
			clamped = true
		}
	}

	newPending := MaxZero(input.LoanPending.Sub(input.Amount))

	return PaymentResult{
		ProfitAmount:    profit,
		ReturnToCapital: input.Amount.Sub(profit),
		NewPending:      newPending,
		IsFullyPaid:     newPending.LessThanOrEqual(Epsilon(FinishedEpsilon)),
		ProfitClamped:   clamped,
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelPaymentData is the slice of a payment cancellation needs.
type CancelPaymentData struct {
	ID         uuid.UUID
	Amount     decimal.Decimal
	ReceivedAt time.Time
}

// CancelLoanInput describes the loan being cancelled and its payments.
type CancelLoanInput struct {
	AmountGived     decimal.Decimal
	ComissionAmount decimal.Decimal
	SignDate        time.Time
	Payments        []CancelPaymentData
}

// CancelLoanResult reports what a cancellation would restore.
type CancelLoanResult struct {
	// AmountToRestore is the cash the cancelling office recovers:
	// disbursement plus commissions, less a deductible first payment.
	AmountToRestore      decimal.Decimal
	FirstPaymentDeducted bool
	// FirstPaymentID identifies the deducted payment so orchestration can
	// remove exactly that row and its entries.
	FirstPaymentID *uuid.UUID

	// When payments exist that the policy refuses to refund automatically,
	// they are reported here for manual reconciliation by an operator.
	HasUnaffectedPayments    bool
	UnaffectedPaymentsCount  int
	UnaffectedPaymentsAmount decimal.Decimal
}

// CancelLoan computes the refund for cancelling a loan.
//
// Exactly one payment dated on the loan's sign date (same calendar day) is
// an advance first payment: it is subtracted from the refund, clamped at
// zero. One payment on a different day, or two or more payments regardless
// of date, are never refunded automatically - a multi-payment history
// implies real collection activity that must not be silently erased.
func CancelLoan(input CancelLoanInput) CancelLoanResult {
	base := input.AmountGived.Add(input.ComissionAmount)
	result := CancelLoanResult{AmountToRestore: base}

	switch {
	case len(input.Payments) == 0:
		// Nothing collected; full restore.
	case len(input.Payments) == 1 && SameDay(input.Payments[0].ReceivedAt, input.SignDate):
		p := input.Payments[0]
		id := p.ID
		result.AmountToRestore = MaxZero(base.Sub(p.Amount))
		result.FirstPaymentDeducted = true
		result.FirstPaymentID = &id
	default:
		total := decimal.Zero
		for _, p := range input.Payments {
			total = total.Add(p.Amount)
		}
		result.HasUnaffectedPayments = true
		result.UnaffectedPaymentsCount = len(input.Payments)
		result.UnaffectedPaymentsAmount = total
	}

	return result
}
