/*
Package engine provides the core domain model and pure loan arithmetic.

PURPOSE:
  This package contains the types and deterministic calculations shared by
  every layer of the loan accounting system: loans, payments, collection
  batches, accounts, and the append-only ledger entries that explain every
  balance change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Loan: a debt instrument with derived profit/debt aggregates
  - Payment: one collection event against a loan
  - LeadPaymentReceived: one agent's collection run (a batch of payments)
  - Account: a balance holder (route cash fund, bank, office fund)
  - AccountEntry: an immutable ledger row recording a DEBIT or CREDIT

DESIGN PRINCIPLES:
  1. Precision: shopspring/decimal everywhere; binary floats never touch money
  2. Derived balances: Account.Amount is a projection over AccountEntry rows,
     updated in the same transaction as every entry write
  3. Auditability: every entry carries a source type, a sync id, and weak
     references back to the loan/payment/batch that produced it

SEE ALSO:
  - loancalc.go: Pure arithmetic (creation splits, payment splits, refunds)
  - repository.go: Persistence capability consumed by the services
  - errors.go: Sentinel and structured error types
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

// FinishedEpsilon is the residual debt below which a loan counts as paid off.
const FinishedEpsilon = "0.01"

// BalanceEpsilon bounds the stored-vs-calculated drift an account may carry
// before reconciliation reports it as inconsistent.
const BalanceEpsilon = "0.01"

// Round2 rounds a monetary amount to cents, half up.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Round4 rounds a ratio to four decimal places, half up.
func Round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// Epsilon parses one of the epsilon constants. Panics only on a bad literal,
// which would be a programming error.
func Epsilon(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// MaxZero clamps a negative amount to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// SameDay reports whether two timestamps fall on the same calendar day.
// Comparison is date-only, in each timestamp's own location, matching how
// sign dates and received dates are captured in the field.
func SameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

// =============================================================================
// ENUMS
// =============================================================================

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanFinished LoanStatus = "FINISHED"
	LoanBadDebt  LoanStatus = "BAD_DEBT"
)

type PaymentMethod string

const (
	MethodCash          PaymentMethod = "CASH"
	MethodMoneyTransfer PaymentMethod = "MONEY_TRANSFER"
)

type PaymentStatus string

const (
	BatchComplete PaymentStatus = "COMPLETE"
	BatchPartial  PaymentStatus = "PARTIAL"
)

type AccountType string

const (
	AccountEmployeeCashFund AccountType = "EMPLOYEE_CASH_FUND"
	AccountOfficeCashFund   AccountType = "OFFICE_CASH_FUND"
	AccountBank             AccountType = "BANK"
)

type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// SourceType is the closed enum describing WHY an entry exists. Reporting
// and reversal logic dispatch on it, so new values need an explicit home in
// the orchestration layer before being persisted.
type SourceType string

const (
	SourceLoanGrant          SourceType = "LOAN_GRANT"
	SourceLoanGrantComission SourceType = "LOAN_GRANT_COMISSION"
	SourceCashLoanPayment    SourceType = "CASH_LOAN_PAYMENT"
	SourceBankLoanPayment    SourceType = "BANK_LOAN_PAYMENT"
	SourcePaymentComission   SourceType = "LOAN_PAYMENT_COMISSION"
	SourceTransferIn         SourceType = "TRANSFER_IN"
	SourceTransferOut        SourceType = "TRANSFER_OUT"
	SourceBalanceAdjustment  SourceType = "BALANCE_ADJUSTMENT"
	SourceFalcoLoss          SourceType = "FALCO_LOSS"
	SourceFalcoCompensation  SourceType = "FALCO_COMPENSATION"
)

// =============================================================================
// LOAN
// =============================================================================

// Loan is a debt instrument. The derived aggregates obey:
//
//	ProfitAmount        = ProfitBase + ProfitInherited
//	TotalDebtAcquired   = RequestedAmount + ProfitAmount
//	PendingAmountStored = max(0, TotalDebtAcquired - TotalPaid)
//
// Status flips to FINISHED exactly when PendingAmountStored drops to
// FinishedEpsilon or below. Loans are never hard-deleted except through
// cancellation of an erroneous or renewal loan.
type Loan struct {
	ID     uuid.UUID
	LeadID uuid.UUID

	RequestedAmount decimal.Decimal
	// AmountGived is the cash actually disbursed. On a renewal it is the
	// requested amount less the predecessor's pending balance, clamped at 0.
	AmountGived decimal.Decimal

	Rate            decimal.Decimal
	WeekDuration    int
	ProfitBase      decimal.Decimal
	ProfitInherited decimal.Decimal
	ProfitAmount    decimal.Decimal

	TotalDebtAcquired     decimal.Decimal
	PendingAmountStored   decimal.Decimal
	TotalPaid             decimal.Decimal
	ExpectedWeeklyPayment decimal.Decimal

	// ComissionAmount accumulates commissions paid to collectors on this
	// loan; PaymentComission is the configured per-collection default.
	ComissionAmount  decimal.Decimal
	PaymentComission decimal.Decimal

	Status       LoanStatus
	BadDebtDate  *time.Time
	SignDate     time.Time
	FinishedDate *time.Time

	// PreviousLoanID links a renewal to its predecessor. At most one active
	// successor may exist per predecessor (unique constraint in the stores).
	PreviousLoanID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsBadDebt reports whether payments on this loan are allocated 100% to
// profit (collection incentive on defaulted debt).
func (l *Loan) IsBadDebt() bool {
	return l.Status == LoanBadDebt || l.BadDebtDate != nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// Payment is one collection event against a loan. The profit/capital split
// is NOT stored here: it is recomputed from the loan's profit ratio at record
// time and persisted only on the corresponding ledger entry, so edits must
// recompute it.
type Payment struct {
	ID                    uuid.UUID
	LoanID                uuid.UUID
	LeadPaymentReceivedID *uuid.UUID

	Amount    decimal.Decimal
	Comission decimal.Decimal
	Method    PaymentMethod

	ReceivedAt time.Time
	CreatedAt  time.Time
}

// =============================================================================
// LEAD PAYMENT RECEIVED (collection batch)
// =============================================================================

// LeadPaymentReceived is one field agent's collection run for one lead on one
// date. It owns zero or more Payments and is deleted automatically when its
// last constituent payment is removed.
type LeadPaymentReceived struct {
	ID      uuid.UUID
	LeadID  uuid.UUID
	AgentID uuid.UUID

	ExpectedAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	CashPaidAmount decimal.Decimal
	// BankPaidAmount is the slice of the run the agent physically moved from
	// cash into the bank account, recorded as a paired transfer.
	BankPaidAmount decimal.Decimal
	// FalcoAmount is the cash shortage the agent reported for the run.
	FalcoAmount decimal.Decimal

	PaymentStatus PaymentStatus
	ReceivedAt    time.Time
	CreatedAt     time.Time
}

// FalcoCompensatoryPayment records a later repayment against a batch's
// reported shortage. The sum of compensations never exceeds FalcoAmount.
type FalcoCompensatoryPayment struct {
	ID                    uuid.UUID
	LeadPaymentReceivedID uuid.UUID
	Amount                decimal.Decimal
	ReceivedAt            time.Time
	CreatedAt             time.Time
}

// =============================================================================
// ACCOUNT + LEDGER ENTRY
// =============================================================================

// Account is a balance holder. Amount is a materialized projection over the
// account's entries, kept in lock-step with entry writes by the ledger
// service; nothing else may mutate it.
type Account struct {
	ID      uuid.UUID
	Name    string
	Type    AccountType
	RouteID *uuid.UUID
	Amount  decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountEntry is an immutable, append-only ledger row.
//
// INVARIANTS:
//   - Amount is always a non-negative magnitude; direction lives in Type
//   - For every account, stored balance == sum(CREDIT) - sum(DEBIT) over its
//     entries, within BalanceEpsilon
//   - Entries are never updated or hard-deleted except as part of a
//     documented cancellation sequence that removes exactly what it created;
//     ordinary corrections go through reversal entries
type AccountEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID

	Amount decimal.Decimal
	Type   EntryType
	Source SourceType

	// Denormalized copy of the profit/capital split, for reporting.
	ProfitAmount    decimal.Decimal
	ReturnToCapital decimal.Decimal

	// Weak references, not ownership. Nullable by design.
	LoanID                *uuid.UUID
	PaymentID             *uuid.UUID
	LeadPaymentReceivedID *uuid.UUID
	DestinationAccountID  *uuid.UUID

	// SyncID is the idempotency/dedup key, unique per entry.
	SyncID      string
	Description string

	EntryDate time.Time
	CreatedAt time.Time
}

// SignedAmount returns the entry's effect on its account balance:
// +Amount for a CREDIT, -Amount for a DEBIT.
func (e *AccountEntry) SignedAmount() decimal.Decimal {
	if e.Type == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// =============================================================================
// EMPLOYEE / ROUTE
// =============================================================================

// Employee is a field agent or lead tied to a route. Routes own the cash and
// bank accounts collections flow through.
type Employee struct {
	ID      uuid.UUID
	Name    string
	RouteID uuid.UUID
}
