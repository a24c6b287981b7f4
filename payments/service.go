/*
Package payments orchestrates collection flows: single payments, field-agent
collection batches, batch edits, deletions, and shortage compensation.

PURPOSE:
  Composes the pure loan arithmetic (engine) with the ledger (BalanceService)
  so that a loan's aggregates, the append-only entry log, and the
  materialized account balances stay mutually consistent. Every operation
  runs inside one repository transaction; any failure rolls the whole chain
  back.

MONEY ROUTING:
  A payment lands on the collecting route's account by method: CASH goes to
  the route's cash fund, MONEY_TRANSFER to the route's bank account. In a
  batch, commissions are always debited from cash regardless of the line's
  own method - collectors are paid in cash by convention. A standalone
  payment debits its commission from the same account it credited.

SEE ALSO:
  - batch.go: batch recording with accumulated deltas
  - edit.go:  diff-based batch editing (the netting logic lives there)
  - engine/loancalc.go: the split arithmetic
*/
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
)

// PaymentService records and maintains payments against loans.
type PaymentService struct {
	repo    engine.Repository
	balance *ledger.BalanceService
	clock   engine.Clock
	log     *logrus.Logger
}

func NewPaymentService(repo engine.Repository, balance *ledger.BalanceService, clock engine.Clock, log *logrus.Logger) *PaymentService {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &PaymentService{repo: repo, balance: balance, clock: clock, log: log}
}

// =============================================================================
// ROUTE ACCOUNT RESOLUTION
// =============================================================================

// routeAccounts resolves the cash and bank accounts collections flow through
// for a given employee (lead or agent).
func (s *PaymentService) routeAccounts(ctx context.Context, repo engine.Repository, employeeID uuid.UUID) (cash, bank *engine.Account, err error) {
	employee, err := repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	cash, err = repo.AccountByRoute(ctx, employee.RouteID, engine.AccountEmployeeCashFund)
	if err != nil {
		return nil, nil, fmt.Errorf("route cash account: %w", err)
	}
	bank, err = repo.AccountByRoute(ctx, employee.RouteID, engine.AccountBank)
	if err != nil {
		return nil, nil, fmt.Errorf("route bank account: %w", err)
	}
	return cash, bank, nil
}

func destinationFor(cash, bank *engine.Account, method engine.PaymentMethod) *engine.Account {
	if method == engine.MethodMoneyTransfer {
		return bank
	}
	return cash
}

func incomeSourceFor(method engine.PaymentMethod) engine.SourceType {
	if method == engine.MethodMoneyTransfer {
		return engine.SourceBankLoanPayment
	}
	return engine.SourceCashLoanPayment
}

// =============================================================================
// LOAN AGGREGATE MAINTENANCE
// =============================================================================

// applyToLoan folds a payment into the loan's aggregates and refreshes its
// status. A negative amount/comission reverts a previous payment.
func (s *PaymentService) applyToLoan(loan *engine.Loan, amount, comission decimal.Decimal) {
	loan.TotalPaid = loan.TotalPaid.Add(amount)
	loan.PendingAmountStored = engine.MaxZero(loan.TotalDebtAcquired.Sub(loan.TotalPaid))
	loan.ComissionAmount = loan.ComissionAmount.Add(comission)
	loan.UpdatedAt = s.clock.Now()
	s.refreshStatus(loan)
}

// refreshStatus flips the loan to FINISHED when pending reaches the finish
// epsilon, and back to ACTIVE when a revert reopens it. Bad-debt loans keep
// their flag until fully paid.
func (s *PaymentService) refreshStatus(loan *engine.Loan) {
	if loan.PendingAmountStored.LessThanOrEqual(engine.Epsilon(engine.FinishedEpsilon)) {
		if loan.Status != engine.LoanFinished {
			loan.Status = engine.LoanFinished
			now := s.clock.Now()
			loan.FinishedDate = &now
		}
		return
	}
	if loan.Status == engine.LoanFinished {
		if loan.BadDebtDate != nil {
			loan.Status = engine.LoanBadDebt
		} else {
			loan.Status = engine.LoanActive
		}
		loan.FinishedDate = nil
	}
}

// split recomputes a payment's profit/capital allocation from the loan's
// current aggregates, logging the defensive clamp when stored ratios are
// corrupt.
func (s *PaymentService) split(loan *engine.Loan, amount decimal.Decimal) engine.PaymentResult {
	result := engine.ProcessPayment(engine.ProcessPaymentInput{
		Amount:        amount,
		LoanProfit:    loan.ProfitAmount,
		LoanTotalDebt: loan.TotalDebtAcquired,
		LoanPending:   loan.PendingAmountStored,
		IsBadDebt:     loan.IsBadDebt(),
	})
	if result.ProfitClamped {
		s.log.WithFields(logrus.Fields{
			"loan":   loan.ID,
			"amount": amount,
			"profit": loan.ProfitAmount,
			"debt":   loan.TotalDebtAcquired,
		}).Warn("profit ratio implies profit above payment; split clamped")
	}
	return result
}

func comissionOrDefault(comission *decimal.Decimal, loan *engine.Loan) decimal.Decimal {
	if comission != nil {
		return *comission
	}
	return loan.PaymentComission
}

// =============================================================================
// SINGLE PAYMENT
// =============================================================================

// RecordPaymentInput describes one collection event.
type RecordPaymentInput struct {
	LoanID uuid.UUID
	Amount decimal.Decimal
	// Comission defaults to the loan's configured per-collection commission
	// when nil.
	Comission  *decimal.Decimal
	Method     engine.PaymentMethod
	ReceivedAt time.Time
}

// RecordPayment records a payment on a loan inside its own transaction.
func (s *PaymentService) RecordPayment(ctx context.Context, input RecordPaymentInput) (*engine.Payment, error) {
	var payment *engine.Payment
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		var err error
		payment, err = s.RecordPaymentTx(ctx, tx, input)
		return err
	})
	return payment, err
}

// RecordPaymentTx is RecordPayment running inside a caller-supplied
// transaction; loan creation uses it for same-day first payments.
func (s *PaymentService) RecordPaymentTx(ctx context.Context, repo engine.Repository, input RecordPaymentInput) (*engine.Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, &engine.InvalidAmountError{Op: "record payment", Amount: input.Amount}
	}
	loan, err := repo.GetLoan(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}
	cash, bank, err := s.routeAccounts(ctx, repo, loan.LeadID)
	if err != nil {
		return nil, err
	}

	comission := comissionOrDefault(input.Comission, loan)
	account := destinationFor(cash, bank, input.Method)
	result := s.split(loan, input.Amount)

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.clock.Now()
	}

	payment := &engine.Payment{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		Amount:     input.Amount,
		Comission:  comission,
		Method:     input.Method,
		ReceivedAt: receivedAt,
		CreatedAt:  s.clock.Now(),
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID:       account.ID,
		Type:            engine.Credit,
		Amount:          input.Amount,
		Source:          incomeSourceFor(input.Method),
		ProfitAmount:    result.ProfitAmount,
		ReturnToCapital: result.ReturnToCapital,
		LoanID:          &loan.ID,
		PaymentID:       &payment.ID,
		EntryDate:       receivedAt,
	}); err != nil {
		return nil, err
	}

	// For a standalone payment the commission comes out of the same account
	// the collection landed on.
	if comission.IsPositive() {
		if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID: account.ID,
			Type:      engine.Debit,
			Amount:    comission,
			Source:    engine.SourcePaymentComission,
			LoanID:    &loan.ID,
			PaymentID: &payment.ID,
			EntryDate: receivedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.balance.ApplyDelta(ctx, repo, account.ID, input.Amount.Sub(comission)); err != nil {
		return nil, err
	}

	s.applyToLoan(loan, input.Amount, comission)
	if err := repo.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan":    loan.ID,
		"payment": payment.ID,
		"amount":  input.Amount,
		"pending": loan.PendingAmountStored,
	}).Info("payment recorded")

	return payment, nil
}

// =============================================================================
// DELETE PAYMENT
// =============================================================================

// DeletePayment removes a payment, its ledger entries (reversing their
// balance effect), and reverts the loan's aggregates. When the payment was
// the last one of a batch, the batch and its leftover transfer/falco entries
// go with it - a batch cannot exist with no payments.
func (s *PaymentService) DeletePayment(ctx context.Context, paymentID uuid.UUID) error {
	return s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		return s.DeletePaymentTx(ctx, tx, paymentID)
	})
}

// DeletePaymentTx is DeletePayment inside a caller-supplied transaction.
func (s *PaymentService) DeletePaymentTx(ctx context.Context, repo engine.Repository, paymentID uuid.UUID) error {
	payment, err := repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	loan, err := repo.GetLoan(ctx, payment.LoanID)
	if err != nil {
		return err
	}

	if err := s.balance.DeleteEntriesByPayment(ctx, repo, paymentID); err != nil {
		return err
	}
	if err := repo.DeletePayment(ctx, paymentID); err != nil {
		return err
	}

	s.applyToLoan(loan, payment.Amount.Neg(), payment.Comission.Neg())
	if err := repo.UpdateLoan(ctx, loan); err != nil {
		return err
	}

	if payment.LeadPaymentReceivedID == nil {
		return nil
	}
	return s.shrinkBatch(ctx, repo, *payment.LeadPaymentReceivedID, payment)
}

// shrinkBatch updates a batch's aggregates after one of its payments was
// removed, deleting the batch outright when it was the last one.
func (s *PaymentService) shrinkBatch(ctx context.Context, repo engine.Repository, batchID uuid.UUID, removed *engine.Payment) error {
	batch, err := repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	remaining, err := repo.PaymentsByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		// DeleteEntriesByBatch reverts any compensation credits along with
		// the transfer and falco entries; the compensation rows must go too
		// or they would dangle on the deleted batch.
		if err := s.balance.DeleteEntriesByBatch(ctx, repo, batchID); err != nil {
			return err
		}
		if err := repo.DeleteFalcoCompensationsByBatch(ctx, batchID); err != nil {
			return err
		}
		s.log.WithField("batch", batchID).Info("batch emptied by payment deletion; removed")
		return repo.DeleteBatch(ctx, batchID)
	}

	batch.PaidAmount = batch.PaidAmount.Sub(removed.Amount)
	if removed.Method == engine.MethodCash {
		batch.CashPaidAmount = batch.CashPaidAmount.Sub(removed.Amount)
	}
	batch.PaymentStatus = batchStatus(batch.PaidAmount, batch.ExpectedAmount)
	return repo.UpdateBatch(ctx, batch)
}

func batchStatus(paid, expected decimal.Decimal) engine.PaymentStatus {
	if paid.GreaterThanOrEqual(expected.Sub(engine.Epsilon(engine.BalanceEpsilon))) {
		return engine.BatchComplete
	}
	return engine.BatchPartial
}

// =============================================================================
// SHORTAGE COMPENSATION
// =============================================================================

// CompensateShortageInput claims part of a batch's reported falco.
type CompensateShortageInput struct {
	BatchID    uuid.UUID
	Amount     decimal.Decimal
	ReceivedAt time.Time
}

// CompensateShortage records a repayment against a previously reported
// shortage and credits the route's cash account. Fails with
// ErrExceedsRemaining when the claim is larger than what is still
// uncompensated.
func (s *PaymentService) CompensateShortage(ctx context.Context, input CompensateShortageInput) (*engine.FalcoCompensatoryPayment, error) {
	if !input.Amount.IsPositive() {
		return nil, &engine.InvalidAmountError{Op: "compensate shortage", Amount: input.Amount}
	}

	var comp *engine.FalcoCompensatoryPayment
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		batch, err := tx.GetBatch(ctx, input.BatchID)
		if err != nil {
			return err
		}

		existing, err := tx.FalcoCompensationsByBatch(ctx, input.BatchID)
		if err != nil {
			return err
		}
		compensated := decimal.Zero
		for _, c := range existing {
			compensated = compensated.Add(c.Amount)
		}
		remaining := batch.FalcoAmount.Sub(compensated)
		if input.Amount.GreaterThan(remaining) {
			return &engine.ExceedsRemainingError{
				BatchID:   input.BatchID,
				Requested: input.Amount,
				Remaining: remaining,
			}
		}

		cash, _, err := s.routeAccounts(ctx, tx, batch.AgentID)
		if err != nil {
			return err
		}

		receivedAt := input.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = s.clock.Now()
		}
		comp = &engine.FalcoCompensatoryPayment{
			ID:                    uuid.New(),
			LeadPaymentReceivedID: input.BatchID,
			Amount:                input.Amount,
			ReceivedAt:            receivedAt,
			CreatedAt:             s.clock.Now(),
		}
		if err := tx.CreateFalcoCompensation(ctx, comp); err != nil {
			return err
		}

		_, err = s.balance.CreateEntry(ctx, tx, ledger.CreateEntryInput{
			AccountID:             cash.ID,
			Type:                  engine.Credit,
			Amount:                input.Amount,
			Source:                engine.SourceFalcoCompensation,
			LeadPaymentReceivedID: &input.BatchID,
			EntryDate:             receivedAt,
			Description:           "falco compensation",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return comp, nil
}
