/*
Package loans handles the loan lifecycle: batch creation (optionally with an
immediate first payment) and cancellation-with-restore.

PURPOSE:
  Creation turns a request into a Loan with its derived aggregates, debits
  the disbursement from the route's cash fund, finishes the predecessor on a
  renewal, and can record a same-day first payment through the payments
  service inside the same transaction.

  Cancellation is the documented exception to entry immutability: the
  loan's grant entries (and the deductible first payment) are physically
  removed with their balance effect reversed, which reproduces the pure
  CancelLoan refund exactly. A loan with real collection history is never
  cancelled automatically - the transaction aborts and the caller receives
  the report for an operator.

SEE ALSO:
  - engine/loancalc.go: CreateLoan / CancelLoan arithmetic
  - payments/service.go: RecordPaymentTx used for first payments
*/
package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
	"github.com/warp/loan-engine/payments"
)

// LoanService creates and cancels loans.
type LoanService struct {
	repo     engine.Repository
	balance  *ledger.BalanceService
	payments *payments.PaymentService
	clock    engine.Clock
	log      *logrus.Logger
}

func NewLoanService(repo engine.Repository, balance *ledger.BalanceService, paymentSvc *payments.PaymentService, clock engine.Clock, log *logrus.Logger) *LoanService {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &LoanService{repo: repo, balance: balance, payments: paymentSvc, clock: clock, log: log}
}

// =============================================================================
// CREATION
// =============================================================================

// FirstPayment is an advance payment collected at signing.
type FirstPayment struct {
	Amount decimal.Decimal
	Method engine.PaymentMethod
}

// CreateLoanRequest is one loan in a creation batch.
type CreateLoanRequest struct {
	LeadID       uuid.UUID
	Requested    decimal.Decimal
	Rate         decimal.Decimal
	WeekDuration int
	// PaymentComission is the configured per-collection commission default.
	PaymentComission decimal.Decimal
	// GrantComission is the commission paid out at signing; it seeds the
	// loan's accumulated ComissionAmount so cancellation refunds it.
	GrantComission decimal.Decimal
	SignDate       time.Time
	PreviousLoanID *uuid.UUID
	FirstPayment   *FirstPayment
}

// CreateLoans creates a batch of loans as one atomic unit. Renewals finish
// their predecessor (its whole pending balance is paid off by the new loan;
// only the profit fraction carries over as inherited profit).
func (s *LoanService) CreateLoans(ctx context.Context, requests []CreateLoanRequest) ([]*engine.Loan, error) {
	var created []*engine.Loan
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		created = created[:0]
		for _, req := range requests {
			loan, err := s.createLoanTx(ctx, tx, req)
			if err != nil {
				return err
			}
			created = append(created, loan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *LoanService) createLoanTx(ctx context.Context, repo engine.Repository, req CreateLoanRequest) (*engine.Loan, error) {
	var previous *engine.PreviousLoanData
	var prevLoan *engine.Loan
	if req.PreviousLoanID != nil {
		var err error
		prevLoan, err = repo.GetLoan(ctx, *req.PreviousLoanID)
		if err != nil {
			return nil, err
		}
		if _, err := repo.ActiveRenewalOf(ctx, prevLoan.ID); err == nil {
			return nil, engine.ErrDuplicateRenewal
		} else if !engine.IsNotFound(err) {
			return nil, err
		}
		previous = &engine.PreviousLoanData{
			PendingAmount:     prevLoan.PendingAmountStored,
			ProfitAmount:      prevLoan.ProfitAmount,
			TotalDebtAcquired: prevLoan.TotalDebtAcquired,
		}
	}

	result := engine.CreateLoan(engine.CreateLoanInput{
		Requested:    req.Requested,
		Rate:         req.Rate,
		WeekDuration: req.WeekDuration,
		SignDate:     req.SignDate,
	}, previous)

	now := s.clock.Now()
	loan := &engine.Loan{
		ID:                    uuid.New(),
		LeadID:                req.LeadID,
		RequestedAmount:       req.Requested,
		AmountGived:           result.AmountGived,
		Rate:                  req.Rate,
		WeekDuration:          req.WeekDuration,
		ProfitBase:            result.ProfitBase,
		ProfitInherited:       result.ProfitInherited,
		ProfitAmount:          result.ProfitAmount,
		TotalDebtAcquired:     result.TotalDebtAcquired,
		PendingAmountStored:   result.PendingAmountStored,
		TotalPaid:             decimal.Zero,
		ExpectedWeeklyPayment: result.ExpectedWeeklyPayment,
		ComissionAmount:       req.GrantComission,
		PaymentComission:      req.PaymentComission,
		Status:                engine.LoanActive,
		SignDate:              req.SignDate,
		PreviousLoanID:        req.PreviousLoanID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	if prevLoan != nil {
		// The renewal pays off the predecessor in full. Its pre-renewal
		// pending stays recoverable as totalDebt - totalPaid, which
		// cancellation uses to restore it.
		prevLoan.PendingAmountStored = decimal.Zero
		prevLoan.Status = engine.LoanFinished
		finished := now
		prevLoan.FinishedDate = &finished
		prevLoan.UpdatedAt = now
		if err := repo.UpdateLoan(ctx, prevLoan); err != nil {
			return nil, err
		}
	}

	lead, err := repo.GetEmployee(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	cash, err := repo.AccountByRoute(ctx, lead.RouteID, engine.AccountEmployeeCashFund)
	if err != nil {
		return nil, err
	}

	if result.AmountGived.IsPositive() {
		if _, err := s.balance.CreateEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:   cash.ID,
			Type:        engine.Debit,
			Amount:      result.AmountGived,
			Source:      engine.SourceLoanGrant,
			LoanID:      &loan.ID,
			EntryDate:   req.SignDate,
			Description: "loan disbursement",
		}); err != nil {
			return nil, err
		}
	}
	if req.GrantComission.IsPositive() {
		if _, err := s.balance.CreateEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:   cash.ID,
			Type:        engine.Debit,
			Amount:      req.GrantComission,
			Source:      engine.SourceLoanGrantComission,
			LoanID:      &loan.ID,
			EntryDate:   req.SignDate,
			Description: "loan grant commission",
		}); err != nil {
			return nil, err
		}
	}

	if req.FirstPayment != nil && req.FirstPayment.Amount.IsPositive() {
		// An advance at signing is not a collection visit; it carries no
		// collection commission, so cancellation can deduct it exactly.
		noComission := decimal.Zero
		if _, err := s.payments.RecordPaymentTx(ctx, repo, payments.RecordPaymentInput{
			LoanID:     loan.ID,
			Amount:     req.FirstPayment.Amount,
			Comission:  &noComission,
			Method:     req.FirstPayment.Method,
			ReceivedAt: req.SignDate,
		}); err != nil {
			return nil, err
		}
		// RecordPaymentTx mutated the loan row; reload so the returned
		// value reflects the first payment.
		loan, err = repo.GetLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"loan":    loan.ID,
		"gived":   result.AmountGived,
		"debt":    result.TotalDebtAcquired,
		"renewal": result.IsRenewal,
	}).Info("loan created")

	return loan, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelLoan cancels an erroneous or renewal loan and restores the money it
// moved. The refund is realized entirely by deleting the loan's entries
// (and the deductible same-day first payment) with their balance effects
// reversed; AmountToRestore in the returned result reports that net effect.
//
// When the loan has payments the policy refuses to refund automatically,
// nothing is changed: the transaction aborts with ErrUnaffectedPayments and
// the result still describes what an operator must reconcile by hand.
func (s *LoanService) CancelLoan(ctx context.Context, loanID uuid.UUID) (*engine.CancelLoanResult, error) {
	var result engine.CancelLoanResult
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		loan, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			return err
		}
		stored, err := tx.PaymentsByLoan(ctx, loanID)
		if err != nil {
			return err
		}

		paymentData := make([]engine.CancelPaymentData, 0, len(stored))
		for _, p := range stored {
			paymentData = append(paymentData, engine.CancelPaymentData{
				ID:         p.ID,
				Amount:     p.Amount,
				ReceivedAt: p.ReceivedAt,
			})
		}
		result = engine.CancelLoan(engine.CancelLoanInput{
			AmountGived:     loan.AmountGived,
			ComissionAmount: loan.ComissionAmount,
			SignDate:        loan.SignDate,
			Payments:        paymentData,
		})

		if result.HasUnaffectedPayments {
			s.log.WithFields(logrus.Fields{
				"loan":   loanID,
				"count":  result.UnaffectedPaymentsCount,
				"amount": result.UnaffectedPaymentsAmount,
			}).Warn("cancellation refused: loan has collection history")
			return engine.ErrUnaffectedPayments
		}

		// The first payment's entries must go before the loan sweep: they
		// reference both the payment and the loan, and each entry's balance
		// effect may be reversed exactly once.
		if result.FirstPaymentDeducted {
			if err := s.balance.DeleteEntriesByPayment(ctx, tx, *result.FirstPaymentID); err != nil {
				return err
			}
			if err := tx.DeletePayment(ctx, *result.FirstPaymentID); err != nil {
				return err
			}
		}

		if err := s.balance.DeleteEntriesByLoan(ctx, tx, loanID); err != nil {
			return err
		}

		if loan.PreviousLoanID != nil {
			prev, err := tx.GetLoan(ctx, *loan.PreviousLoanID)
			if err != nil {
				return err
			}
			prev.PendingAmountStored = engine.MaxZero(prev.TotalDebtAcquired.Sub(prev.TotalPaid))
			// A predecessor that had paid itself off stays finished.
			if prev.PendingAmountStored.GreaterThan(engine.Epsilon(engine.FinishedEpsilon)) {
				if prev.BadDebtDate != nil {
					prev.Status = engine.LoanBadDebt
				} else {
					prev.Status = engine.LoanActive
				}
				prev.FinishedDate = nil
			}
			prev.UpdatedAt = s.clock.Now()
			if err := tx.UpdateLoan(ctx, prev); err != nil {
				return err
			}
		}

		return tx.DeleteLoan(ctx, loanID)
	})
	if err != nil {
		if errors.Is(err, engine.ErrUnaffectedPayments) {
			return &result, err
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan":     loanID,
		"restored": result.AmountToRestore,
	}).Info("loan cancelled")

	return &result, nil
}
