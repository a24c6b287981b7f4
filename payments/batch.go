/*
batch.go - Recording a field agent's collection run

PURPOSE:
  One agent, one lead, one date: a LeadPaymentReceived batch with its line
  items. Entries are appended per line in deferred mode while the cash and
  bank deltas accumulate; the two account balances are touched exactly once
  at the end to minimize balance-update contention.

CASH/BANK FLOW:
  - CASH lines credit the route's cash fund
  - MONEY_TRANSFER lines credit the route's bank account directly
  - commissions always debit cash (collectors are paid in cash)
  - bankPaidAmount > 0 records one paired cash->bank transfer for the slice
    of cash collections the agent physically deposited
  - falcoAmount > 0 records one DEBIT loss entry against cash

SEE ALSO:
  - edit.go: the post-hoc diff of everything this file records
*/
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
)

// BatchLine is one loan collection inside a batch.
type BatchLine struct {
	LoanID    uuid.UUID
	Amount    decimal.Decimal
	Comission *decimal.Decimal
	Method    engine.PaymentMethod
}

// RecordBatchInput describes one collection run.
type RecordBatchInput struct {
	LeadID  uuid.UUID
	AgentID uuid.UUID

	ExpectedAmount decimal.Decimal
	// BankPaidAmount is the cash the agent moved to the bank; recorded as a
	// paired transfer on top of the line items.
	BankPaidAmount decimal.Decimal
	// FalcoAmount is the shortage the agent reported.
	FalcoAmount decimal.Decimal

	ReceivedAt time.Time
	Lines      []BatchLine
}

// RecordBatch records a collection run as one atomic unit: the batch row,
// every payment with its entries, the optional transfer and falco entries,
// and a single balance update per touched account.
func (s *PaymentService) RecordBatch(ctx context.Context, input RecordBatchInput) (*engine.LeadPaymentReceived, error) {
	if len(input.Lines) == 0 {
		return nil, engine.ErrEmptyBatch
	}

	var batch *engine.LeadPaymentReceived
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		var err error
		batch, err = s.recordBatchTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *PaymentService) recordBatchTx(ctx context.Context, repo engine.Repository, input RecordBatchInput) (*engine.LeadPaymentReceived, error) {
	cash, bank, err := s.routeAccounts(ctx, repo, input.AgentID)
	if err != nil {
		return nil, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.clock.Now()
	}

	paid := decimal.Zero
	cashPaid := decimal.Zero
	for _, line := range input.Lines {
		paid = paid.Add(line.Amount)
		if line.Method == engine.MethodCash {
			cashPaid = cashPaid.Add(line.Amount)
		}
	}

	batch := &engine.LeadPaymentReceived{
		ID:             uuid.New(),
		LeadID:         input.LeadID,
		AgentID:        input.AgentID,
		ExpectedAmount: input.ExpectedAmount,
		PaidAmount:     paid,
		CashPaidAmount: cashPaid,
		BankPaidAmount: input.BankPaidAmount,
		FalcoAmount:    input.FalcoAmount,
		PaymentStatus:  batchStatus(paid, input.ExpectedAmount),
		ReceivedAt:     receivedAt,
		CreatedAt:      s.clock.Now(),
	}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	// Running deltas; applied once per account at the end.
	cashDelta := decimal.Zero
	bankDelta := decimal.Zero

	for _, line := range input.Lines {
		effect, err := s.addBatchPayment(ctx, repo, batch, line, cash, bank, receivedAt)
		if err != nil {
			return nil, err
		}
		cashDelta = cashDelta.Add(effect.cash)
		bankDelta = bankDelta.Add(effect.bank)
	}

	if input.BankPaidAmount.IsPositive() {
		if _, err := s.balance.AppendTransfer(ctx, repo, ledger.TransferInput{
			SourceAccountID:       cash.ID,
			DestinationAccountID:  bank.ID,
			Amount:                input.BankPaidAmount,
			LeadPaymentReceivedID: &batch.ID,
			Description:           "collection run bank deposit",
			EntryDate:             receivedAt,
		}); err != nil {
			return nil, err
		}
		cashDelta = cashDelta.Sub(input.BankPaidAmount)
		bankDelta = bankDelta.Add(input.BankPaidAmount)
	}

	if input.FalcoAmount.IsPositive() {
		if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:             cash.ID,
			Type:                  engine.Debit,
			Amount:                input.FalcoAmount,
			Source:                engine.SourceFalcoLoss,
			LeadPaymentReceivedID: &batch.ID,
			Description:           "agent reported shortage",
			EntryDate:             receivedAt,
		}); err != nil {
			return nil, err
		}
		cashDelta = cashDelta.Sub(input.FalcoAmount)
	}

	if err := s.balance.ApplyDelta(ctx, repo, cash.ID, cashDelta); err != nil {
		return nil, err
	}
	if err := s.balance.ApplyDelta(ctx, repo, bank.ID, bankDelta); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"batch":     batch.ID,
		"lines":     len(input.Lines),
		"paid":      paid,
		"bankPaid":  input.BankPaidAmount,
		"falco":     input.FalcoAmount,
		"cashDelta": cashDelta,
		"bankDelta": bankDelta,
	}).Info("collection batch recorded")

	return batch, nil
}

// accountEffect is a line's contribution to the route's two balances.
type accountEffect struct {
	cash decimal.Decimal
	bank decimal.Decimal
}

func (a accountEffect) add(b accountEffect) accountEffect {
	return accountEffect{cash: a.cash.Add(b.cash), bank: a.bank.Add(b.bank)}
}

func (a accountEffect) sub(b accountEffect) accountEffect {
	return accountEffect{cash: a.cash.Sub(b.cash), bank: a.bank.Sub(b.bank)}
}

// lineEffect computes a payment's contribution under batch conventions:
// the collection lands by method, the commission always leaves cash.
func lineEffect(amount, comission decimal.Decimal, method engine.PaymentMethod) accountEffect {
	var effect accountEffect
	if method == engine.MethodMoneyTransfer {
		effect.bank = amount
	} else {
		effect.cash = amount
	}
	effect.cash = effect.cash.Sub(comission)
	return effect
}

// addBatchPayment creates one line's payment row and deferred entries and
// folds it into the loan's aggregates. Returns the line's account effect for
// the caller's running deltas.
func (s *PaymentService) addBatchPayment(ctx context.Context, repo engine.Repository, batch *engine.LeadPaymentReceived, line BatchLine, cash, bank *engine.Account, receivedAt time.Time) (accountEffect, error) {
	loan, err := repo.GetLoan(ctx, line.LoanID)
	if err != nil {
		return accountEffect{}, err
	}

	comission := comissionOrDefault(line.Comission, loan)
	result := s.split(loan, line.Amount)
	income := destinationFor(cash, bank, line.Method)

	payment := &engine.Payment{
		ID:                    uuid.New(),
		LoanID:                loan.ID,
		LeadPaymentReceivedID: &batch.ID,
		Amount:                line.Amount,
		Comission:             comission,
		Method:                line.Method,
		ReceivedAt:            receivedAt,
		CreatedAt:             s.clock.Now(),
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return accountEffect{}, err
	}

	if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID:             income.ID,
		Type:                  engine.Credit,
		Amount:                line.Amount,
		Source:                incomeSourceFor(line.Method),
		ProfitAmount:          result.ProfitAmount,
		ReturnToCapital:       result.ReturnToCapital,
		LoanID:                &loan.ID,
		PaymentID:             &payment.ID,
		LeadPaymentReceivedID: &batch.ID,
		EntryDate:             receivedAt,
	}); err != nil {
		return accountEffect{}, err
	}

	if comission.IsPositive() {
		if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:             cash.ID,
			Type:                  engine.Debit,
			Amount:                comission,
			Source:                engine.SourcePaymentComission,
			LoanID:                &loan.ID,
			PaymentID:             &payment.ID,
			LeadPaymentReceivedID: &batch.ID,
			EntryDate:             receivedAt,
		}); err != nil {
			return accountEffect{}, err
		}
	}

	s.applyToLoan(loan, line.Amount, comission)
	if err := repo.UpdateLoan(ctx, loan); err != nil {
		return accountEffect{}, err
	}

	return lineEffect(line.Amount, comission, line.Method), nil
}
