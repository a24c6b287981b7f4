/*
edit.go - Diff-based batch editing

PURPOSE:
  The caller supplies the desired new state of a collection batch: some
  payments updated, some deleted, some added, and new bank/falco totals.
  This file computes the NET balance effect of that change and applies it
  to each account exactly once.

NETTING MODEL:
  Every line in the request is classified as Unchanged / Edited / Deleted /
  Added against its stored payment. Then:

    oldEffect = sum of effects of lines that HAVE a stored payment,
                using pre-edit values,
                plus the batch's previous bankPaidAmount folded in as its
                historical transfer effect, plus the previous falco loss
    newEffect = sum of effects of the same lines using post-edit values
                (zero for deleted), plus the new bankPaidAmount and falco
    netChange = newEffect - oldEffect, applied once per account

  Unchanged lines appear on both sides and cancel; a payment covered by the
  batch-level transfer is never counted twice because the transfer's effect
  enters the sums only through the bankPaidAmount terms.

ENTRY MAINTENANCE:
  Edited payments keep their rows: the income entry's amount, account,
  source and recomputed split are updated in place, the commission entry is
  updated/created/removed as the commission moves around zero. Deleted
  payments lose their rows and entries physically, and their loan reverts.
  Added lines go through the same write path as batch recording. All entry
  work in this file is deferred-mode: balances move only via netChange.

  A batch left with zero payments is deleted outright together with any
  leftover transfer/falco entries - a batch cannot exist without payments.

SEE ALSO:
  - batch.go: lineEffect, the shared per-line account arithmetic
  - ledger/balance.go: deferred vs immediate write modes
*/
package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/ledger"
)

// EditLine is the desired state of one line in a batch edit. PaymentID nil
// means a newly added line; Delete marks an existing payment for removal.
type EditLine struct {
	PaymentID *uuid.UUID
	LoanID    uuid.UUID
	Amount    decimal.Decimal
	Comission *decimal.Decimal
	Method    engine.PaymentMethod
	Delete    bool
}

// EditBatchInput is the full desired state of the batch.
type EditBatchInput struct {
	BatchID        uuid.UUID
	Lines          []EditLine
	BankPaidAmount decimal.Decimal
	FalcoAmount    decimal.Decimal
}

// changeKind tags a line's classification against its stored payment.
type changeKind int

const (
	lineUnchanged changeKind = iota
	lineEdited
	lineDeleted
	lineAdded
)

// lineChange pairs the before and after of one line.
type lineChange struct {
	kind   changeKind
	before *engine.Payment // nil for added lines
	after  EditLine
}

// EditBatch applies the desired state to the batch. Returns the updated
// batch, or nil when the edit removed its last payment and the batch with
// it.
func (s *PaymentService) EditBatch(ctx context.Context, input EditBatchInput) (*engine.LeadPaymentReceived, error) {
	var batch *engine.LeadPaymentReceived
	err := s.repo.WithinTx(ctx, func(tx engine.Repository) error {
		var err error
		batch, err = s.editBatchTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *PaymentService) editBatchTx(ctx context.Context, repo engine.Repository, input EditBatchInput) (*engine.LeadPaymentReceived, error) {
	batch, err := repo.GetBatch(ctx, input.BatchID)
	if err != nil {
		return nil, err
	}
	cash, bank, err := s.routeAccounts(ctx, repo, batch.AgentID)
	if err != nil {
		return nil, err
	}

	changes, err := s.classify(ctx, repo, batch, input.Lines)
	if err != nil {
		return nil, err
	}

	// The old side of the netting sum must be taken now: rewritePayment
	// mutates the stored payment rows the snapshot points at.
	old := s.editOldEffect(changes, batch)

	// Process the per-line writes first; balances stay untouched until the
	// net change is known.
	for i := range changes {
		switch changes[i].kind {
		case lineUnchanged:
			// No writes; the line only participates in the netting sums.
		case lineDeleted:
			if err := s.removeEditedPayment(ctx, repo, changes[i].before); err != nil {
				return nil, err
			}
		case lineEdited:
			if err := s.rewritePayment(ctx, repo, &changes[i], cash, bank); err != nil {
				return nil, err
			}
		case lineAdded:
			line := BatchLine{
				LoanID:    changes[i].after.LoanID,
				Amount:    changes[i].after.Amount,
				Comission: changes[i].after.Comission,
				Method:    changes[i].after.Method,
			}
			if _, err := s.addBatchPayment(ctx, repo, batch, line, cash, bank, batch.ReceivedAt); err != nil {
				return nil, err
			}
		}
	}

	remaining, err := repo.PaymentsByBatch(ctx, input.BatchID)
	if err != nil {
		return nil, err
	}

	newBank := input.BankPaidAmount
	newFalco := input.FalcoAmount
	if len(remaining) == 0 {
		// The batch dies with its last payment; whatever totals the caller
		// sent, the surviving state is zero.
		newBank = decimal.Zero
		newFalco = decimal.Zero
	}

	if err := s.syncTransferEntries(ctx, repo, batch, cash, bank, newBank); err != nil {
		return nil, err
	}
	if err := s.syncFalcoEntry(ctx, repo, batch, cash, newFalco); err != nil {
		return nil, err
	}

	// The netting step: one balance write per account.
	now := s.editNewEffect(changes, newBank, newFalco)
	net := now.sub(old)
	if err := s.balance.ApplyDelta(ctx, repo, cash.ID, net.cash); err != nil {
		return nil, err
	}
	if err := s.balance.ApplyDelta(ctx, repo, bank.ID, net.bank); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"batch":     input.BatchID,
		"lines":     len(input.Lines),
		"remaining": len(remaining),
		"cashNet":   net.cash,
		"bankNet":   net.bank,
	}).Info("collection batch edited")

	if len(remaining) == 0 {
		// The syncs above already removed the transfer and falco entries;
		// anything left on the batch is compensation credits, which revert
		// here together with their rows.
		if err := s.balance.DeleteEntriesByBatch(ctx, repo, input.BatchID); err != nil {
			return nil, err
		}
		if err := repo.DeleteFalcoCompensationsByBatch(ctx, input.BatchID); err != nil {
			return nil, err
		}
		if err := repo.DeleteBatch(ctx, input.BatchID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	paid := decimal.Zero
	cashPaid := decimal.Zero
	for _, p := range remaining {
		paid = paid.Add(p.Amount)
		if p.Method == engine.MethodCash {
			cashPaid = cashPaid.Add(p.Amount)
		}
	}
	batch.PaidAmount = paid
	batch.CashPaidAmount = cashPaid
	batch.BankPaidAmount = newBank
	batch.FalcoAmount = newFalco
	batch.PaymentStatus = batchStatus(paid, batch.ExpectedAmount)
	if err := repo.UpdateBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// classify resolves every requested line against its stored payment.
func (s *PaymentService) classify(ctx context.Context, repo engine.Repository, batch *engine.LeadPaymentReceived, lines []EditLine) ([]lineChange, error) {
	changes := make([]lineChange, 0, len(lines))
	for _, line := range lines {
		if !line.Delete && !line.Amount.IsPositive() {
			return nil, &engine.InvalidAmountError{Op: "edit batch", Amount: line.Amount}
		}
		if line.PaymentID == nil {
			// Materialize the default commission now so the netting sums
			// see the same value the write path will record.
			if line.Comission == nil {
				loan, err := repo.GetLoan(ctx, line.LoanID)
				if err != nil {
					return nil, err
				}
				def := loan.PaymentComission
				line.Comission = &def
			}
			changes = append(changes, lineChange{kind: lineAdded, after: line})
			continue
		}
		before, err := repo.GetPayment(ctx, *line.PaymentID)
		if err != nil {
			return nil, err
		}
		if before.LeadPaymentReceivedID == nil || *before.LeadPaymentReceivedID != batch.ID {
			return nil, fmt.Errorf("payment %s does not belong to batch %s: %w",
				before.ID, batch.ID, engine.ErrNotFound)
		}
		if line.LoanID != before.LoanID {
			return nil, fmt.Errorf("payment %s belongs to loan %s, not %s: %w",
				before.ID, before.LoanID, line.LoanID, engine.ErrNotFound)
		}

		change := lineChange{before: before, after: line}
		switch {
		case line.Delete:
			change.kind = lineDeleted
		case s.lineDiffers(before, line):
			change.kind = lineEdited
		default:
			change.kind = lineUnchanged
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (s *PaymentService) lineDiffers(before *engine.Payment, after EditLine) bool {
	if !before.Amount.Equal(after.Amount) || before.Method != after.Method {
		return true
	}
	return after.Comission != nil && !before.Comission.Equal(*after.Comission)
}

// editOldEffect sums the pre-edit contribution of every stored payment named
// by the request, plus the batch's previous transfer and falco effects.
func (s *PaymentService) editOldEffect(changes []lineChange, batch *engine.LeadPaymentReceived) accountEffect {
	total := accountEffect{}
	for _, c := range changes {
		if c.before == nil {
			continue
		}
		total = total.add(lineEffect(c.before.Amount, c.before.Comission, c.before.Method))
	}
	// Historical transfer: cash down, bank up. Falco: cash down.
	total.cash = total.cash.Sub(batch.BankPaidAmount).Sub(batch.FalcoAmount)
	total.bank = total.bank.Add(batch.BankPaidAmount)
	return total
}

// editNewEffect sums the post-edit contribution of the same lines (deleted
// lines contribute nothing) plus the new transfer and falco effects.
func (s *PaymentService) editNewEffect(changes []lineChange, newBank, newFalco decimal.Decimal) accountEffect {
	total := accountEffect{}
	for _, c := range changes {
		if c.kind == lineDeleted {
			continue
		}
		comission := decimal.Zero
		if c.after.Comission != nil {
			comission = *c.after.Comission
		} else if c.before != nil {
			comission = c.before.Comission
		}
		total = total.add(lineEffect(c.after.Amount, comission, c.after.Method))
	}
	total.cash = total.cash.Sub(newBank).Sub(newFalco)
	total.bank = total.bank.Add(newBank)
	return total
}

// removeEditedPayment physically removes a payment row and its entries and
// reverts its loan. Balance effects are handled by the caller's netting, so
// entries are deleted raw here, not through the reverting ledger helper.
func (s *PaymentService) removeEditedPayment(ctx context.Context, repo engine.Repository, payment *engine.Payment) error {
	entries, err := repo.EntriesByPayment(ctx, payment.ID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := repo.DeleteEntry(ctx, e.ID); err != nil {
			return err
		}
	}
	if err := repo.DeletePayment(ctx, payment.ID); err != nil {
		return err
	}

	loan, err := repo.GetLoan(ctx, payment.LoanID)
	if err != nil {
		return err
	}
	s.applyToLoan(loan, payment.Amount.Neg(), payment.Comission.Neg())
	return repo.UpdateLoan(ctx, loan)
}

// rewritePayment updates an edited payment's row, its income entry (amount,
// account, source, recomputed split) and its commission entry in place.
func (s *PaymentService) rewritePayment(ctx context.Context, repo engine.Repository, change *lineChange, cash, bank *engine.Account) error {
	before := change.before
	after := change.after

	loan, err := repo.GetLoan(ctx, before.LoanID)
	if err != nil {
		return err
	}

	newComission := before.Comission
	if after.Comission != nil {
		newComission = *after.Comission
	}

	// Fold the delta into the loan: revert the old line, apply the new one.
	s.applyToLoan(loan,
		after.Amount.Sub(before.Amount),
		newComission.Sub(before.Comission))
	if err := repo.UpdateLoan(ctx, loan); err != nil {
		return err
	}

	result := s.split(loan, after.Amount)

	entries, err := repo.EntriesByPayment(ctx, before.ID)
	if err != nil {
		return err
	}
	var income, comission *engine.AccountEntry
	for _, e := range entries {
		switch e.Source {
		case engine.SourceCashLoanPayment, engine.SourceBankLoanPayment:
			income = e
		case engine.SourcePaymentComission:
			comission = e
		}
	}
	if income == nil {
		return fmt.Errorf("payment %s has no income entry: %w", before.ID, engine.ErrNotFound)
	}

	income.Amount = after.Amount
	income.Source = incomeSourceFor(after.Method)
	income.AccountID = destinationFor(cash, bank, after.Method).ID
	income.ProfitAmount = result.ProfitAmount
	income.ReturnToCapital = result.ReturnToCapital
	if err := repo.UpdateEntry(ctx, income); err != nil {
		return err
	}

	switch {
	case comission != nil && newComission.IsPositive():
		comission.Amount = newComission
		if err := repo.UpdateEntry(ctx, comission); err != nil {
			return err
		}
	case comission != nil:
		if err := repo.DeleteEntry(ctx, comission.ID); err != nil {
			return err
		}
	case newComission.IsPositive():
		if _, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:             cash.ID,
			Type:                  engine.Debit,
			Amount:                newComission,
			Source:                engine.SourcePaymentComission,
			LoanID:                &loan.ID,
			PaymentID:             &before.ID,
			LeadPaymentReceivedID: before.LeadPaymentReceivedID,
			EntryDate:             before.ReceivedAt,
		}); err != nil {
			return err
		}
	}

	before.Amount = after.Amount
	before.Comission = newComission
	before.Method = after.Method
	return repo.UpdatePayment(ctx, before)
}

// syncTransferEntries keeps the batch's cash->bank transfer pair aligned
// with the new bankPaidAmount: updated in place, created, or removed.
func (s *PaymentService) syncTransferEntries(ctx context.Context, repo engine.Repository, batch *engine.LeadPaymentReceived, cash, bank *engine.Account, newBank decimal.Decimal) error {
	entries, err := repo.EntriesByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	var pair []*engine.AccountEntry
	for _, e := range entries {
		if e.Source == engine.SourceTransferOut || e.Source == engine.SourceTransferIn {
			pair = append(pair, e)
		}
	}

	switch {
	case newBank.IsPositive() && len(pair) > 0:
		for _, e := range pair {
			if !e.Amount.Equal(newBank) {
				e.Amount = newBank
				if err := repo.UpdateEntry(ctx, e); err != nil {
					return err
				}
			}
		}
	case newBank.IsPositive():
		_, err := s.balance.AppendTransfer(ctx, repo, ledger.TransferInput{
			SourceAccountID:       cash.ID,
			DestinationAccountID:  bank.ID,
			Amount:                newBank,
			LeadPaymentReceivedID: &batch.ID,
			Description:           "collection run bank deposit",
			EntryDate:             batch.ReceivedAt,
		})
		return err
	default:
		for _, e := range pair {
			if err := repo.DeleteEntry(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// syncFalcoEntry does the same for the batch's shortage loss entry.
func (s *PaymentService) syncFalcoEntry(ctx context.Context, repo engine.Repository, batch *engine.LeadPaymentReceived, cash *engine.Account, newFalco decimal.Decimal) error {
	entries, err := repo.EntriesByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	var loss *engine.AccountEntry
	for _, e := range entries {
		if e.Source == engine.SourceFalcoLoss {
			loss = e
			break
		}
	}

	switch {
	case newFalco.IsPositive() && loss != nil:
		if !loss.Amount.Equal(newFalco) {
			loss.Amount = newFalco
			return repo.UpdateEntry(ctx, loss)
		}
		return nil
	case newFalco.IsPositive():
		_, err := s.balance.AppendEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID:             cash.ID,
			Type:                  engine.Debit,
			Amount:                newFalco,
			Source:                engine.SourceFalcoLoss,
			LeadPaymentReceivedID: &batch.ID,
			Description:           "agent reported shortage",
			EntryDate:             batch.ReceivedAt,
		})
		return err
	case loss != nil:
		return repo.DeleteEntry(ctx, loss.ID)
	}
	return nil
}
