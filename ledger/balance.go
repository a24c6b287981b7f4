/*
Package ledger maintains the append-only account ledger and the materialized
balances derived from it.

PURPOSE:
  BalanceService is the ONLY writer of Account.Amount and AccountEntry rows.
  Every mutation of an account balance happens in lock-step with the entry
  that explains it, inside whatever transaction the caller supplies.

CRITICAL INVARIANTS:
  1. For every account: stored balance == sum(CREDIT) - sum(DEBIT) over its
     entries, within BalanceEpsilon
  2. Entries are never edited in place by corrections; corrections append a
     reversal entry of the opposite type
  3. Physical entry deletion exists ONLY for cancellation flows where the
     originating loan/payment row is itself being removed, and it reverses
     the net balance effect in the same step

TWO WRITE MODES:
  CreateEntry/CreateTransfer adjust the materialized balance immediately.
  AppendEntry/AppendTransfer do not: batch orchestration appends many
  entries, accumulates the net cash/bank deltas itself, and applies them
  once through ApplyDelta to avoid per-line balance churn. Whoever appends
  deferred entries owns applying their net effect before the transaction
  commits.

RECONCILIATION:
  ReconcileAccount compares stored vs calculated; FixBalance appends one
  BALANCE_ADJUSTMENT entry that moves the CALCULATED balance onto the
  STORED one. The stored balance is treated as ground truth during repair,
  so the adjustment is appended without touching it.

SEE ALSO:
  - engine/types.go: AccountEntry invariants
  - payments/batch.go: deferred-mode consumer
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/loan-engine/engine"
)

// BalanceService owns ledger writes. Methods take the Repository handle the
// caller's transaction supplies, so a multi-step operation stays atomic.
type BalanceService struct {
	clock engine.Clock
	log   *logrus.Logger
}

func NewBalanceService(clock engine.Clock, log *logrus.Logger) *BalanceService {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &BalanceService{clock: clock, log: log}
}

// =============================================================================
// ENTRY CREATION
// =============================================================================

// CreateEntryInput describes one ledger entry.
type CreateEntryInput struct {
	AccountID uuid.UUID
	Type      engine.EntryType
	Amount    decimal.Decimal
	Source    engine.SourceType

	ProfitAmount    decimal.Decimal
	ReturnToCapital decimal.Decimal

	LoanID                *uuid.UUID
	PaymentID             *uuid.UUID
	LeadPaymentReceivedID *uuid.UUID
	DestinationAccountID  *uuid.UUID

	SyncID      string
	Description string
	EntryDate   time.Time
}

// CreateEntry appends an entry and atomically adjusts the account's
// materialized balance by +amount (CREDIT) or -amount (DEBIT).
func (s *BalanceService) CreateEntry(ctx context.Context, repo engine.Repository, input CreateEntryInput) (*engine.AccountEntry, error) {
	entry, err := s.AppendEntry(ctx, repo, input)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyDelta(ctx, repo, entry.AccountID, entry.SignedAmount()); err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendEntry appends an entry WITHOUT adjusting the materialized balance.
// The caller must fold the entry's signed amount into a delta it applies
// via ApplyDelta before its transaction commits.
func (s *BalanceService) AppendEntry(ctx context.Context, repo engine.Repository, input CreateEntryInput) (*engine.AccountEntry, error) {
	if !input.Amount.IsPositive() {
		return nil, &engine.InvalidAmountError{Op: "create entry", Amount: input.Amount}
	}
	if _, err := repo.GetAccount(ctx, input.AccountID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = now
	}
	syncID := input.SyncID
	if syncID == "" {
		syncID = uuid.NewString()
	}

	entry := &engine.AccountEntry{
		ID:                    uuid.New(),
		AccountID:             input.AccountID,
		Amount:                input.Amount,
		Type:                  input.Type,
		Source:                input.Source,
		ProfitAmount:          input.ProfitAmount,
		ReturnToCapital:       input.ReturnToCapital,
		LoanID:                input.LoanID,
		PaymentID:             input.PaymentID,
		LeadPaymentReceivedID: input.LeadPaymentReceivedID,
		DestinationAccountID:  input.DestinationAccountID,
		SyncID:                syncID,
		Description:           input.Description,
		EntryDate:             entryDate,
		CreatedAt:             now,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}
	return entry, nil
}

// ApplyDelta adjusts an account's materialized balance. A zero delta is a
// no-op so callers can apply accumulated batch deltas unconditionally.
func (s *BalanceService) ApplyDelta(ctx context.Context, repo engine.Repository, accountID uuid.UUID, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	account.Amount = account.Amount.Add(delta)
	account.UpdatedAt = s.clock.Now()
	return repo.UpdateAccount(ctx, account)
}

// =============================================================================
// TRANSFERS
// =============================================================================

// TransferInput describes a paired cash movement between two accounts.
type TransferInput struct {
	SourceAccountID       uuid.UUID
	DestinationAccountID  uuid.UUID
	Amount                decimal.Decimal
	LeadPaymentReceivedID *uuid.UUID
	Description           string
	EntryDate             time.Time
}

// Transfer is the pair of entries one transfer produces.
type Transfer struct {
	Out *engine.AccountEntry
	In  *engine.AccountEntry
}

// CreateTransfer moves amount between two accounts as one atomic unit:
// DEBIT/TRANSFER_OUT on the source, CREDIT/TRANSFER_IN on the destination.
// The sum of the two balances is conserved by construction.
func (s *BalanceService) CreateTransfer(ctx context.Context, repo engine.Repository, input TransferInput) (*Transfer, error) {
	tr, err := s.AppendTransfer(ctx, repo, input)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyDelta(ctx, repo, input.SourceAccountID, input.Amount.Neg()); err != nil {
		return nil, err
	}
	if err := s.ApplyDelta(ctx, repo, input.DestinationAccountID, input.Amount); err != nil {
		return nil, err
	}
	return tr, nil
}

// AppendTransfer creates the entry pair without touching balances; the
// deferred-mode counterpart of CreateTransfer.
func (s *BalanceService) AppendTransfer(ctx context.Context, repo engine.Repository, input TransferInput) (*Transfer, error) {
	if !input.Amount.IsPositive() {
		return nil, &engine.InvalidAmountError{Op: "create transfer", Amount: input.Amount}
	}
	dst := input.DestinationAccountID

	out, err := s.AppendEntry(ctx, repo, CreateEntryInput{
		AccountID:             input.SourceAccountID,
		Type:                  engine.Debit,
		Amount:                input.Amount,
		Source:                engine.SourceTransferOut,
		LeadPaymentReceivedID: input.LeadPaymentReceivedID,
		DestinationAccountID:  &dst,
		Description:           input.Description,
		EntryDate:             input.EntryDate,
	})
	if err != nil {
		return nil, err
	}
	in, err := s.AppendEntry(ctx, repo, CreateEntryInput{
		AccountID:             input.DestinationAccountID,
		Type:                  engine.Credit,
		Amount:                input.Amount,
		Source:                engine.SourceTransferIn,
		LeadPaymentReceivedID: input.LeadPaymentReceivedID,
		DestinationAccountID:  &dst,
		Description:           input.Description,
		EntryDate:             input.EntryDate,
	})
	if err != nil {
		return nil, err
	}
	return &Transfer{Out: out, In: in}, nil
}

// =============================================================================
// REVERSAL
// =============================================================================

// ReverseEntry appends an entry of the opposite type and equal amount,
// restoring the balance to its pre-entry value. The original entry is
// retained for audit; reversal is additive, not destructive.
func (s *BalanceService) ReverseEntry(ctx context.Context, repo engine.Repository, entryID uuid.UUID, description string) (*engine.AccountEntry, error) {
	original, err := repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	opposite := engine.Credit
	if original.Type == engine.Credit {
		opposite = engine.Debit
	}
	if description == "" {
		description = fmt.Sprintf("reversal of entry %s", original.ID)
	}

	return s.CreateEntry(ctx, repo, CreateEntryInput{
		AccountID:             original.AccountID,
		Type:                  opposite,
		Amount:                original.Amount,
		Source:                original.Source,
		ProfitAmount:          original.ProfitAmount.Neg(),
		ReturnToCapital:       original.ReturnToCapital.Neg(),
		LoanID:                original.LoanID,
		PaymentID:             original.PaymentID,
		LeadPaymentReceivedID: original.LeadPaymentReceivedID,
		Description:           description,
	})
}

// =============================================================================
// PHYSICAL DELETION (cancellation flows only)
// =============================================================================

// DeleteEntriesByLoan removes every entry tied to a loan and reverses their
// net balance effect per account in the same step. Used only when the loan
// row itself is being deleted; ordinary corrections use ReverseEntry.
func (s *BalanceService) DeleteEntriesByLoan(ctx context.Context, repo engine.Repository, loanID uuid.UUID) error {
	entries, err := repo.EntriesByLoan(ctx, loanID)
	if err != nil {
		return err
	}
	return s.deleteEntries(ctx, repo, entries)
}

// DeleteEntriesByPayment is DeleteEntriesByLoan scoped to one payment.
func (s *BalanceService) DeleteEntriesByPayment(ctx context.Context, repo engine.Repository, paymentID uuid.UUID) error {
	entries, err := repo.EntriesByPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	return s.deleteEntries(ctx, repo, entries)
}

// DeleteEntriesByBatch removes the entries still tied to a batch (transfer
// pairs, falco losses) when the batch row is deleted with its last payment.
func (s *BalanceService) DeleteEntriesByBatch(ctx context.Context, repo engine.Repository, batchID uuid.UUID) error {
	entries, err := repo.EntriesByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return s.deleteEntries(ctx, repo, entries)
}

func (s *BalanceService) deleteEntries(ctx context.Context, repo engine.Repository, entries []*engine.AccountEntry) error {
	reverts := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range entries {
		if err := repo.DeleteEntry(ctx, e.ID); err != nil {
			return err
		}
		reverts[e.AccountID] = reverts[e.AccountID].Sub(e.SignedAmount())
	}
	for accountID, delta := range reverts {
		if err := s.ApplyDelta(ctx, repo, accountID, delta); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// RECONCILIATION + REPAIR
// =============================================================================

// Reconciliation compares an account's materialized balance to the balance
// its entries calculate.
type Reconciliation struct {
	AccountID         uuid.UUID
	StoredBalance     decimal.Decimal
	CalculatedBalance decimal.Decimal
	// Difference is stored minus calculated.
	Difference   decimal.Decimal
	IsConsistent bool
}

// ReconcileAccount never fails on an inconsistent account - inconsistency is
// the expected, correctable condition it exists to report. It fails only if
// the account itself does not exist.
func (s *BalanceService) ReconcileAccount(ctx context.Context, repo engine.Repository, accountID uuid.UUID) (*Reconciliation, error) {
	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	entries, err := repo.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	calculated := decimal.Zero
	for _, e := range entries {
		calculated = calculated.Add(e.SignedAmount())
	}

	difference := account.Amount.Sub(calculated)
	return &Reconciliation{
		AccountID:         accountID,
		StoredBalance:     account.Amount,
		CalculatedBalance: calculated,
		Difference:        difference,
		IsConsistent:      difference.Abs().LessThan(engine.Epsilon(engine.BalanceEpsilon)),
	}, nil
}

// FixBalance repairs stored-vs-calculated drift with one BALANCE_ADJUSTMENT
// entry. Returns (nil, nil) when the account is already consistent, which
// makes a second consecutive call a no-op.
//
// Direction, from first principles: the adjustment must make the calculated
// balance equal the stored one. Stored above calculated means the entry log
// is missing credits, so the adjustment is a CREDIT of the difference;
// stored below calculated means the log overstates, so a DEBIT. The stored
// balance is ground truth during repair and is NOT modified - the entry is
// appended in deferred mode on purpose.
func (s *BalanceService) FixBalance(ctx context.Context, repo engine.Repository, accountID uuid.UUID, description string) (*engine.AccountEntry, error) {
	rec, err := s.ReconcileAccount(ctx, repo, accountID)
	if err != nil {
		return nil, err
	}
	if rec.IsConsistent {
		return nil, nil
	}

	entryType := engine.Credit
	if rec.Difference.IsNegative() {
		entryType = engine.Debit
	}
	if description == "" {
		description = fmt.Sprintf("balance adjustment: stored %s, calculated %s",
			rec.StoredBalance, rec.CalculatedBalance)
	}

	s.log.WithFields(logrus.Fields{
		"account":    accountID,
		"stored":     rec.StoredBalance,
		"calculated": rec.CalculatedBalance,
		"difference": rec.Difference,
	}).Warn("fixing inconsistent account balance")

	return s.AppendEntry(ctx, repo, CreateEntryInput{
		AccountID:   accountID,
		Type:        entryType,
		Amount:      rec.Difference.Abs(),
		Source:      engine.SourceBalanceAdjustment,
		Description: description,
	})
}

// ReconcileAll reconciles every account. Read-only; safe outside any
// transaction.
func (s *BalanceService) ReconcileAll(ctx context.Context, repo engine.Repository) ([]*Reconciliation, error) {
	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Reconciliation, 0, len(accounts))
	for _, a := range accounts {
		rec, err := s.ReconcileAccount(ctx, repo, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
