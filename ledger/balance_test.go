package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/engine/store"
	"github.com/warp/loan-engine/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testClock() engine.FixedClock {
	return engine.FixedClock{At: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
}

func newAccount(t *testing.T, repo engine.Repository, name string, opening decimal.Decimal) *engine.Account {
	t.Helper()
	account := &engine.Account{
		ID:     uuid.New(),
		Name:   name,
		Type:   engine.AccountEmployeeCashFund,
		Amount: opening,
	}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

func balanceOf(t *testing.T, repo engine.Repository, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Amount
}

// =============================================================================
// ENTRY CREATION
// =============================================================================

func TestCreateEntry_BalanceMovesInLockstep(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("1000"))

	// CREDIT raises the balance.
	_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("300"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1300")))

	// DEBIT lowers it.
	_, err = svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Debit,
		Amount:    dec("50"),
		Source:    engine.SourcePaymentComission,
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1250")))
}

func TestCreateEntry_RejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("0"))

	for _, amount := range []string{"0", "-10"} {
		_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
			AccountID: account.ID,
			Type:      engine.Credit,
			Amount:    dec(amount),
			Source:    engine.SourceCashLoanPayment,
		})
		assert.ErrorIs(t, err, engine.ErrInvalidAmount, "amount %s", amount)
	}
}

func TestCreateEntry_DefaultsSyncIDAndDate(t *testing.T) {
	ctx := context.Background()
	clock := testClock()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(clock, nil)
	account := newAccount(t, repo, "route cash", dec("0"))

	entry, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("10"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.SyncID)
	assert.Equal(t, clock.At, entry.EntryDate)
}

func TestAppendEntry_DefersBalanceUpdate(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("1000"))

	entry, err := svc.AppendEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("300"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)

	// Entry exists but the balance is untouched until ApplyDelta.
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1000")))

	require.NoError(t, svc.ApplyDelta(ctx, repo, account.ID, entry.SignedAmount()))
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1300")))
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestCreateTransfer_ConservesTotal(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	cash := newAccount(t, repo, "route cash", dec("1000"))
	bank := newAccount(t, repo, "route bank", dec("500"))

	tr, err := svc.CreateTransfer(ctx, repo, ledger.TransferInput{
		SourceAccountID:      cash.ID,
		DestinationAccountID: bank.ID,
		Amount:               dec("400"),
	})
	require.NoError(t, err)

	assert.True(t, balanceOf(t, repo, cash.ID).Equal(dec("600")))
	assert.True(t, balanceOf(t, repo, bank.ID).Equal(dec("900")))

	// Pair shape: DEBIT out, CREDIT in, both pointing at the destination.
	assert.Equal(t, engine.Debit, tr.Out.Type)
	assert.Equal(t, engine.SourceTransferOut, tr.Out.Source)
	assert.Equal(t, engine.Credit, tr.In.Type)
	assert.Equal(t, engine.SourceTransferIn, tr.In.Source)
	require.NotNil(t, tr.Out.DestinationAccountID)
	assert.Equal(t, bank.ID, *tr.Out.DestinationAccountID)
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestReverseEntry_RestoresBalanceAdditively(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("1000"))

	entry, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID:       account.ID,
		Type:            engine.Credit,
		Amount:          dec("300"),
		Source:          engine.SourceCashLoanPayment,
		ProfitAmount:    dec("85.71"),
		ReturnToCapital: dec("214.29"),
	})
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(ctx, repo, entry.ID, "")
	require.NoError(t, err)

	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1000")))
	assert.Equal(t, engine.Debit, reversal.Type)
	assert.True(t, reversal.ProfitAmount.Equal(dec("-85.71")))
	assert.True(t, reversal.ReturnToCapital.Equal(dec("-214.29")))

	// Additive: the original entry is still there.
	entries, err := repo.EntriesByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// =============================================================================
// PHYSICAL DELETION
// =============================================================================

func TestDeleteEntriesByPayment_RevertsBalances(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("1000"))
	paymentID := uuid.New()

	_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("300"),
		Source:    engine.SourceCashLoanPayment,
		PaymentID: &paymentID,
	})
	require.NoError(t, err)
	_, err = svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Debit,
		Amount:    dec("8"),
		Source:    engine.SourcePaymentComission,
		PaymentID: &paymentID,
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1292")))

	require.NoError(t, svc.DeleteEntriesByPayment(ctx, repo, paymentID))

	// Both entries gone, balance exactly back at the opening value.
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("1000")))
	entries, err := repo.EntriesByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcileAccount_ConsistentAndDrifted(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("0"))

	_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("500"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)

	rec, err := svc.ReconcileAccount(ctx, repo, account.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsConsistent)
	assert.True(t, rec.Difference.IsZero())

	// Corrupt the stored balance behind the ledger's back.
	stored, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	stored.Amount = dec("520")
	require.NoError(t, repo.UpdateAccount(ctx, stored))

	rec, err = svc.ReconcileAccount(ctx, repo, account.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsConsistent)
	assert.True(t, rec.Difference.Equal(dec("20")), "difference is stored minus calculated")
}

func TestFixBalance_AppendsAdjustmentTowardStored(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("0"))

	_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("500"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)

	// Stored 520 vs calculated 500: the stored balance is ground truth, so
	// the fix must CREDIT the missing 20 into the entry history.
	stored, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	stored.Amount = dec("520")
	require.NoError(t, repo.UpdateAccount(ctx, stored))

	entry, err := svc.FixBalance(ctx, repo, account.ID, "drift after migration")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, engine.Credit, entry.Type)
	assert.Equal(t, engine.SourceBalanceAdjustment, entry.Source)
	assert.True(t, entry.Amount.Equal(dec("20")))

	// The stored balance must NOT move: the adjustment closes the entry
	// history's gap, it does not chase itself.
	assert.True(t, balanceOf(t, repo, account.ID).Equal(dec("520")))

	rec, err := svc.ReconcileAccount(ctx, repo, account.ID)
	require.NoError(t, err)
	assert.True(t, rec.IsConsistent)

	// A second fix is a no-op.
	entry, err = svc.FixBalance(ctx, repo, account.ID, "")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestFixBalance_DebitsWhenStoredIsLower(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	account := newAccount(t, repo, "route cash", dec("0"))

	_, err := svc.CreateEntry(ctx, repo, ledger.CreateEntryInput{
		AccountID: account.ID,
		Type:      engine.Credit,
		Amount:    dec("500"),
		Source:    engine.SourceCashLoanPayment,
	})
	require.NoError(t, err)

	stored, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	stored.Amount = dec("470")
	require.NoError(t, repo.UpdateAccount(ctx, stored))

	entry, err := svc.FixBalance(ctx, repo, account.ID, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, engine.Debit, entry.Type)
	assert.True(t, entry.Amount.Equal(dec("30")))
}

func TestReconcileAll_CoversEveryAccount(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	svc := ledger.NewBalanceService(testClock(), nil)
	newAccount(t, repo, "route cash", dec("0"))
	newAccount(t, repo, "route bank", dec("0"))

	recs, err := svc.ReconcileAll(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, rec := range recs {
		assert.True(t, rec.IsConsistent)
	}
}
