package payments_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/payments"
)

// recordMixedBatch is the edit tests' common starting point: one cash line,
// one transfer line, a bank deposit and a reported shortage.
//
//	cash: +300 -8 -8 -100 -20 = +164, bank: +200 +100 = +300
func recordMixedBatch(t *testing.T, f *fixture, loan1, loan2 *engine.Loan) *engine.LeadPaymentReceived {
	t.Helper()
	batch, err := f.svc.RecordBatch(context.Background(), payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("520"),
		BankPaidAmount: dec("100"),
		FalcoAmount:    dec("20"),
		Lines: []payments.BatchLine{
			{LoanID: loan1.ID, Amount: dec("300"), Method: engine.MethodCash},
			{LoanID: loan2.ID, Amount: dec("200"), Method: engine.MethodMoneyTransfer},
		},
	})
	require.NoError(t, err)
	return batch
}

func TestEditBatch_DeleteEverythingRestoresOpeningBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)
	batch := recordMixedBatch(t, f, loan1, loan2)

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	first := paymentOf(t, stored, loan1.ID)
	second := paymentOf(t, stored, loan2.ID)

	updated, err := f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &first.ID, LoanID: first.LoanID, Amount: first.Amount, Method: first.Method, Delete: true},
			{PaymentID: &second.ID, LoanID: second.LoanID, Amount: second.Amount, Method: second.Method, Delete: true},
		},
	})
	require.NoError(t, err)

	// The batch died with its last payment.
	assert.Nil(t, updated)
	_, err = f.repo.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	entries, err := f.repo.EntriesByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5000")))

	loan1 = f.reloadLoan(t, loan1.ID)
	assert.True(t, loan1.TotalPaid.IsZero())
	assert.True(t, loan1.PendingAmountStored.Equal(dec("4200")))
	assert.True(t, loan1.ComissionAmount.IsZero())
}

func TestEditBatch_MixedEditDeleteAdd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)
	batch := recordMixedBatch(t, f, loan1, loan2)

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	first := paymentOf(t, stored, loan1.ID)
	second := paymentOf(t, stored, loan2.ID)

	// Raise line 1 to 400, drop line 2, add a fresh 150 cash payment for
	// loan 2, cut the deposit to 50 and clear the shortage.
	updated, err := f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &first.ID, LoanID: loan1.ID, Amount: dec("400"), Method: engine.MethodCash},
			{PaymentID: &second.ID, LoanID: loan2.ID, Amount: second.Amount, Method: second.Method, Delete: true},
			{LoanID: loan2.ID, Amount: dec("150"), Method: engine.MethodCash},
		},
		BankPaidAmount: dec("50"),
		FalcoAmount:    dec("0"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	// old effect: cash 292-8-100-20=164, bank 300.
	// new effect: cash 392+142-50=484, bank 50. Net: cash +320, bank -250.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10484")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5050")))
	f.requireEntryBacked(t, f.cash.ID, dec("10000"))
	f.requireEntryBacked(t, f.bank.ID, dec("5000"))

	assert.True(t, updated.PaidAmount.Equal(dec("550")))
	assert.True(t, updated.CashPaidAmount.Equal(dec("550")))
	assert.True(t, updated.BankPaidAmount.Equal(dec("50")))
	assert.True(t, updated.FalcoAmount.IsZero())
	assert.Equal(t, engine.BatchComplete, updated.PaymentStatus)

	loan1 = f.reloadLoan(t, loan1.ID)
	assert.True(t, loan1.TotalPaid.Equal(dec("400")))
	assert.True(t, loan1.PendingAmountStored.Equal(dec("3800")))

	loan2 = f.reloadLoan(t, loan2.ID)
	assert.True(t, loan2.TotalPaid.Equal(dec("150")))
	assert.True(t, loan2.PendingAmountStored.Equal(dec("4050")))
	assert.True(t, loan2.ComissionAmount.Equal(dec("8")))

	// 2 incomes + 2 commissions + the resized transfer pair; the falco
	// loss entry is gone.
	entries, err := f.repo.EntriesByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	for _, e := range entries {
		assert.NotEqual(t, engine.SourceFalcoLoss, e.Source)
		if e.Source == engine.SourceTransferIn || e.Source == engine.SourceTransferOut {
			assert.True(t, e.Amount.Equal(dec("50")))
		}
	}
}

func TestEditBatch_UnchangedLinesAreNoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)
	batch := recordMixedBatch(t, f, loan1, loan2)

	cashBefore := f.balanceOf(t, f.cash.ID)
	bankBefore := f.balanceOf(t, f.bank.ID)

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	first := paymentOf(t, stored, loan1.ID)
	second := paymentOf(t, stored, loan2.ID)

	updated, err := f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &first.ID, LoanID: first.LoanID, Amount: first.Amount, Method: first.Method},
			{PaymentID: &second.ID, LoanID: second.LoanID, Amount: second.Amount, Method: second.Method},
		},
		BankPaidAmount: batch.BankPaidAmount,
		FalcoAmount:    batch.FalcoAmount,
	})
	require.NoError(t, err)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(cashBefore))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(bankBefore))
	assert.True(t, updated.PaidAmount.Equal(batch.PaidAmount))
	assert.Equal(t, batch.PaymentStatus, updated.PaymentStatus)
}

func TestEditBatch_MethodChangeMovesIncomeEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{
			{LoanID: loan.ID, Amount: dec("300"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)
	require.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10292")))

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	updated, err := f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan.ID, Amount: dec("300"), Method: engine.MethodMoneyTransfer},
		},
	})
	require.NoError(t, err)

	// The 300 income moved to the bank; the 8 commission stays on cash.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("9992")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5300")))
	assert.True(t, updated.CashPaidAmount.IsZero())
	f.requireEntryBacked(t, f.cash.ID, dec("10000"))
	f.requireEntryBacked(t, f.bank.ID, dec("5000"))

	entries, err := f.repo.EntriesByPayment(ctx, stored[0].ID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Source == engine.SourceBankLoanPayment {
			assert.Equal(t, f.bank.ID, e.AccountID)
		}
		assert.NotEqual(t, engine.SourceCashLoanPayment, e.Source)
	}
}

func TestEditBatch_ZeroComissionRemovesEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{
			{LoanID: loan.ID, Amount: dec("300"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)

	zero := dec("0")
	_, err = f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan.ID, Amount: dec("300"), Comission: &zero, Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)

	// The waived commission flows back to cash.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10300")))

	entries, err := f.repo.EntriesByPayment(ctx, stored[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.SourceCashLoanPayment, entries[0].Source)

	assert.True(t, f.reloadLoan(t, loan.ID).ComissionAmount.IsZero())
}

func TestEditBatch_RejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{
			{LoanID: loan.ID, Amount: dec("300"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)
	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)

	_, err = f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan.ID, Amount: dec("-50"), Method: engine.MethodCash},
		},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)

	// Added lines are held to the same rule.
	_, err = f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan.ID, Amount: stored[0].Amount, Method: stored[0].Method},
			{LoanID: loan.ID, Amount: dec("0"), Method: engine.MethodCash},
		},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)

	// Nothing moved.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10292")))
	assert.True(t, f.reloadLoan(t, loan.ID).TotalPaid.Equal(dec("300")))
	entries, err := f.repo.EntriesByPayment(ctx, stored[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Amount.Equal(dec("300")))
}

func TestEditBatch_LoanMismatchRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{
			{LoanID: loan1.ID, Amount: dec("300"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)
	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)

	// A line may not quietly move a payment to another loan.
	_, err = f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan2.ID, Amount: dec("300"), Method: engine.MethodCash},
		},
	})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.True(t, f.reloadLoan(t, loan2.ID).TotalPaid.IsZero())
}

func TestEditBatch_DeleteEverythingDropsCompensations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		FalcoAmount:    dec("20"),
		Lines: []payments.BatchLine{
			{LoanID: loan.ID, Amount: dec("280"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)
	_, err = f.svc.CompensateShortage(ctx, payments.CompensateShortageInput{
		BatchID: batch.ID,
		Amount:  dec("15"),
	})
	require.NoError(t, err)

	stored, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)

	updated, err := f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch.ID,
		Lines: []payments.EditLine{
			{PaymentID: &stored[0].ID, LoanID: loan.ID, Amount: stored[0].Amount, Method: stored[0].Method, Delete: true},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, updated)

	comps, err := f.repo.FalcoCompensationsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, comps)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	f.requireEntryBacked(t, f.cash.ID, dec("10000"))
}

func TestEditBatch_ForeignPaymentRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)

	batch1, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID: f.lead.ID, AgentID: f.agent.ID, ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{{LoanID: loan1.ID, Amount: dec("300"), Method: engine.MethodCash}},
	})
	require.NoError(t, err)
	batch2, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID: f.lead.ID, AgentID: f.agent.ID, ExpectedAmount: dec("200"),
		Lines: []payments.BatchLine{{LoanID: loan2.ID, Amount: dec("200"), Method: engine.MethodCash}},
	})
	require.NoError(t, err)

	foreign, err := f.repo.PaymentsByBatch(ctx, batch2.ID)
	require.NoError(t, err)

	_, err = f.svc.EditBatch(ctx, payments.EditBatchInput{
		BatchID: batch1.ID,
		Lines: []payments.EditLine{
			{PaymentID: &foreign[0].ID, LoanID: loan2.ID, Amount: dec("200"), Method: engine.MethodCash, Delete: true},
		},
	})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
