package payments_test

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
	"github.com/warp/loan-engine/payments"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fixture is one route with a lead, an agent, a cash fund, and a bank
// account, the minimal world a collection flows through.
type fixture struct {
	repo    *store.Memory
	svc     *payments.PaymentService
	balance *ledger.BalanceService
	clock   engine.FixedClock

	lead  *engine.Employee
	agent *engine.Employee
	cash  *engine.Account
	bank  *engine.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()
	clock := engine.FixedClock{At: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
	balance := ledger.NewBalanceService(clock, nil)

	routeID := uuid.New()
	f := &fixture{
		repo:    repo,
		svc:     payments.NewPaymentService(repo, balance, clock, nil),
		balance: balance,
		clock:   clock,
		lead:  &engine.Employee{ID: uuid.New(), Name: "lead", RouteID: routeID},
		agent: &engine.Employee{ID: uuid.New(), Name: "agent", RouteID: routeID},
		cash: &engine.Account{
			ID:      uuid.New(),
			Name:    "route cash fund",
			Type:    engine.AccountEmployeeCashFund,
			RouteID: &routeID,
			Amount:  dec("10000"),
		},
		bank: &engine.Account{
			ID:      uuid.New(),
			Name:    "route bank",
			Type:    engine.AccountBank,
			RouteID: &routeID,
			Amount:  dec("5000"),
		},
	}
	require.NoError(t, repo.CreateEmployee(ctx, f.lead))
	require.NoError(t, repo.CreateEmployee(ctx, f.agent))
	require.NoError(t, repo.CreateAccount(ctx, f.cash))
	require.NoError(t, repo.CreateAccount(ctx, f.bank))
	return f
}

// makeLoan persists a standard 3000 @ 40% / 14-week loan with an 8-peso
// default collection commission.
func (f *fixture) makeLoan(t *testing.T) *engine.Loan {
	t.Helper()
	result := engine.CreateLoan(engine.CreateLoanInput{
		Requested:    dec("3000"),
		Rate:         dec("0.40"),
		WeekDuration: 14,
	}, nil)
	loan := &engine.Loan{
		ID:                    uuid.New(),
		LeadID:                f.lead.ID,
		RequestedAmount:       dec("3000"),
		AmountGived:           result.AmountGived,
		Rate:                  dec("0.40"),
		WeekDuration:          14,
		ProfitBase:            result.ProfitBase,
		ProfitInherited:       result.ProfitInherited,
		ProfitAmount:          result.ProfitAmount,
		TotalDebtAcquired:     result.TotalDebtAcquired,
		PendingAmountStored:   result.PendingAmountStored,
		TotalPaid:             decimal.Zero,
		ExpectedWeeklyPayment: result.ExpectedWeeklyPayment,
		ComissionAmount:       decimal.Zero,
		PaymentComission:      dec("8"),
		Status:                engine.LoanActive,
		SignDate:              f.clock.At,
		CreatedAt:             f.clock.At,
		UpdatedAt:             f.clock.At,
	}
	require.NoError(t, f.repo.CreateLoan(context.Background(), loan))
	return loan
}

func (f *fixture) balanceOf(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Amount
}

// requireEntryBacked asserts the account's movement away from its seeded
// opening amount is fully explained by its entries: every balance write must
// have a matching entry and vice versa.
func (f *fixture) requireEntryBacked(t *testing.T, id uuid.UUID, opening decimal.Decimal) {
	t.Helper()
	rec, err := f.balance.ReconcileAccount(context.Background(), f.repo, id)
	require.NoError(t, err)
	require.True(t, rec.Difference.Equal(opening),
		"account %s: stored %s but entries sum to %s", id, rec.StoredBalance, rec.CalculatedBalance)
}

// paymentOf picks a loan's payment out of a batch listing; batch listings
// are sorted by receipt time, which ties for lines recorded together.
func paymentOf(t *testing.T, list []*engine.Payment, loanID uuid.UUID) *engine.Payment {
	t.Helper()
	for _, p := range list {
		if p.LoanID == loanID {
			return p
		}
	}
	t.Fatalf("no payment for loan %s", loanID)
	return nil
}

func (f *fixture) reloadLoan(t *testing.T, id uuid.UUID) *engine.Loan {
	t.Helper()
	loan, err := f.repo.GetLoan(context.Background(), id)
	require.NoError(t, err)
	return loan
}

// =============================================================================
// SINGLE PAYMENT
// =============================================================================

func TestRecordPayment_Cash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	payment, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("300"),
		Method: engine.MethodCash,
	})
	require.NoError(t, err)

	// Cash moves by amount minus the default commission.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10292")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5000")))
	assert.True(t, payment.Comission.Equal(dec("8")))

	loan = f.reloadLoan(t, loan.ID)
	assert.True(t, loan.TotalPaid.Equal(dec("300")))
	assert.True(t, loan.PendingAmountStored.Equal(dec("3900")))
	assert.True(t, loan.ComissionAmount.Equal(dec("8")))
	assert.Equal(t, engine.LoanActive, loan.Status)

	// One income entry with the split, one commission debit.
	entries, err := f.repo.EntriesByPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	income := entries[0]
	assert.Equal(t, engine.SourceCashLoanPayment, income.Source)
	assert.True(t, income.ProfitAmount.Equal(dec("85.71")))
	assert.True(t, income.ReturnToCapital.Equal(dec("214.29")))
}

func TestRecordPayment_MoneyTransferLandsOnBank(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	explicit := dec("0")
	_, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID:    loan.ID,
		Amount:    dec("300"),
		Comission: &explicit,
		Method:    engine.MethodMoneyTransfer,
	})
	require.NoError(t, err)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5300")))
}

func TestRecordPayment_ExplicitComissionOverridesDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	explicit := dec("12.50")
	payment, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID:    loan.ID,
		Amount:    dec("300"),
		Comission: &explicit,
		Method:    engine.MethodCash,
	})
	require.NoError(t, err)
	assert.True(t, payment.Comission.Equal(dec("12.50")))
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10287.50")))
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	loan := f.makeLoan(t)

	_, err := f.svc.RecordPayment(context.Background(), payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("0"),
		Method: engine.MethodCash,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)
}

func TestRecordPayment_UnknownLoan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordPayment(context.Background(), payments.RecordPaymentInput{
		LoanID: uuid.New(),
		Amount: dec("300"),
		Method: engine.MethodCash,
	})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecordPayment_FinishesLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	_, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("4200"),
		Method: engine.MethodCash,
	})
	require.NoError(t, err)

	loan = f.reloadLoan(t, loan.ID)
	assert.Equal(t, engine.LoanFinished, loan.Status)
	require.NotNil(t, loan.FinishedDate)
	assert.True(t, loan.PendingAmountStored.IsZero())
}

func TestRecordPayment_BadDebtAllProfit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	badSince := f.clock.At.AddDate(0, -2, 0)
	loan.Status = engine.LoanBadDebt
	loan.BadDebtDate = &badSince
	require.NoError(t, f.repo.UpdateLoan(ctx, loan))

	payment, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("500"),
		Method: engine.MethodCash,
	})
	require.NoError(t, err)

	entries, err := f.repo.EntriesByPayment(ctx, payment.ID)
	require.NoError(t, err)
	income := entries[0]
	assert.True(t, income.ProfitAmount.Equal(dec("500")))
	assert.True(t, income.ReturnToCapital.IsZero())
}

// =============================================================================
// DELETE PAYMENT
// =============================================================================

func TestDeletePayment_RevertsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	payment, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("300"),
		Method: engine.MethodCash,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePayment(ctx, payment.ID))

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	loan = f.reloadLoan(t, loan.ID)
	assert.True(t, loan.TotalPaid.IsZero())
	assert.True(t, loan.PendingAmountStored.Equal(dec("4200")))
	assert.True(t, loan.ComissionAmount.IsZero())

	_, err = f.repo.GetPayment(ctx, payment.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDeletePayment_ReopensFinishedLoan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	payment, err := f.svc.RecordPayment(ctx, payments.RecordPaymentInput{
		LoanID: loan.ID,
		Amount: dec("4200"),
		Method: engine.MethodCash,
	})
	require.NoError(t, err)
	require.Equal(t, engine.LoanFinished, f.reloadLoan(t, loan.ID).Status)

	require.NoError(t, f.svc.DeletePayment(ctx, payment.ID))

	loan = f.reloadLoan(t, loan.ID)
	assert.Equal(t, engine.LoanActive, loan.Status)
	assert.Nil(t, loan.FinishedDate)
}

func TestDeletePayment_LastOfBatchRemovesBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
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

	list, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	cashPayment := paymentOf(t, list, loan1.ID)
	bankPayment := paymentOf(t, list, loan2.ID)

	// Removing one payment shrinks the aggregates.
	require.NoError(t, f.svc.DeletePayment(ctx, cashPayment.ID))
	updated, err := f.repo.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, updated.PaidAmount.Equal(dec("200")))
	assert.True(t, updated.CashPaidAmount.IsZero())
	assert.Equal(t, engine.BatchPartial, updated.PaymentStatus)

	// Removing the last payment removes the batch and its transfer/falco
	// entries; balances end exactly where they started.
	require.NoError(t, f.svc.DeletePayment(ctx, bankPayment.ID))
	_, err = f.repo.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	entries, err := f.repo.EntriesByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5000")))
}

func TestDeletePayment_LastOfBatchRemovesCompensations(t *testing.T) {
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

	list, err := f.repo.PaymentsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// The batch dies with its last payment, compensation rows included.
	require.NoError(t, f.svc.DeletePayment(ctx, list[0].ID))
	_, err = f.repo.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	comps, err := f.repo.FalcoCompensationsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, comps)

	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10000")))
	f.requireEntryBacked(t, f.cash.ID, dec("10000"))
}

// =============================================================================
// BATCH RECORDING
// =============================================================================

func TestRecordBatch_MixedMethodsWithDepositAndShortage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan1 := f.makeLoan(t)
	loan2 := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
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

	// Aggregates.
	assert.True(t, batch.PaidAmount.Equal(dec("500")))
	assert.True(t, batch.CashPaidAmount.Equal(dec("300")))
	assert.True(t, batch.BankPaidAmount.Equal(dec("100")))
	assert.True(t, batch.FalcoAmount.Equal(dec("20")))
	assert.Equal(t, engine.BatchPartial, batch.PaymentStatus)

	// Cash: +300 line, -8 commission twice (commissions always leave cash),
	// -100 deposit, -20 falco. Bank: +200 line, +100 deposit.
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(dec("10164")))
	assert.True(t, f.balanceOf(t, f.bank.ID).Equal(dec("5300")))

	// Loans were both paid.
	assert.True(t, f.reloadLoan(t, loan1.ID).TotalPaid.Equal(dec("300")))
	assert.True(t, f.reloadLoan(t, loan2.ID).TotalPaid.Equal(dec("200")))

	// 2 income + 2 commission + transfer pair + falco loss = 7 entries.
	entries, err := f.repo.EntriesByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 7)
}

func TestRecordBatch_CompleteStatusAtEpsilon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	loan := f.makeLoan(t)

	batch, err := f.svc.RecordBatch(ctx, payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
		Lines: []payments.BatchLine{
			{LoanID: loan.ID, Amount: dec("299.99"), Method: engine.MethodCash},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, engine.BatchComplete, batch.PaymentStatus)
}

func TestRecordBatch_EmptyRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordBatch(context.Background(), payments.RecordBatchInput{
		LeadID:         f.lead.ID,
		AgentID:        f.agent.ID,
		ExpectedAmount: dec("300"),
	})
	assert.ErrorIs(t, err, engine.ErrEmptyBatch)
}

// =============================================================================
// SHORTAGE COMPENSATION
// =============================================================================

func TestCompensateShortage_CreditsCashUpToRemaining(t *testing.T) {
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
	cashAfterBatch := f.balanceOf(t, f.cash.ID)

	_, err = f.svc.CompensateShortage(ctx, payments.CompensateShortageInput{
		BatchID: batch.ID,
		Amount:  dec("15"),
	})
	require.NoError(t, err)
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(cashAfterBatch.Add(dec("15"))))

	// Only 5 remains; claiming 10 must fail and change nothing.
	_, err = f.svc.CompensateShortage(ctx, payments.CompensateShortageInput{
		BatchID: batch.ID,
		Amount:  dec("10"),
	})
	assert.ErrorIs(t, err, engine.ErrExceedsRemaining)
	assert.True(t, f.balanceOf(t, f.cash.ID).Equal(cashAfterBatch.Add(dec("15"))))

	// The exact remainder still goes through.
	_, err = f.svc.CompensateShortage(ctx, payments.CompensateShortageInput{
		BatchID: batch.ID,
		Amount:  dec("5"),
	})
	require.NoError(t, err)

	comps, err := f.repo.FalcoCompensationsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, comps, 2)
}
