/*
Package sqlite provides a SQLite-backed implementation of engine.Repository.

PURPOSE:
  The small-deployment production store. Schema is auto-migrated on New();
  the same table shapes apply to PostgreSQL (store/postgres) with only
  dialect differences.

STORAGE CHOICES:
  - Monetary values are stored as TEXT and parsed with shopspring/decimal;
    REAL columns would reintroduce the binary-float drift the decimal type
    exists to prevent.
  - UUIDs and timestamps (RFC3339Nano) are TEXT.
  - sync_id is UNIQUE: the idempotency/dedup key of the entry log.
  - A partial unique index enforces at most one active renewal per
    predecessor loan.

WAL MODE:
  Opened with WAL for better read concurrency and crash recovery; foreign
  keys are enabled so weak references still have to point at real rows.

SEE ALSO:
  - engine/repository.go: the contract
  - store/postgres/postgres.go: same schema on lib/pq
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
)

// Store implements engine.Repository on SQLite.
type Store struct {
	db *sql.DB
	q  queries
}

// New opens (or creates) the database at path. Use ":memory:" for tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db, q: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		route_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		route_id TEXT,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_route ON accounts(route_id, type)
		WHERE route_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		amount_gived TEXT NOT NULL,
		rate TEXT NOT NULL,
		week_duration INTEGER NOT NULL,
		profit_base TEXT NOT NULL,
		profit_inherited TEXT NOT NULL,
		profit_amount TEXT NOT NULL,
		total_debt_acquired TEXT NOT NULL,
		pending_amount_stored TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		expected_weekly_payment TEXT NOT NULL,
		comission_amount TEXT NOT NULL,
		payment_comission TEXT NOT NULL,
		status TEXT NOT NULL,
		bad_debt_date TEXT,
		sign_date TEXT NOT NULL,
		finished_date TEXT,
		previous_loan_id TEXT REFERENCES loans(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- At most one live successor per predecessor.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_active_renewal
		ON loans(previous_loan_id)
		WHERE previous_loan_id IS NOT NULL AND status != 'FINISHED';

	CREATE TABLE IF NOT EXISTS lead_payments_received (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		expected_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		cash_paid_amount TEXT NOT NULL,
		bank_paid_amount TEXT NOT NULL,
		falco_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		received_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		lead_payment_received_id TEXT REFERENCES lead_payments_received(id),
		amount TEXT NOT NULL,
		comission TEXT NOT NULL,
		method TEXT NOT NULL,
		received_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id);
	CREATE INDEX IF NOT EXISTS idx_payments_batch ON payments(lead_payment_received_id)
		WHERE lead_payment_received_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS falco_compensations (
		id TEXT PRIMARY KEY,
		lead_payment_received_id TEXT NOT NULL REFERENCES lead_payments_received(id),
		amount TEXT NOT NULL,
		received_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_falco_comp_batch
		ON falco_compensations(lead_payment_received_id);

	CREATE TABLE IF NOT EXISTS account_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		source_type TEXT NOT NULL,
		profit_amount TEXT NOT NULL,
		return_to_capital TEXT NOT NULL,
		loan_id TEXT,
		payment_id TEXT,
		lead_payment_received_id TEXT,
		destination_account_id TEXT,
		sync_id TEXT NOT NULL UNIQUE,
		description TEXT,
		entry_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_account ON account_entries(account_id);
	CREATE INDEX IF NOT EXISTS idx_entries_loan ON account_entries(loan_id)
		WHERE loan_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_payment ON account_entries(payment_id)
		WHERE payment_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_batch ON account_entries(lead_payment_received_id)
		WHERE lead_payment_received_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(engine.Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txStore is the transaction-bound Repository; nested WithinTx flattens.
type txStore struct {
	q queries
}

func (t *txStore) WithinTx(_ context.Context, fn func(engine.Repository) error) error {
	return fn(t)
}

// dbtx abstracts *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Store and txStore both delegate here.
type queries struct {
	db dbtx
}

// =============================================================================
// SCAN/FORMAT HELPERS
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func fmtUUIDPtr(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUIDPtr(ns sql.NullString) *uuid.UUID {
	if !ns.Valid {
		return nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil
	}
	return &id
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LOANS
// =============================================================================

const loanColumns = `id, lead_id, requested_amount, amount_gived, rate, week_duration,
	profit_base, profit_inherited, profit_amount, total_debt_acquired,
	pending_amount_stored, total_paid, expected_weekly_payment,
	comission_amount, payment_comission, status, bad_debt_date, sign_date,
	finished_date, previous_loan_id, created_at, updated_at`

func (q queries) CreateLoan(ctx context.Context, l *engine.Loan) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.LeadID.String(), l.RequestedAmount.String(), l.AmountGived.String(),
		l.Rate.String(), l.WeekDuration, l.ProfitBase.String(), l.ProfitInherited.String(),
		l.ProfitAmount.String(), l.TotalDebtAcquired.String(), l.PendingAmountStored.String(),
		l.TotalPaid.String(), l.ExpectedWeeklyPayment.String(), l.ComissionAmount.String(),
		l.PaymentComission.String(), string(l.Status), fmtTimePtr(l.BadDebtDate),
		fmtTime(l.SignDate), fmtTimePtr(l.FinishedDate), fmtUUIDPtr(l.PreviousLoanID),
		fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*engine.Loan, error) {
	var l engine.Loan
	var id, leadID, requested, gived, rate, base, inherited, profit, debt, pending,
		paid, weekly, comission, payComission, status, signDate, createdAt, updatedAt string
	var badDebt, finished, prevID sql.NullString
	err := row.Scan(&id, &leadID, &requested, &gived, &rate, &l.WeekDuration,
		&base, &inherited, &profit, &debt, &pending, &paid, &weekly,
		&comission, &payComission, &status, &badDebt, &signDate,
		&finished, &prevID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	l.ID = uuid.MustParse(id)
	l.LeadID = uuid.MustParse(leadID)
	l.RequestedAmount = parseDec(requested)
	l.AmountGived = parseDec(gived)
	l.Rate = parseDec(rate)
	l.ProfitBase = parseDec(base)
	l.ProfitInherited = parseDec(inherited)
	l.ProfitAmount = parseDec(profit)
	l.TotalDebtAcquired = parseDec(debt)
	l.PendingAmountStored = parseDec(pending)
	l.TotalPaid = parseDec(paid)
	l.ExpectedWeeklyPayment = parseDec(weekly)
	l.ComissionAmount = parseDec(comission)
	l.PaymentComission = parseDec(payComission)
	l.Status = engine.LoanStatus(status)
	l.BadDebtDate = parseTimePtr(badDebt)
	l.SignDate = parseTime(signDate)
	l.FinishedDate = parseTimePtr(finished)
	l.PreviousLoanID = parseUUIDPtr(prevID)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func (q queries) GetLoan(ctx context.Context, id uuid.UUID) (*engine.Loan, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "loan", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func (q queries) UpdateLoan(ctx context.Context, l *engine.Loan) error {
	res, err := q.db.ExecContext(ctx, `UPDATE loans SET
		requested_amount = ?, amount_gived = ?, rate = ?, week_duration = ?,
		profit_base = ?, profit_inherited = ?, profit_amount = ?,
		total_debt_acquired = ?, pending_amount_stored = ?, total_paid = ?,
		expected_weekly_payment = ?, comission_amount = ?, payment_comission = ?,
		status = ?, bad_debt_date = ?, finished_date = ?, updated_at = ?
		WHERE id = ?`,
		l.RequestedAmount.String(), l.AmountGived.String(), l.Rate.String(), l.WeekDuration,
		l.ProfitBase.String(), l.ProfitInherited.String(), l.ProfitAmount.String(),
		l.TotalDebtAcquired.String(), l.PendingAmountStored.String(), l.TotalPaid.String(),
		l.ExpectedWeeklyPayment.String(), l.ComissionAmount.String(), l.PaymentComission.String(),
		string(l.Status), fmtTimePtr(l.BadDebtDate), fmtTimePtr(l.FinishedDate),
		fmtTime(l.UpdatedAt), l.ID.String())
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "loan", ID: l.ID})
}

func (q queries) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "loan", ID: id})
}

func (q queries) ActiveRenewalOf(ctx context.Context, prevID uuid.UUID) (*engine.Loan, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans
		WHERE previous_loan_id = ? AND status != 'FINISHED'`, prevID.String())
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "loan", ID: prevID}
	}
	if err != nil {
		return nil, fmt.Errorf("active renewal: %w", err)
	}
	return loan, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, loan_id, lead_payment_received_id, amount, comission,
	method, received_at, created_at`

func (q queries) CreatePayment(ctx context.Context, p *engine.Payment) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.LoanID.String(), fmtUUIDPtr(p.LeadPaymentReceivedID),
		p.Amount.String(), p.Comission.String(), string(p.Method),
		fmtTime(p.ReceivedAt), fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func scanPayment(row rowScanner) (*engine.Payment, error) {
	var p engine.Payment
	var id, loanID, amount, comission, method, receivedAt, createdAt string
	var batchID sql.NullString
	err := row.Scan(&id, &loanID, &batchID, &amount, &comission, &method, &receivedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(id)
	p.LoanID = uuid.MustParse(loanID)
	p.LeadPaymentReceivedID = parseUUIDPtr(batchID)
	p.Amount = parseDec(amount)
	p.Comission = parseDec(comission)
	p.Method = engine.PaymentMethod(method)
	p.ReceivedAt = parseTime(receivedAt)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (q queries) GetPayment(ctx context.Context, id uuid.UUID) (*engine.Payment, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "payment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (q queries) UpdatePayment(ctx context.Context, p *engine.Payment) error {
	res, err := q.db.ExecContext(ctx, `UPDATE payments SET
		amount = ?, comission = ?, method = ?, received_at = ? WHERE id = ?`,
		p.Amount.String(), p.Comission.String(), string(p.Method),
		fmtTime(p.ReceivedAt), p.ID.String())
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "payment", ID: p.ID})
}

func (q queries) DeletePayment(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "payment", ID: id})
}

func (q queries) paymentsWhere(ctx context.Context, where string, arg any) ([]*engine.Payment, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE `+where+` ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []*engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q queries) PaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]*engine.Payment, error) {
	return q.paymentsWhere(ctx, `loan_id = ?`, loanID.String())
}

func (q queries) PaymentsByBatch(ctx context.Context, batchID uuid.UUID) ([]*engine.Payment, error) {
	return q.paymentsWhere(ctx, `lead_payment_received_id = ?`, batchID.String())
}

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, lead_id, agent_id, expected_amount, paid_amount,
	cash_paid_amount, bank_paid_amount, falco_amount, payment_status,
	received_at, created_at`

func (q queries) CreateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO lead_payments_received (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.LeadID.String(), b.AgentID.String(), b.ExpectedAmount.String(),
		b.PaidAmount.String(), b.CashPaidAmount.String(), b.BankPaidAmount.String(),
		b.FalcoAmount.String(), string(b.PaymentStatus), fmtTime(b.ReceivedAt), fmtTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func scanBatch(row rowScanner) (*engine.LeadPaymentReceived, error) {
	var b engine.LeadPaymentReceived
	var id, leadID, agentID, expected, paid, cashPaid, bankPaid, falco, status,
		receivedAt, createdAt string
	err := row.Scan(&id, &leadID, &agentID, &expected, &paid, &cashPaid, &bankPaid,
		&falco, &status, &receivedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	b.ID = uuid.MustParse(id)
	b.LeadID = uuid.MustParse(leadID)
	b.AgentID = uuid.MustParse(agentID)
	b.ExpectedAmount = parseDec(expected)
	b.PaidAmount = parseDec(paid)
	b.CashPaidAmount = parseDec(cashPaid)
	b.BankPaidAmount = parseDec(bankPaid)
	b.FalcoAmount = parseDec(falco)
	b.PaymentStatus = engine.PaymentStatus(status)
	b.ReceivedAt = parseTime(receivedAt)
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

func (q queries) GetBatch(ctx context.Context, id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM lead_payments_received WHERE id = ?`, id.String())
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "batch", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (q queries) UpdateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	res, err := q.db.ExecContext(ctx, `UPDATE lead_payments_received SET
		expected_amount = ?, paid_amount = ?, cash_paid_amount = ?,
		bank_paid_amount = ?, falco_amount = ?, payment_status = ? WHERE id = ?`,
		b.ExpectedAmount.String(), b.PaidAmount.String(), b.CashPaidAmount.String(),
		b.BankPaidAmount.String(), b.FalcoAmount.String(), string(b.PaymentStatus), b.ID.String())
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "batch", ID: b.ID})
}

func (q queries) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM lead_payments_received WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "batch", ID: id})
}

// =============================================================================
// FALCO COMPENSATIONS
// =============================================================================

func (q queries) CreateFalcoCompensation(ctx context.Context, c *engine.FalcoCompensatoryPayment) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO falco_compensations
		(id, lead_payment_received_id, amount, received_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.LeadPaymentReceivedID.String(), c.Amount.String(),
		fmtTime(c.ReceivedAt), fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create falco compensation: %w", err)
	}
	return nil
}

func (q queries) FalcoCompensationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*engine.FalcoCompensatoryPayment, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, lead_payment_received_id, amount,
		received_at, created_at FROM falco_compensations
		WHERE lead_payment_received_id = ? ORDER BY created_at`, batchID.String())
	if err != nil {
		return nil, fmt.Errorf("list falco compensations: %w", err)
	}
	defer rows.Close()
	var out []*engine.FalcoCompensatoryPayment
	for rows.Next() {
		var c engine.FalcoCompensatoryPayment
		var id, bID, amount, receivedAt, createdAt string
		if err := rows.Scan(&id, &bID, &amount, &receivedAt, &createdAt); err != nil {
			return nil, err
		}
		c.ID = uuid.MustParse(id)
		c.LeadPaymentReceivedID = uuid.MustParse(bID)
		c.Amount = parseDec(amount)
		c.ReceivedAt = parseTime(receivedAt)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (q queries) DeleteFalcoCompensationsByBatch(ctx context.Context, batchID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM falco_compensations WHERE lead_payment_received_id = ?`,
		batchID.String())
	if err != nil {
		return fmt.Errorf("delete falco compensations: %w", err)
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, name, type, route_id, amount, created_at, updated_at`

func (q queries) CreateAccount(ctx context.Context, a *engine.Account) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, string(a.Type), fmtUUIDPtr(a.RouteID),
		a.Amount.String(), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*engine.Account, error) {
	var a engine.Account
	var id, name, typ, amount, createdAt, updatedAt string
	var routeID sql.NullString
	err := row.Scan(&id, &name, &typ, &routeID, &amount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.ID = uuid.MustParse(id)
	a.Name = name
	a.Type = engine.AccountType(typ)
	a.RouteID = parseUUIDPtr(routeID)
	a.Amount = parseDec(amount)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (q queries) GetAccount(ctx context.Context, id uuid.UUID) (*engine.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (q queries) UpdateAccount(ctx context.Context, a *engine.Account) error {
	res, err := q.db.ExecContext(ctx, `UPDATE accounts SET
		name = ?, amount = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Amount.String(), fmtTime(a.UpdatedAt), a.ID.String())
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "account", ID: a.ID})
}

func (q queries) ListAccounts(ctx context.Context) ([]*engine.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []*engine.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q queries) AccountByRoute(ctx context.Context, routeID uuid.UUID, accountType engine.AccountType) (*engine.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE route_id = ? AND type = ?`, routeID.String(), string(accountType))
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "account", ID: routeID}
	}
	if err != nil {
		return nil, fmt.Errorf("account by route: %w", err)
	}
	return a, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

const entryColumns = `id, account_id, amount, entry_type, source_type,
	profit_amount, return_to_capital, loan_id, payment_id,
	lead_payment_received_id, destination_account_id, sync_id, description,
	entry_date, created_at`

func (q queries) CreateEntry(ctx context.Context, e *engine.AccountEntry) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO account_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AccountID.String(), e.Amount.String(), string(e.Type),
		string(e.Source), e.ProfitAmount.String(), e.ReturnToCapital.String(),
		fmtUUIDPtr(e.LoanID), fmtUUIDPtr(e.PaymentID), fmtUUIDPtr(e.LeadPaymentReceivedID),
		fmtUUIDPtr(e.DestinationAccountID), e.SyncID, e.Description,
		fmtTime(e.EntryDate), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

func scanEntry(row rowScanner) (*engine.AccountEntry, error) {
	var e engine.AccountEntry
	var id, accountID, amount, entryType, sourceType, profit, capital, syncID,
		entryDate, createdAt string
	var loanID, paymentID, batchID, destID, description sql.NullString
	err := row.Scan(&id, &accountID, &amount, &entryType, &sourceType, &profit,
		&capital, &loanID, &paymentID, &batchID, &destID, &syncID, &description,
		&entryDate, &createdAt)
	if err != nil {
		return nil, err
	}
	e.ID = uuid.MustParse(id)
	e.AccountID = uuid.MustParse(accountID)
	e.Amount = parseDec(amount)
	e.Type = engine.EntryType(entryType)
	e.Source = engine.SourceType(sourceType)
	e.ProfitAmount = parseDec(profit)
	e.ReturnToCapital = parseDec(capital)
	e.LoanID = parseUUIDPtr(loanID)
	e.PaymentID = parseUUIDPtr(paymentID)
	e.LeadPaymentReceivedID = parseUUIDPtr(batchID)
	e.DestinationAccountID = parseUUIDPtr(destID)
	e.SyncID = syncID
	e.Description = description.String
	e.EntryDate = parseTime(entryDate)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

func (q queries) GetEntry(ctx context.Context, id uuid.UUID) (*engine.AccountEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM account_entries WHERE id = ?`, id.String())
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "entry", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (q queries) UpdateEntry(ctx context.Context, e *engine.AccountEntry) error {
	res, err := q.db.ExecContext(ctx, `UPDATE account_entries SET
		account_id = ?, amount = ?, entry_type = ?, source_type = ?,
		profit_amount = ?, return_to_capital = ?, description = ? WHERE id = ?`,
		e.AccountID.String(), e.Amount.String(), string(e.Type), string(e.Source),
		e.ProfitAmount.String(), e.ReturnToCapital.String(), e.Description, e.ID.String())
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "entry", ID: e.ID})
}

func (q queries) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM account_entries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return requireRow(res, &engine.NotFoundError{Kind: "entry", ID: id})
}

func (q queries) entriesWhere(ctx context.Context, where string, arg any) ([]*engine.AccountEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM account_entries
		WHERE `+where+` ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	var out []*engine.AccountEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) EntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]*engine.AccountEntry, error) {
	return q.entriesWhere(ctx, `account_id = ?`, accountID.String())
}

func (q queries) EntriesByLoan(ctx context.Context, loanID uuid.UUID) ([]*engine.AccountEntry, error) {
	return q.entriesWhere(ctx, `loan_id = ?`, loanID.String())
}

func (q queries) EntriesByPayment(ctx context.Context, paymentID uuid.UUID) ([]*engine.AccountEntry, error) {
	return q.entriesWhere(ctx, `payment_id = ?`, paymentID.String())
}

func (q queries) EntriesByBatch(ctx context.Context, batchID uuid.UUID) ([]*engine.AccountEntry, error) {
	return q.entriesWhere(ctx, `lead_payment_received_id = ?`, batchID.String())
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (q queries) CreateEmployee(ctx context.Context, e *engine.Employee) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO employees (id, name, route_id)
		VALUES (?, ?, ?)`, e.ID.String(), e.Name, e.RouteID.String())
	if err != nil {
		return fmt.Errorf("create employee: %w", err)
	}
	return nil
}

func (q queries) GetEmployee(ctx context.Context, id uuid.UUID) (*engine.Employee, error) {
	var e engine.Employee
	var eid, name, routeID string
	err := q.db.QueryRowContext(ctx, `SELECT id, name, route_id FROM employees
		WHERE id = ?`, id.String()).Scan(&eid, &name, &routeID)
	if err == sql.ErrNoRows {
		return nil, &engine.NotFoundError{Kind: "employee", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	e.ID = uuid.MustParse(eid)
	e.Name = name
	e.RouteID = uuid.MustParse(routeID)
	return &e, nil
}

// =============================================================================
// REPOSITORY DELEGATION
// =============================================================================
// Store (autocommit) and txStore (transaction) both expose the queries.

func (s *Store) CreateLoan(ctx context.Context, l *engine.Loan) error { return s.q.CreateLoan(ctx, l) }
func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (*engine.Loan, error) {
	return s.q.GetLoan(ctx, id)
}
func (s *Store) UpdateLoan(ctx context.Context, l *engine.Loan) error { return s.q.UpdateLoan(ctx, l) }
func (s *Store) DeleteLoan(ctx context.Context, id uuid.UUID) error   { return s.q.DeleteLoan(ctx, id) }
func (s *Store) ActiveRenewalOf(ctx context.Context, id uuid.UUID) (*engine.Loan, error) {
	return s.q.ActiveRenewalOf(ctx, id)
}
func (s *Store) CreatePayment(ctx context.Context, p *engine.Payment) error {
	return s.q.CreatePayment(ctx, p)
}
func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*engine.Payment, error) {
	return s.q.GetPayment(ctx, id)
}
func (s *Store) UpdatePayment(ctx context.Context, p *engine.Payment) error {
	return s.q.UpdatePayment(ctx, p)
}
func (s *Store) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return s.q.DeletePayment(ctx, id)
}
func (s *Store) PaymentsByLoan(ctx context.Context, id uuid.UUID) ([]*engine.Payment, error) {
	return s.q.PaymentsByLoan(ctx, id)
}
func (s *Store) PaymentsByBatch(ctx context.Context, id uuid.UUID) ([]*engine.Payment, error) {
	return s.q.PaymentsByBatch(ctx, id)
}
func (s *Store) CreateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	return s.q.CreateBatch(ctx, b)
}
func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	return s.q.GetBatch(ctx, id)
}
func (s *Store) UpdateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	return s.q.UpdateBatch(ctx, b)
}
func (s *Store) DeleteBatch(ctx context.Context, id uuid.UUID) error { return s.q.DeleteBatch(ctx, id) }
func (s *Store) CreateFalcoCompensation(ctx context.Context, c *engine.FalcoCompensatoryPayment) error {
	return s.q.CreateFalcoCompensation(ctx, c)
}
func (s *Store) FalcoCompensationsByBatch(ctx context.Context, id uuid.UUID) ([]*engine.FalcoCompensatoryPayment, error) {
	return s.q.FalcoCompensationsByBatch(ctx, id)
}
func (s *Store) DeleteFalcoCompensationsByBatch(ctx context.Context, id uuid.UUID) error {
	return s.q.DeleteFalcoCompensationsByBatch(ctx, id)
}
func (s *Store) CreateAccount(ctx context.Context, a *engine.Account) error {
	return s.q.CreateAccount(ctx, a)
}
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*engine.Account, error) {
	return s.q.GetAccount(ctx, id)
}
func (s *Store) UpdateAccount(ctx context.Context, a *engine.Account) error {
	return s.q.UpdateAccount(ctx, a)
}
func (s *Store) ListAccounts(ctx context.Context) ([]*engine.Account, error) {
	return s.q.ListAccounts(ctx)
}
func (s *Store) AccountByRoute(ctx context.Context, routeID uuid.UUID, t engine.AccountType) (*engine.Account, error) {
	return s.q.AccountByRoute(ctx, routeID, t)
}
func (s *Store) CreateEntry(ctx context.Context, e *engine.AccountEntry) error {
	return s.q.CreateEntry(ctx, e)
}
func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (*engine.AccountEntry, error) {
	return s.q.GetEntry(ctx, id)
}
func (s *Store) UpdateEntry(ctx context.Context, e *engine.AccountEntry) error {
	return s.q.UpdateEntry(ctx, e)
}
func (s *Store) DeleteEntry(ctx context.Context, id uuid.UUID) error { return s.q.DeleteEntry(ctx, id) }
func (s *Store) EntriesByAccount(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return s.q.EntriesByAccount(ctx, id)
}
func (s *Store) EntriesByLoan(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return s.q.EntriesByLoan(ctx, id)
}
func (s *Store) EntriesByPayment(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return s.q.EntriesByPayment(ctx, id)
}
func (s *Store) EntriesByBatch(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return s.q.EntriesByBatch(ctx, id)
}
func (s *Store) CreateEmployee(ctx context.Context, e *engine.Employee) error {
	return s.q.CreateEmployee(ctx, e)
}
func (s *Store) GetEmployee(ctx context.Context, id uuid.UUID) (*engine.Employee, error) {
	return s.q.GetEmployee(ctx, id)
}

func (t *txStore) CreateLoan(ctx context.Context, l *engine.Loan) error { return t.q.CreateLoan(ctx, l) }
func (t *txStore) GetLoan(ctx context.Context, id uuid.UUID) (*engine.Loan, error) {
	return t.q.GetLoan(ctx, id)
}
func (t *txStore) UpdateLoan(ctx context.Context, l *engine.Loan) error { return t.q.UpdateLoan(ctx, l) }
func (t *txStore) DeleteLoan(ctx context.Context, id uuid.UUID) error   { return t.q.DeleteLoan(ctx, id) }
func (t *txStore) ActiveRenewalOf(ctx context.Context, id uuid.UUID) (*engine.Loan, error) {
	return t.q.ActiveRenewalOf(ctx, id)
}
func (t *txStore) CreatePayment(ctx context.Context, p *engine.Payment) error {
	return t.q.CreatePayment(ctx, p)
}
func (t *txStore) GetPayment(ctx context.Context, id uuid.UUID) (*engine.Payment, error) {
	return t.q.GetPayment(ctx, id)
}
func (t *txStore) UpdatePayment(ctx context.Context, p *engine.Payment) error {
	return t.q.UpdatePayment(ctx, p)
}
func (t *txStore) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return t.q.DeletePayment(ctx, id)
}
func (t *txStore) PaymentsByLoan(ctx context.Context, id uuid.UUID) ([]*engine.Payment, error) {
	return t.q.PaymentsByLoan(ctx, id)
}
func (t *txStore) PaymentsByBatch(ctx context.Context, id uuid.UUID) ([]*engine.Payment, error) {
	return t.q.PaymentsByBatch(ctx, id)
}
func (t *txStore) CreateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	return t.q.CreateBatch(ctx, b)
}
func (t *txStore) GetBatch(ctx context.Context, id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	return t.q.GetBatch(ctx, id)
}
func (t *txStore) UpdateBatch(ctx context.Context, b *engine.LeadPaymentReceived) error {
	return t.q.UpdateBatch(ctx, b)
}
func (t *txStore) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	return t.q.DeleteBatch(ctx, id)
}
func (t *txStore) CreateFalcoCompensation(ctx context.Context, c *engine.FalcoCompensatoryPayment) error {
	return t.q.CreateFalcoCompensation(ctx, c)
}
func (t *txStore) FalcoCompensationsByBatch(ctx context.Context, id uuid.UUID) ([]*engine.FalcoCompensatoryPayment, error) {
	return t.q.FalcoCompensationsByBatch(ctx, id)
}
func (t *txStore) DeleteFalcoCompensationsByBatch(ctx context.Context, id uuid.UUID) error {
	return t.q.DeleteFalcoCompensationsByBatch(ctx, id)
}
func (t *txStore) CreateAccount(ctx context.Context, a *engine.Account) error {
	return t.q.CreateAccount(ctx, a)
}
func (t *txStore) GetAccount(ctx context.Context, id uuid.UUID) (*engine.Account, error) {
	return t.q.GetAccount(ctx, id)
}
func (t *txStore) UpdateAccount(ctx context.Context, a *engine.Account) error {
	return t.q.UpdateAccount(ctx, a)
}
func (t *txStore) ListAccounts(ctx context.Context) ([]*engine.Account, error) {
	return t.q.ListAccounts(ctx)
}
func (t *txStore) AccountByRoute(ctx context.Context, routeID uuid.UUID, ty engine.AccountType) (*engine.Account, error) {
	return t.q.AccountByRoute(ctx, routeID, ty)
}
func (t *txStore) CreateEntry(ctx context.Context, e *engine.AccountEntry) error {
	return t.q.CreateEntry(ctx, e)
}
func (t *txStore) GetEntry(ctx context.Context, id uuid.UUID) (*engine.AccountEntry, error) {
	return t.q.GetEntry(ctx, id)
}
func (t *txStore) UpdateEntry(ctx context.Context, e *engine.AccountEntry) error {
	return t.q.UpdateEntry(ctx, e)
}
func (t *txStore) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return t.q.DeleteEntry(ctx, id)
}
func (t *txStore) EntriesByAccount(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return t.q.EntriesByAccount(ctx, id)
}
func (t *txStore) EntriesByLoan(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return t.q.EntriesByLoan(ctx, id)
}
func (t *txStore) EntriesByPayment(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return t.q.EntriesByPayment(ctx, id)
}
func (t *txStore) EntriesByBatch(ctx context.Context, id uuid.UUID) ([]*engine.AccountEntry, error) {
	return t.q.EntriesByBatch(ctx, id)
}
func (t *txStore) CreateEmployee(ctx context.Context, e *engine.Employee) error {
	return t.q.CreateEmployee(ctx, e)
}
func (t *txStore) GetEmployee(ctx context.Context, id uuid.UUID) (*engine.Employee, error) {
	return t.q.GetEmployee(ctx, id)
}
