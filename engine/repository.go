/*
repository.go - Persistence capability consumed by the services

PURPOSE:
  Defines the typed CRUD surface the orchestration layers run against.
  Implementations guarantee FK-validated writes and expose WithinTx so a
  whole logical operation (single payment, batch create, batch edit,
  cancellation) commits or rolls back as one unit.

TRANSACTION CONTRACT:
  WithinTx hands fn a Repository bound to one transaction. Every write fn
  performs through that handle is atomic with the others; any error rolls
  the whole set back. Nesting WithinTx is not supported - services own the
  transaction boundary, lower layers accept the handle they are given.

IMPLEMENTATIONS:
  - engine/store:   in-memory, snapshot-rollback (tests/dev)
  - store/sqlite:   mattn/go-sqlite3, migrate-on-open, WAL
  - store/postgres: lib/pq

SEE ALSO:
  - ledger/balance.go: the only writer of accounts and entries
  - payments/, loans/: transaction owners
*/
package engine

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the transactional persistence capability.
type Repository interface {
	// WithinTx runs fn against a transaction-bound Repository. fn returning
	// an error rolls back everything it wrote.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	// Loans
	CreateLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	UpdateLoan(ctx context.Context, loan *Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	// ActiveRenewalOf returns the active successor of a predecessor loan,
	// or ErrNotFound when none exists.
	ActiveRenewalOf(ctx context.Context, previousLoanID uuid.UUID) (*Loan, error)

	// Payments
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	PaymentsByLoan(ctx context.Context, loanID uuid.UUID) ([]*Payment, error)
	PaymentsByBatch(ctx context.Context, batchID uuid.UUID) ([]*Payment, error)

	// Collection batches
	CreateBatch(ctx context.Context, b *LeadPaymentReceived) error
	GetBatch(ctx context.Context, id uuid.UUID) (*LeadPaymentReceived, error)
	UpdateBatch(ctx context.Context, b *LeadPaymentReceived) error
	DeleteBatch(ctx context.Context, id uuid.UUID) error

	// Shortage compensations
	CreateFalcoCompensation(ctx context.Context, c *FalcoCompensatoryPayment) error
	FalcoCompensationsByBatch(ctx context.Context, batchID uuid.UUID) ([]*FalcoCompensatoryPayment, error)
	DeleteFalcoCompensationsByBatch(ctx context.Context, batchID uuid.UUID) error

	// Accounts
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	ListAccounts(ctx context.Context) ([]*Account, error)
	// AccountByRoute resolves a route's account of the given type
	// (EMPLOYEE_CASH_FUND or BANK).
	AccountByRoute(ctx context.Context, routeID uuid.UUID, accountType AccountType) (*Account, error)

	// Ledger entries
	CreateEntry(ctx context.Context, e *AccountEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*AccountEntry, error)
	UpdateEntry(ctx context.Context, e *AccountEntry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	EntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]*AccountEntry, error)
	EntriesByLoan(ctx context.Context, loanID uuid.UUID) ([]*AccountEntry, error)
	EntriesByPayment(ctx context.Context, paymentID uuid.UUID) ([]*AccountEntry, error)
	EntriesByBatch(ctx context.Context, batchID uuid.UUID) ([]*AccountEntry, error)

	// Employees
	CreateEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error)
}
