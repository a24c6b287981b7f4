/*
Package store provides an in-memory Repository implementation.

PURPOSE:
  Backs tests and local development. Behaves like the SQL stores:
  FK-validated writes, unique sync ids, and transactional rollback
  (implemented by snapshotting all tables before WithinTx runs).

CONCURRENCY:
  One RWMutex over the whole store. WithinTx holds the write lock for its
  entire body, so a transaction observes and produces a consistent state.
  The Repository handed to the transaction body is the unlocked view of the
  same data; nested WithinTx calls flatten into the outer transaction.

SEE ALSO:
  - engine/repository.go: the contract this implements
  - store/sqlite, store/postgres: the production implementations
*/
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/loan-engine/engine"
)

// Memory implements engine.Repository in memory.
type Memory struct {
	mu   sync.RWMutex
	data *tables
}

// tables holds every record by value so snapshots are plain map copies.
type tables struct {
	loans      map[uuid.UUID]engine.Loan
	payments   map[uuid.UUID]engine.Payment
	batches    map[uuid.UUID]engine.LeadPaymentReceived
	falcoComps map[uuid.UUID]engine.FalcoCompensatoryPayment
	accounts   map[uuid.UUID]engine.Account
	employees  map[uuid.UUID]engine.Employee

	// Entries keep insertion order; ledger queries return them in the order
	// they were appended.
	entries []engine.AccountEntry
	syncIDs map[string]uuid.UUID
}

func newTables() *tables {
	return &tables{
		loans:      make(map[uuid.UUID]engine.Loan),
		payments:   make(map[uuid.UUID]engine.Payment),
		batches:    make(map[uuid.UUID]engine.LeadPaymentReceived),
		falcoComps: make(map[uuid.UUID]engine.FalcoCompensatoryPayment),
		accounts:   make(map[uuid.UUID]engine.Account),
		employees:  make(map[uuid.UUID]engine.Employee),
		syncIDs:    make(map[string]uuid.UUID),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.loans {
		c.loans[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.batches {
		c.batches[k] = v
	}
	for k, v := range t.falcoComps {
		c.falcoComps[k] = v
	}
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.employees {
		c.employees[k] = v
	}
	for k, v := range t.syncIDs {
		c.syncIDs[k] = v
	}
	c.entries = append(c.entries, t.entries...)
	return c
}

func NewMemory() *Memory {
	return &Memory{data: newTables()}
}

// WithinTx snapshots the store, runs fn against an unlocked view, and
// restores the snapshot if fn fails.
func (m *Memory) WithinTx(_ context.Context, fn func(engine.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// txView is the transaction-bound Repository. It shares the live tables and
// relies on the outer WithinTx holding the lock.
type txView struct {
	data *tables
}

// WithinTx on a transaction view flattens into the surrounding transaction.
func (v *txView) WithinTx(_ context.Context, fn func(engine.Repository) error) error {
	return fn(v)
}

// =============================================================================
// LOANS
// =============================================================================

func (t *tables) createLoan(loan *engine.Loan) error {
	if loan.PreviousLoanID != nil {
		if _, ok := t.loans[*loan.PreviousLoanID]; !ok {
			return &engine.NotFoundError{Kind: "loan", ID: *loan.PreviousLoanID}
		}
	}
	t.loans[loan.ID] = *loan
	return nil
}

func (t *tables) getLoan(id uuid.UUID) (*engine.Loan, error) {
	loan, ok := t.loans[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "loan", ID: id}
	}
	return &loan, nil
}

func (t *tables) updateLoan(loan *engine.Loan) error {
	if _, ok := t.loans[loan.ID]; !ok {
		return &engine.NotFoundError{Kind: "loan", ID: loan.ID}
	}
	t.loans[loan.ID] = *loan
	return nil
}

func (t *tables) deleteLoan(id uuid.UUID) error {
	if _, ok := t.loans[id]; !ok {
		return &engine.NotFoundError{Kind: "loan", ID: id}
	}
	delete(t.loans, id)
	return nil
}

func (t *tables) activeRenewalOf(prevID uuid.UUID) (*engine.Loan, error) {
	for _, loan := range t.loans {
		if loan.PreviousLoanID != nil && *loan.PreviousLoanID == prevID && loan.Status != engine.LoanFinished {
			l := loan
			return &l, nil
		}
	}
	return nil, &engine.NotFoundError{Kind: "loan", ID: prevID}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (t *tables) createPayment(p *engine.Payment) error {
	if _, ok := t.loans[p.LoanID]; !ok {
		return &engine.NotFoundError{Kind: "loan", ID: p.LoanID}
	}
	if p.LeadPaymentReceivedID != nil {
		if _, ok := t.batches[*p.LeadPaymentReceivedID]; !ok {
			return &engine.NotFoundError{Kind: "batch", ID: *p.LeadPaymentReceivedID}
		}
	}
	t.payments[p.ID] = *p
	return nil
}

func (t *tables) getPayment(id uuid.UUID) (*engine.Payment, error) {
	p, ok := t.payments[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "payment", ID: id}
	}
	return &p, nil
}

func (t *tables) updatePayment(p *engine.Payment) error {
	if _, ok := t.payments[p.ID]; !ok {
		return &engine.NotFoundError{Kind: "payment", ID: p.ID}
	}
	t.payments[p.ID] = *p
	return nil
}

func (t *tables) deletePayment(id uuid.UUID) error {
	if _, ok := t.payments[id]; !ok {
		return &engine.NotFoundError{Kind: "payment", ID: id}
	}
	delete(t.payments, id)
	return nil
}

func (t *tables) paymentsByLoan(loanID uuid.UUID) []*engine.Payment {
	var out []*engine.Payment
	for _, p := range t.payments {
		if p.LoanID == loanID {
			cp := p
			out = append(out, &cp)
		}
	}
	sortPayments(out)
	return out
}

func (t *tables) paymentsByBatch(batchID uuid.UUID) []*engine.Payment {
	var out []*engine.Payment
	for _, p := range t.payments {
		if p.LeadPaymentReceivedID != nil && *p.LeadPaymentReceivedID == batchID {
			cp := p
			out = append(out, &cp)
		}
	}
	sortPayments(out)
	return out
}

func sortPayments(ps []*engine.Payment) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].CreatedAt.Before(ps[j-1].CreatedAt); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

// =============================================================================
// BATCHES + FALCO COMPENSATIONS
// =============================================================================

func (t *tables) createBatch(b *engine.LeadPaymentReceived) error {
	t.batches[b.ID] = *b
	return nil
}

func (t *tables) getBatch(id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	b, ok := t.batches[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "batch", ID: id}
	}
	return &b, nil
}

func (t *tables) updateBatch(b *engine.LeadPaymentReceived) error {
	if _, ok := t.batches[b.ID]; !ok {
		return &engine.NotFoundError{Kind: "batch", ID: b.ID}
	}
	t.batches[b.ID] = *b
	return nil
}

func (t *tables) deleteBatch(id uuid.UUID) error {
	if _, ok := t.batches[id]; !ok {
		return &engine.NotFoundError{Kind: "batch", ID: id}
	}
	delete(t.batches, id)
	return nil
}

func (t *tables) createFalcoCompensation(c *engine.FalcoCompensatoryPayment) error {
	if _, ok := t.batches[c.LeadPaymentReceivedID]; !ok {
		return &engine.NotFoundError{Kind: "batch", ID: c.LeadPaymentReceivedID}
	}
	t.falcoComps[c.ID] = *c
	return nil
}

func (t *tables) falcoCompensationsByBatch(batchID uuid.UUID) []*engine.FalcoCompensatoryPayment {
	var out []*engine.FalcoCompensatoryPayment
	for _, c := range t.falcoComps {
		if c.LeadPaymentReceivedID == batchID {
			cp := c
			out = append(out, &cp)
		}
	}
	return out
}

func (t *tables) deleteFalcoCompensationsByBatch(batchID uuid.UUID) error {
	for id, c := range t.falcoComps {
		if c.LeadPaymentReceivedID == batchID {
			delete(t.falcoComps, id)
		}
	}
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (t *tables) createAccount(a *engine.Account) error {
	t.accounts[a.ID] = *a
	return nil
}

func (t *tables) getAccount(id uuid.UUID) (*engine.Account, error) {
	a, ok := t.accounts[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "account", ID: id}
	}
	return &a, nil
}

func (t *tables) updateAccount(a *engine.Account) error {
	if _, ok := t.accounts[a.ID]; !ok {
		return &engine.NotFoundError{Kind: "account", ID: a.ID}
	}
	t.accounts[a.ID] = *a
	return nil
}

func (t *tables) listAccounts() []*engine.Account {
	var out []*engine.Account
	for _, a := range t.accounts {
		cp := a
		out = append(out, &cp)
	}
	return out
}

func (t *tables) accountByRoute(routeID uuid.UUID, accountType engine.AccountType) (*engine.Account, error) {
	for _, a := range t.accounts {
		if a.RouteID != nil && *a.RouteID == routeID && a.Type == accountType {
			cp := a
			return &cp, nil
		}
	}
	return nil, &engine.NotFoundError{Kind: "account", ID: routeID}
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (t *tables) createEntry(e *engine.AccountEntry) error {
	if _, ok := t.accounts[e.AccountID]; !ok {
		return &engine.NotFoundError{Kind: "account", ID: e.AccountID}
	}
	if e.SyncID != "" {
		if _, dup := t.syncIDs[e.SyncID]; dup {
			return &engine.InvalidAmountError{Op: "duplicate sync id " + e.SyncID, Amount: e.Amount}
		}
		t.syncIDs[e.SyncID] = e.ID
	}
	t.entries = append(t.entries, *e)
	return nil
}

func (t *tables) getEntry(id uuid.UUID) (*engine.AccountEntry, error) {
	for _, e := range t.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, &engine.NotFoundError{Kind: "entry", ID: id}
}

func (t *tables) updateEntry(e *engine.AccountEntry) error {
	for i := range t.entries {
		if t.entries[i].ID == e.ID {
			t.entries[i] = *e
			return nil
		}
	}
	return &engine.NotFoundError{Kind: "entry", ID: e.ID}
}

func (t *tables) deleteEntry(id uuid.UUID) error {
	for i := range t.entries {
		if t.entries[i].ID == id {
			if key := t.entries[i].SyncID; key != "" {
				delete(t.syncIDs, key)
			}
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return nil
		}
	}
	return &engine.NotFoundError{Kind: "entry", ID: id}
}

func (t *tables) entriesWhere(match func(*engine.AccountEntry) bool) []*engine.AccountEntry {
	var out []*engine.AccountEntry
	for i := range t.entries {
		if match(&t.entries[i]) {
			cp := t.entries[i]
			out = append(out, &cp)
		}
	}
	return out
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (t *tables) createEmployee(e *engine.Employee) error {
	t.employees[e.ID] = *e
	return nil
}

func (t *tables) getEmployee(id uuid.UUID) (*engine.Employee, error) {
	e, ok := t.employees[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "employee", ID: id}
	}
	return &e, nil
}

// =============================================================================
// REPOSITORY PLUMBING
// =============================================================================
// Memory methods take the write lock; txView methods assume the caller's
// WithinTx already holds it. Both delegate to the unlocked table methods.

func (m *Memory) CreateLoan(_ context.Context, loan *engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createLoan(loan)
}

func (m *Memory) GetLoan(_ context.Context, id uuid.UUID) (*engine.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getLoan(id)
}

func (m *Memory) UpdateLoan(_ context.Context, loan *engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateLoan(loan)
}

func (m *Memory) DeleteLoan(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteLoan(id)
}

func (m *Memory) ActiveRenewalOf(_ context.Context, prevID uuid.UUID) (*engine.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.activeRenewalOf(prevID)
}

func (m *Memory) CreatePayment(_ context.Context, p *engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createPayment(p)
}

func (m *Memory) GetPayment(_ context.Context, id uuid.UUID) (*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getPayment(id)
}

func (m *Memory) UpdatePayment(_ context.Context, p *engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updatePayment(p)
}

func (m *Memory) DeletePayment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deletePayment(id)
}

func (m *Memory) PaymentsByLoan(_ context.Context, loanID uuid.UUID) ([]*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.paymentsByLoan(loanID), nil
}

func (m *Memory) PaymentsByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.paymentsByBatch(batchID), nil
}

func (m *Memory) CreateBatch(_ context.Context, b *engine.LeadPaymentReceived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createBatch(b)
}

func (m *Memory) GetBatch(_ context.Context, id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getBatch(id)
}

func (m *Memory) UpdateBatch(_ context.Context, b *engine.LeadPaymentReceived) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateBatch(b)
}

func (m *Memory) DeleteBatch(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteBatch(id)
}

func (m *Memory) CreateFalcoCompensation(_ context.Context, c *engine.FalcoCompensatoryPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createFalcoCompensation(c)
}

func (m *Memory) FalcoCompensationsByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.FalcoCompensatoryPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.falcoCompensationsByBatch(batchID), nil
}

func (m *Memory) DeleteFalcoCompensationsByBatch(_ context.Context, batchID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteFalcoCompensationsByBatch(batchID)
}

func (m *Memory) CreateAccount(_ context.Context, a *engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createAccount(a)
}

func (m *Memory) GetAccount(_ context.Context, id uuid.UUID) (*engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getAccount(id)
}

func (m *Memory) UpdateAccount(_ context.Context, a *engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateAccount(a)
}

func (m *Memory) ListAccounts(_ context.Context) ([]*engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listAccounts(), nil
}

func (m *Memory) AccountByRoute(_ context.Context, routeID uuid.UUID, accountType engine.AccountType) (*engine.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.accountByRoute(routeID, accountType)
}

func (m *Memory) CreateEntry(_ context.Context, e *engine.AccountEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createEntry(e)
}

func (m *Memory) GetEntry(_ context.Context, id uuid.UUID) (*engine.AccountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getEntry(id)
}

func (m *Memory) UpdateEntry(_ context.Context, e *engine.AccountEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updateEntry(e)
}

func (m *Memory) DeleteEntry(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteEntry(id)
}

func (m *Memory) EntriesByAccount(_ context.Context, accountID uuid.UUID) ([]*engine.AccountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.entriesWhere(func(e *engine.AccountEntry) bool { return e.AccountID == accountID }), nil
}

func (m *Memory) EntriesByLoan(_ context.Context, loanID uuid.UUID) ([]*engine.AccountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.LoanID != nil && *e.LoanID == loanID
	}), nil
}

func (m *Memory) EntriesByPayment(_ context.Context, paymentID uuid.UUID) ([]*engine.AccountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.PaymentID != nil && *e.PaymentID == paymentID
	}), nil
}

func (m *Memory) EntriesByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.AccountEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.LeadPaymentReceivedID != nil && *e.LeadPaymentReceivedID == batchID
	}), nil
}

func (m *Memory) CreateEmployee(_ context.Context, e *engine.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.createEmployee(e)
}

func (m *Memory) GetEmployee(_ context.Context, id uuid.UUID) (*engine.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getEmployee(id)
}

// txView plumbing - same operations, no locking.

func (v *txView) CreateLoan(_ context.Context, loan *engine.Loan) error  { return v.data.createLoan(loan) }
func (v *txView) GetLoan(_ context.Context, id uuid.UUID) (*engine.Loan, error) {
	return v.data.getLoan(id)
}
func (v *txView) UpdateLoan(_ context.Context, loan *engine.Loan) error { return v.data.updateLoan(loan) }
func (v *txView) DeleteLoan(_ context.Context, id uuid.UUID) error      { return v.data.deleteLoan(id) }
func (v *txView) ActiveRenewalOf(_ context.Context, prevID uuid.UUID) (*engine.Loan, error) {
	return v.data.activeRenewalOf(prevID)
}

func (v *txView) CreatePayment(_ context.Context, p *engine.Payment) error {
	return v.data.createPayment(p)
}
func (v *txView) GetPayment(_ context.Context, id uuid.UUID) (*engine.Payment, error) {
	return v.data.getPayment(id)
}
func (v *txView) UpdatePayment(_ context.Context, p *engine.Payment) error {
	return v.data.updatePayment(p)
}
func (v *txView) DeletePayment(_ context.Context, id uuid.UUID) error { return v.data.deletePayment(id) }
func (v *txView) PaymentsByLoan(_ context.Context, loanID uuid.UUID) ([]*engine.Payment, error) {
	return v.data.paymentsByLoan(loanID), nil
}
func (v *txView) PaymentsByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.Payment, error) {
	return v.data.paymentsByBatch(batchID), nil
}

func (v *txView) CreateBatch(_ context.Context, b *engine.LeadPaymentReceived) error {
	return v.data.createBatch(b)
}
func (v *txView) GetBatch(_ context.Context, id uuid.UUID) (*engine.LeadPaymentReceived, error) {
	return v.data.getBatch(id)
}
func (v *txView) UpdateBatch(_ context.Context, b *engine.LeadPaymentReceived) error {
	return v.data.updateBatch(b)
}
func (v *txView) DeleteBatch(_ context.Context, id uuid.UUID) error { return v.data.deleteBatch(id) }

func (v *txView) CreateFalcoCompensation(_ context.Context, c *engine.FalcoCompensatoryPayment) error {
	return v.data.createFalcoCompensation(c)
}
func (v *txView) FalcoCompensationsByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.FalcoCompensatoryPayment, error) {
	return v.data.falcoCompensationsByBatch(batchID), nil
}
func (v *txView) DeleteFalcoCompensationsByBatch(_ context.Context, batchID uuid.UUID) error {
	return v.data.deleteFalcoCompensationsByBatch(batchID)
}

func (v *txView) CreateAccount(_ context.Context, a *engine.Account) error {
	return v.data.createAccount(a)
}
func (v *txView) GetAccount(_ context.Context, id uuid.UUID) (*engine.Account, error) {
	return v.data.getAccount(id)
}
func (v *txView) UpdateAccount(_ context.Context, a *engine.Account) error {
	return v.data.updateAccount(a)
}
func (v *txView) ListAccounts(_ context.Context) ([]*engine.Account, error) {
	return v.data.listAccounts(), nil
}
func (v *txView) AccountByRoute(_ context.Context, routeID uuid.UUID, accountType engine.AccountType) (*engine.Account, error) {
	return v.data.accountByRoute(routeID, accountType)
}

func (v *txView) CreateEntry(_ context.Context, e *engine.AccountEntry) error {
	return v.data.createEntry(e)
}
func (v *txView) GetEntry(_ context.Context, id uuid.UUID) (*engine.AccountEntry, error) {
	return v.data.getEntry(id)
}
func (v *txView) UpdateEntry(_ context.Context, e *engine.AccountEntry) error {
	return v.data.updateEntry(e)
}
func (v *txView) DeleteEntry(_ context.Context, id uuid.UUID) error { return v.data.deleteEntry(id) }
func (v *txView) EntriesByAccount(_ context.Context, accountID uuid.UUID) ([]*engine.AccountEntry, error) {
	return v.data.entriesWhere(func(e *engine.AccountEntry) bool { return e.AccountID == accountID }), nil
}
func (v *txView) EntriesByLoan(_ context.Context, loanID uuid.UUID) ([]*engine.AccountEntry, error) {
	return v.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.LoanID != nil && *e.LoanID == loanID
	}), nil
}
func (v *txView) EntriesByPayment(_ context.Context, paymentID uuid.UUID) ([]*engine.AccountEntry, error) {
	return v.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.PaymentID != nil && *e.PaymentID == paymentID
	}), nil
}
func (v *txView) EntriesByBatch(_ context.Context, batchID uuid.UUID) ([]*engine.AccountEntry, error) {
	return v.data.entriesWhere(func(e *engine.AccountEntry) bool {
		return e.LeadPaymentReceivedID != nil && *e.LeadPaymentReceivedID == batchID
	}), nil
}

func (v *txView) CreateEmployee(_ context.Context, e *engine.Employee) error {
	return v.data.createEmployee(e)
}
func (v *txView) GetEmployee(_ context.Context, id uuid.UUID) (*engine.Employee, error) {
	return v.data.getEmployee(id)
}
