package mvcc

import "sync"

// TransactionManager owns the process-wide transaction id counter and the
// registry of every currently-live transaction. It is the single
// long-lived manager object spec §9 calls for, created once at startup and
// threaded into the Store rather than kept as a package-level singleton.
type TransactionManager struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Transaction
}

// NewTransactionManager creates an empty transaction manager.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{live: make(map[uint64]*Transaction)}
}

// Begin assigns the next id, creates a new PENDING transaction with
// refcount 1 (the caller's reference), and registers it.
func (m *TransactionManager) Begin() *Transaction {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	tp := newTransaction(id, m)

	m.mu.Lock()
	m.live[id] = tp
	m.mu.Unlock()

	return tp
}

// remove drops id from the registry. It is called by Transaction.Unref once
// a transaction's refcount reaches zero.
func (m *TransactionManager) remove(id uint64) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}

// Lookup returns the live transaction with the given id, or nil if none is
// currently registered (it has already been fully released).
func (m *TransactionManager) Lookup(id uint64) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[id]
}

// Count returns the number of currently-registered (not yet fully released)
// transactions, for tests and diagnostics.
func (m *TransactionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
