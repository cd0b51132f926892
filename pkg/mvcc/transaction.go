package mvcc

import (
	"errors"
	"sync"
)

// ErrNotPending reports that a transaction is no longer PENDING. No
// operation in this package returns it: Commit and Abort called on a
// transaction that has already left Pending report its terminal Status
// instead.
var ErrNotPending = errors.New("mvcc: transaction is not pending")

// Status is a transaction's position in its state machine.
type Status int

const (
	// Pending is the only non-terminal status; every transaction starts here.
	Pending Status = iota
	// Committed is terminal: all of the transaction's writes are durable
	// for the remainder of the process lifetime.
	Committed
	// Aborted is terminal: none of the transaction's writes are observable.
	Aborted
)

// String renders a Status the way the reference implementation's debug
// output does, for logs and test failure messages.
func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is a client-scoped unit of work. Its id is assigned once at
// creation and totally orders it against every other transaction created in
// this process's lifetime.
//
// A Transaction is kept alive by three kinds of owners: the client handle
// that created it, every Version it authored, and every dependency edge
// pointing at it. Unref releases one such ownership; when the count reaches
// zero the transaction is removed from the manager's registry.
type Transaction struct {
	mu      sync.Mutex
	cond    *sync.Cond
	id      uint64
	status  Status
	refcnt  int32
	depends *dependencySet
	waiting int // number of goroutines parked in cond.Wait, for diagnostics only

	mgr *TransactionManager
}

func newTransaction(id uint64, mgr *TransactionManager) *Transaction {
	tp := &Transaction{
		id:      id,
		status:  Pending,
		refcnt:  1, // the creator's reference
		depends: newDependencySet(),
		mgr:     mgr,
	}
	tp.cond = sync.NewCond(&tp.mu)
	return tp
}

// ID returns the transaction's id.
func (tp *Transaction) ID() uint64 {
	return tp.id
}

// Status returns the transaction's current status. It requires no
// additional synchronization by the caller: the read is taken under the
// transaction's own lock.
func (tp *Transaction) Status() Status {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.status
}

// Ref increments tp's reference count and returns tp, mirroring
// trans_ref(tp, reason) from the reference implementation (the reason string
// existed there only for debug logging; callers here log at the call site
// instead).
func (tp *Transaction) Ref() *Transaction {
	if tp == nil {
		return nil
	}
	tp.mu.Lock()
	tp.refcnt++
	tp.mu.Unlock()
	return tp
}

// Unref decrements tp's reference count. When it reaches zero, every
// dependency this transaction held is released (recursively unref'd) and
// the transaction is removed from its manager's registry.
func (tp *Transaction) Unref() {
	if tp == nil {
		return
	}
	tp.mu.Lock()
	tp.refcnt--
	zero := tp.refcnt == 0
	tp.mu.Unlock()

	if !zero {
		return
	}

	for _, dtp := range tp.depends.list() {
		dtp.Unref()
	}
	if tp.mgr != nil {
		tp.mgr.remove(tp.id)
	}
}

// addDependency adds dtp to tp's dependency set. The first time a given dtp
// is observed it takes one reference on dtp, per spec's "adds dtp ... and
// takes one reference on dtp"; repeat observations are coalesced (see
// dependencySet) but the externally visible wait behavior — commit blocks
// until dtp is terminal — is unaffected by the coalescing.
func (tp *Transaction) addDependency(dtp *Transaction) {
	if tp.depends.add(dtp) {
		dtp.Ref()
	}
}

// Commit attempts to commit tp. It first waits for every transaction in
// tp's dependency set to reach a terminal status; if any of them aborted,
// tp cascade-aborts and Commit returns Aborted. Otherwise tp becomes
// Committed.
//
// Commit releases the owner reference taken at creation (trans_create's
// implicit "for newly created transaction" ref) exactly once, on whichever
// path returns, matching the reference implementation's trans_commit and
// trans_abort both ending in a single trans_unref.
func (tp *Transaction) Commit() Status {
	for _, dtp := range tp.depends.list() {
		dtp.awaitTerminal()
	}

	for _, dtp := range tp.depends.list() {
		if dtp.Status() == Aborted {
			return tp.Abort()
		}
	}

	tp.mu.Lock()
	if tp.status != Pending {
		status := tp.status
		tp.mu.Unlock()
		return status
	}
	tp.status = Committed
	tp.cond.Broadcast()
	tp.mu.Unlock()

	tp.Unref()
	return Committed
}

// Abort aborts tp. Aborting an already-COMMITTED transaction is a contract
// violation and panics the process, matching spec's "attempting to abort a
// committed transaction is a program-fatal contract violation" — the
// store's own conflict rules guarantee a correct caller never does this.
//
// Abort is idempotent: calling it again on an already-ABORTED transaction
// is a safe no-op (the owner reference is released exactly once, the first
// time the transaction leaves Pending).
func (tp *Transaction) Abort() Status {
	tp.mu.Lock()
	switch tp.status {
	case Committed:
		tp.mu.Unlock()
		panic("mvcc: attempt to abort a committed transaction")
	case Aborted:
		tp.mu.Unlock()
		return Aborted
	default:
		tp.status = Aborted
		tp.cond.Broadcast()
		tp.mu.Unlock()
		tp.Unref()
		return Aborted
	}
}

// awaitTerminal blocks the calling goroutine until tp is Committed or
// Aborted. It implements the semaphore-with-waitcnt idiom of spec §9 as a
// condition variable: the wait is registered and observed under the same
// lock a terminal transition is made under, so no wakeup can be lost.
func (tp *Transaction) awaitTerminal() {
	tp.mu.Lock()
	tp.waiting++
	for tp.status == Pending {
		tp.cond.Wait()
	}
	tp.waiting--
	tp.mu.Unlock()
}
