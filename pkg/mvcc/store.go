// pkg/mvcc/store.go
package mvcc

import "sync"

// numBuckets is the fixed bucket count of the Store's hash table. It is not
// configurable: the reference implementation fixes it at 8 and spec §4.E
// carries that constant forward unchanged.
const numBuckets = 8

// mapEntry is one key's slot: a chain link in its bucket, and the head of
// its version list (sorted ascending by creator transaction id).
type mapEntry struct {
	key  *Key
	head *version
	next *mapEntry // next entry in this bucket's chain
}

// Store is the process's single versioned key/value table: a fixed 8-bucket
// hash map from Key to a chain of Versions, guarded by one mutex. It is the
// Go realization of spec §4.E.
type Store struct {
	mu      sync.Mutex
	buckets [numBuckets]*mapEntry
	txns    *TransactionManager
}

// NewStore creates an empty store backed by mgr for transaction lifecycle.
func NewStore(mgr *TransactionManager) *Store {
	return &Store{txns: mgr}
}

// Begin starts a new transaction against this store's transaction manager.
func (s *Store) Begin() *Transaction {
	return s.txns.Begin()
}

// ActiveTransactions reports how many transactions are currently registered
// with this store's transaction manager (created but not yet fully
// released), for callers that expose it as a gauge.
func (s *Store) ActiveTransactions() int {
	return s.txns.Count()
}

// Put records value as tp's version of key. It adopts both the caller's
// reference to key and its reference to value (value may be nil to write a
// tombstone). If the write is anachronistic — some transaction with a higher
// id has already written this key — tp is aborted and Put returns Aborted;
// otherwise it returns tp's current status (ordinarily Pending, since Put
// never itself commits).
func (s *Store) Put(tp *Transaction, key *Key, value *Blob) Status {
	s.mu.Lock()
	entry := s.findOrInsert(key)
	s.garbageCollect(entry)
	s.addVersion(entry, tp, value)
	s.mu.Unlock()
	return tp.Status()
}

// Get reads the most recently written value of key as observed by tp, and
// also registers tp as a reader of that value so a later anachronistic
// write against the same key is detected. The returned Blob, if non-nil,
// carries a reference the caller owns and must eventually Unref.
func (s *Store) Get(tp *Transaction, key *Key) (*Blob, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.findOrInsert(key)
	s.garbageCollect(entry)

	var current *Blob
	if entry.head != nil {
		tail := entry.head
		for tail.next != nil {
			tail = tail.next
		}
		current = tail.blob
	}

	var forVersion, forCaller *Blob
	if current != nil {
		forVersion = current.Ref()
		forCaller = current.Ref()
	}

	s.addVersion(entry, tp, forVersion)

	return forCaller, tp.Status()
}

// findOrInsert returns the entry for key, adopting the caller's reference to
// key. If an entry with an equal key already exists, key is disposed and the
// existing entry is returned instead; otherwise a new entry is appended to
// the tail of its bucket's chain, preserving insertion order.
func (s *Store) findOrInsert(key *Key) *mapEntry {
	bucket := key.Hash() % numBuckets

	var tail *mapEntry
	for e := s.buckets[bucket]; e != nil; e = e.next {
		if keyEqual(e.key, key) {
			key.Dispose()
			return e
		}
		tail = e
	}

	entry := &mapEntry{key: key}
	if tail == nil {
		s.buckets[bucket] = entry
	} else {
		tail.next = entry
	}
	return entry
}

// addVersion adopts blob (which may be nil) and links a new version authored
// by tp into entry's version list.
//
// If some existing version's creator has a higher id than tp — tp is
// observing a key already written by a "later" transaction — the write is
// anachronistic: tp aborts immediately and blob's reference is released.
//
// Otherwise, every existing version whose creator is still Pending becomes a
// dependency of tp (tp's eventual Commit must wait for it). If a version
// already exists with creator id equal to tp's (tp touching the same key
// twice), it is replaced in place; otherwise the new version is appended at
// the tail, which is always correct ordering since the anachronistic check
// above guarantees no surviving creator id exceeds tp's.
func (s *Store) addVersion(entry *mapEntry, tp *Transaction, blob *Blob) {
	for cur := entry.head; cur != nil; cur = cur.next {
		if cur.creator.id > tp.id {
			tp.Abort()
			blob.Unref()
			return
		}
	}

	var match, matchPrev, tail *version
	var prev *version
	for cur := entry.head; cur != nil; cur = cur.next {
		switch {
		case cur.creator.id == tp.id:
			match, matchPrev = cur, prev
		case cur.creator.Status() == Pending:
			tp.addDependency(cur.creator)
		}
		prev = cur
		tail = cur
	}

	v := newVersion(tp, blob)

	switch {
	case match != nil:
		v.next = match.next
		if matchPrev == nil {
			entry.head = v
		} else {
			matchPrev.next = v
		}
		match.dispose()
	case entry.head == nil:
		entry.head = v
	default:
		tail.next = v
	}
}

// garbageCollect reclaims versions of entry that can no longer affect any
// future read or write:
//
//   - Every committed version strictly earlier than the latest committed
//     version is disposed: once a later commit exists, an earlier one can
//     never again be the "current" value a reader observes.
//   - Starting at the earliest aborted version, every subsequent version is
//     disposed and its creator cascade-aborted: an aborted write poisons
//     every write that depended on it (per the anachronistic-write rule, any
//     later write on this key must have registered a dependency on it, or
//     could not have been accepted at all), so nothing downstream of it can
//     ever legitimately commit.
//
// This follows the rules spec §4.E spells out directly, not the reference
// implementation's identity test (it compares version pointers with memcmp
// in a way that misidentifies distinct same-content versions as equal).
func (s *Store) garbageCollect(entry *mapEntry) {
	if entry.head == nil {
		return
	}

	var latestCommitted, earliestAborted *version
	for cur := entry.head; cur != nil; cur = cur.next {
		switch cur.creator.Status() {
		case Committed:
			latestCommitted = cur
		case Aborted:
			if earliestAborted == nil {
				earliestAborted = cur
			}
		}
	}

	if latestCommitted != nil {
		var prev *version
		cur := entry.head
		for cur != nil && cur != latestCommitted {
			next := cur.next
			if cur.creator.Status() == Committed {
				if prev == nil {
					entry.head = next
				} else {
					prev.next = next
				}
				cur.dispose()
				cur = next
				continue
			}
			prev = cur
			cur = next
		}
	}

	if earliestAborted != nil {
		var prev *version
		cur := entry.head
		for cur != nil && cur != earliestAborted {
			prev = cur
			cur = cur.next
		}
		for cur != nil {
			next := cur.next
			cur.creator.Abort()
			if prev == nil {
				entry.head = next
			} else {
				prev.next = next
			}
			cur.dispose()
			cur = next
		}
	}
}

// Close disposes every key and version still held by the store. It is meant
// for orderly shutdown (after the last client connection has closed) and for
// tests; it is not safe to call concurrently with Put/Get.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.buckets {
		for e := s.buckets[i]; e != nil; {
			next := e.next
			for v := e.head; v != nil; {
				vnext := v.next
				v.dispose()
				v = vnext
			}
			e.key.Dispose()
			e = next
		}
		s.buckets[i] = nil
	}
}
