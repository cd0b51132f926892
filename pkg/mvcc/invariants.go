// pkg/mvcc/invariants.go
package mvcc

// CheckAcyclic walks every live transaction's dependency edges looking for a
// cycle, using the three-color depth-first search a wait-for-graph deadlock
// detector uses to find wait cycles. Dependency
// edges here always point from a higher-id transaction to a lower-id one (a
// transaction only ever depends on versions already in a key's chain when it
// writes or reads, and the anachronistic-write rule guarantees any such
// version's creator has a strictly smaller id), so a cycle can never form:
// this is exported for tests to assert that guarantee holds rather than for
// any runtime deadlock-resolution path.
//
// It returns the ids forming a cycle, or nil if the graph is acyclic.
func CheckAcyclic(mgr *TransactionManager) []uint64 {
	const (
		white = iota
		gray
		black
	)

	mgr.mu.Lock()
	txns := make([]*Transaction, 0, len(mgr.live))
	for _, tp := range mgr.live {
		txns = append(txns, tp)
	}
	mgr.mu.Unlock()

	color := make(map[uint64]int, len(txns))
	var path []uint64

	var visit func(tp *Transaction) []uint64
	visit = func(tp *Transaction) []uint64 {
		color[tp.id] = gray
		path = append(path, tp.id)

		for _, dtp := range tp.depends.list() {
			switch color[dtp.id] {
			case gray:
				cycle := append([]uint64(nil), path...)
				cycle = append(cycle, dtp.id)
				return cycle
			case white:
				if cycle := visit(dtp); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		color[tp.id] = black
		return nil
	}

	for _, tp := range txns {
		if color[tp.id] == white {
			if cycle := visit(tp); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// CheckRefcounts reports whether every live transaction's refcount is
// consistent with the number of owners it can actually have: at least 1 (its
// own registry entry implies a live owner) plus one for every other live
// transaction that lists it as a dependency. It is a test helper for
// asserting the reference-counting discipline in pkg/mvcc holds across a
// scenario, not a runtime check.
func CheckRefcounts(mgr *TransactionManager) map[uint64]int32 {
	mgr.mu.Lock()
	txns := make([]*Transaction, 0, len(mgr.live))
	for _, tp := range mgr.live {
		txns = append(txns, tp)
	}
	mgr.mu.Unlock()

	expected := make(map[uint64]int32, len(txns))
	for _, tp := range txns {
		expected[tp.id] = 1 // the registry's implicit owner
	}
	for _, tp := range txns {
		for _, dtp := range tp.depends.list() {
			expected[dtp.id]++
		}
	}

	mismatches := make(map[uint64]int32)
	for _, tp := range txns {
		tp.mu.Lock()
		actual := tp.refcnt
		tp.mu.Unlock()
		if actual != expected[tp.id] {
			mismatches[tp.id] = actual - expected[tp.id]
		}
	}
	return mismatches
}
