// Package mvcc implements the transactional core of xacto: a bucketed,
// hash-indexed object store whose values are versioned by the id of the
// transaction that created them, plus the transaction manager that tracks
// transaction identity, status, reference counts, and inter-transaction
// dependencies.
//
// Transactions are totally ordered by id. A PUT that would follow, in a
// key's version list, a version created by a higher-id transaction is
// anachronistic and aborts immediately. A GET or PUT that observes a version
// created by a still-PENDING transaction registers a dependency: the
// observing transaction cannot commit until the observed one is terminal,
// and it cascades to ABORTED if the observed one aborts.
//
// Every exported type here is safe for concurrent use by multiple
// goroutines, matching the one-thread-per-connection model of the service
// layer that calls into it.
package mvcc
