// Package service implements the per-connection request loop: it binds one
// mvcc.Transaction to a net.Conn for the connection's lifetime and
// translates wire packets into store operations and their replies.
package service

import (
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"

	"xacto/internal/metrics"
	"xacto/internal/protocol"
	"xacto/internal/xlog"
	"xacto/pkg/mvcc"
)

// Dispatch services conn until it observes an error, a client-issued
// COMMIT, or an ABORTED reply, and then closes conn. A single transaction,
// created via store.Begin(), is bound to the connection for its whole
// lifetime. If the loop exits with the transaction still PENDING (a
// protocol error or premature EOF), that transaction is aborted before
// returning, per the store's "protocol error" handling rule.
func Dispatch(conn net.Conn, store *mvcc.Store, logger zerolog.Logger) {
	defer conn.Close()

	tx := store.Begin()
	logger = xlog.WithTxn(logger, tx.ID())
	logger.Debug().Msg("transaction started")
	metrics.TransactionsActive.Set(float64(store.ActiveTransactions()))

	defer func() {
		if tx.Status() == mvcc.Pending {
			tx.Abort()
			logger.Debug().Msg("aborting transaction on connection teardown")
		}
		metrics.TransactionsActive.Set(float64(store.ActiveTransactions()))
	}()

	for {
		header, _, err := protocol.ReadPacket(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Warn().Err(err).Msg("error reading request")
			}
			return
		}

		switch header.Type {
		case protocol.Put:
			if !handlePut(conn, tx, store, logger) {
				return
			}
		case protocol.Get:
			if !handleGet(conn, tx, store, logger) {
				return
			}
		case protocol.Commit:
			handleCommit(conn, tx, store, logger)
			return
		default:
			logger.Warn().Stringer("type", header.Type).Msg("unexpected packet type")
			return
		}
	}
}

// handlePut expects the PUT header to already have been consumed; it reads
// the KEY and VALUE frames that follow, applies the write, and replies.
func handlePut(conn net.Conn, tx *mvcc.Transaction, store *mvcc.Store, logger zerolog.Logger) bool {
	timer := metrics.NewTimer("put")
	defer timer.Observe()

	keyHeader, keyBytes, err := protocol.ReadPacket(conn)
	if err != nil || keyHeader.Type != protocol.Key {
		logger.Warn().Err(err).Msg("expected KEY frame after PUT")
		return false
	}

	valHeader, valBytes, err := protocol.ReadPacket(conn)
	if err != nil || valHeader.Type != protocol.Value {
		logger.Warn().Err(err).Msg("expected VALUE frame after KEY")
		return false
	}

	key := mvcc.NewKey(mvcc.NewBlob(keyBytes))
	var value *mvcc.Blob
	if !valHeader.Null {
		value = mvcc.NewBlob(valBytes)
	}

	status := store.Put(tx, key, value)
	replyStatus := statusToWire(status)
	metrics.OperationsTotal.WithLabelValues("put", replyStatus.String()).Inc()

	if err := protocol.WritePacket(conn, protocol.Reply, replyStatus, false, nil); err != nil {
		logger.Warn().Err(err).Msg("error writing PUT reply")
		return false
	}
	return status != mvcc.Aborted
}

// handleGet expects the GET header to already have been consumed; it reads
// the KEY frame, performs the read, and replies with a REPLY followed by a
// DATA frame.
func handleGet(conn net.Conn, tx *mvcc.Transaction, store *mvcc.Store, logger zerolog.Logger) bool {
	timer := metrics.NewTimer("get")
	defer timer.Observe()

	keyHeader, keyBytes, err := protocol.ReadPacket(conn)
	if err != nil || keyHeader.Type != protocol.Key {
		logger.Warn().Err(err).Msg("expected KEY frame after GET")
		return false
	}

	key := mvcc.NewKey(mvcc.NewBlob(keyBytes))
	value, status := store.Get(tx, key)
	defer value.Unref() // release the reference store.Get returned to us, once we're done reading it

	replyStatus := statusToWire(status)
	metrics.OperationsTotal.WithLabelValues("get", replyStatus.String()).Inc()

	if err := protocol.WritePacket(conn, protocol.Reply, replyStatus, false, nil); err != nil {
		logger.Warn().Err(err).Msg("error writing GET reply")
		return false
	}
	if status == mvcc.Aborted {
		return false
	}

	var payload []byte
	null := value == nil
	if !null {
		payload = value.Bytes()
	}
	if err := protocol.WritePacket(conn, protocol.Data, protocol.OK, null, payload); err != nil {
		logger.Warn().Err(err).Msg("error writing DATA frame")
		return false
	}
	return true
}

// handleCommit commits tx and writes the terminal REPLY. The caller always
// closes the connection after this, win or lose.
func handleCommit(conn net.Conn, tx *mvcc.Transaction, store *mvcc.Store, logger zerolog.Logger) {
	timer := metrics.NewTimer("commit")
	defer timer.Observe()

	status := tx.Commit()
	metrics.TransactionsActive.Set(float64(store.ActiveTransactions()))
	replyStatus := statusToWire(status)
	metrics.OperationsTotal.WithLabelValues("commit", replyStatus.String()).Inc()
	if status == mvcc.Committed {
		metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	} else {
		metrics.TransactionsTotal.WithLabelValues("aborted").Inc()
	}

	if err := protocol.WritePacket(conn, protocol.Reply, replyStatus, false, nil); err != nil {
		logger.Warn().Err(err).Msg("error writing COMMIT reply")
	}
}

func statusToWire(status mvcc.Status) protocol.Status {
	switch status {
	case mvcc.Committed:
		return protocol.Committed
	case mvcc.Aborted:
		return protocol.Aborted
	default:
		return protocol.OK
	}
}
