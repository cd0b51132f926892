package service

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"xacto/internal/protocol"
	"xacto/pkg/mvcc"
)

func dialPipe(t *testing.T) (client net.Conn, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func putKeyValue(t *testing.T, conn net.Conn, key, value string) protocol.Status {
	t.Helper()
	require.NoError(t, protocol.WritePacket(conn, protocol.Put, protocol.OK, false, nil))
	require.NoError(t, protocol.WritePacket(conn, protocol.Key, protocol.OK, false, []byte(key)))
	require.NoError(t, protocol.WritePacket(conn, protocol.Value, protocol.OK, false, []byte(value)))

	h, _, err := protocol.ReadPacket(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.Reply, h.Type)
	return h.Status
}

func getKey(t *testing.T, conn net.Conn, key string) (protocol.Status, []byte, bool) {
	t.Helper()
	require.NoError(t, protocol.WritePacket(conn, protocol.Get, protocol.OK, false, nil))
	require.NoError(t, protocol.WritePacket(conn, protocol.Key, protocol.OK, false, []byte(key)))

	replyHeader, _, err := protocol.ReadPacket(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.Reply, replyHeader.Type)
	if replyHeader.Status == protocol.Aborted {
		return replyHeader.Status, nil, false
	}

	dataHeader, data, err := protocol.ReadPacket(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.Data, dataHeader.Type)
	return replyHeader.Status, data, dataHeader.Null
}

func commit(t *testing.T, conn net.Conn) protocol.Status {
	t.Helper()
	require.NoError(t, protocol.WritePacket(conn, protocol.Commit, protocol.OK, false, nil))

	h, _, err := protocol.ReadPacket(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.Reply, h.Type)
	return h.Status
}

func TestDispatchPutGetCommit(t *testing.T) {
	store := mvcc.NewStore(mvcc.NewTransactionManager())
	client, server := dialPipe(t)

	done := make(chan struct{})
	go func() {
		Dispatch(server, store, zerolog.Nop())
		close(done)
	}()

	require.Equal(t, protocol.OK, putKeyValue(t, client, "k", "v1"))

	status, data, null := getKey(t, client, "k")
	require.Equal(t, protocol.OK, status)
	require.False(t, null)
	require.Equal(t, "v1", string(data))

	require.Equal(t, protocol.Committed, commit(t, client))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not return after COMMIT")
	}
}

func TestDispatchGetOnMissingKeyReturnsNull(t *testing.T) {
	store := mvcc.NewStore(mvcc.NewTransactionManager())
	client, server := dialPipe(t)

	go Dispatch(server, store, zerolog.Nop())

	status, data, null := getKey(t, client, "absent")
	require.Equal(t, protocol.OK, status)
	require.True(t, null)
	require.Empty(t, data)

	require.Equal(t, protocol.Committed, commit(t, client))
}

func TestDispatchAnachronisticWriteAbortsAndCloses(t *testing.T) {
	store := mvcc.NewStore(mvcc.NewTransactionManager())

	// Connection A is dialed first so its transaction is assigned the lower
	// id, but it holds off writing until connection B, assigned the higher
	// id, has already committed a write on the same key.
	clientA, serverA := dialPipe(t)
	go Dispatch(serverA, store, zerolog.Nop())
	time.Sleep(10 * time.Millisecond) // let A's Begin() run before B's

	clientB, serverB := dialPipe(t)
	go Dispatch(serverB, store, zerolog.Nop())
	require.Equal(t, protocol.OK, putKeyValue(t, clientB, "race", "from-b"))
	require.Equal(t, protocol.Committed, commit(t, clientB))

	require.Equal(t, protocol.Aborted, putKeyValue(t, clientA, "race", "from-a"))

	_, _, err := protocol.ReadPacket(clientA)
	require.ErrorIs(t, err, io.EOF)
}

func TestDispatchProtocolErrorAbortsPendingTransaction(t *testing.T) {
	store := mvcc.NewStore(mvcc.NewTransactionManager())
	client, server := dialPipe(t)

	done := make(chan struct{})
	go func() {
		Dispatch(server, store, zerolog.Nop())
		close(done)
	}()

	// Closing the client without ever sending COMMIT simulates a dropped
	// connection; the service loop should see EOF and abort cleanly.
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not return after client disconnect")
	}
	require.Equal(t, 0, store.ActiveTransactions())
}
