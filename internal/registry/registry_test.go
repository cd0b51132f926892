package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterUnregisterCount(t *testing.T) {
	r := New()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	id := r.Register(c1)
	require.Equal(t, 1, r.Count())

	r.Unregister(id)
	require.Equal(t, 0, r.Count())
}

func TestWaitForEmptyUnblocksWhenLastConnLeaves(t *testing.T) {
	r := New()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	id := r.Register(c1)

	done := make(chan error, 1)
	go func() {
		done <- r.WaitForEmpty(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("WaitForEmpty returned before the registry drained")
	case <-time.After(20 * time.Millisecond):
	}

	r.Unregister(id)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty never unblocked")
	}
}

func TestWaitForEmptyRespectsContext(t *testing.T) {
	r := New()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	r.Register(c1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.WaitForEmpty(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownAllClosesEveryConnection(t *testing.T) {
	r := New()
	c1, c2 := net.Pipe()
	defer c2.Close()
	r.Register(c1)

	r.ShutdownAll()

	buf := make([]byte, 1)
	_, err := c1.Read(buf)
	require.Error(t, err)
}
