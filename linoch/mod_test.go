package linoch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/lino"
)

func TestManager_Dial(t *testing.T) {
	manager := NewManager()

	_, err := manager.Dial("A")
	require.EqualError(t, err, "endpoint 'A' not found")

	acceptor, err := NewListener(manager, "A").Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	conn, err := manager.Dial("A")
	require.NoError(t, err)

	defer conn.Close()
}

func TestListener_Listen(t *testing.T) {
	manager := NewManager()

	acceptor, err := NewListener(manager, "A").Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	require.Len(t, acceptor.Addrs(), 1)
	require.Equal(t, "A", acceptor.Addrs()[0].String())
	require.Equal(t, "ch", acceptor.Addrs()[0].Network())

	_, err = NewListener(manager, "A").Listen(context.Background())
	require.EqualError(t, err, "manager refused: identifier already exists")

	_, err = NewListener(manager, "").Listen(context.Background())
	require.EqualError(t, err, "manager refused: identifier must not be empty")
}

func TestAcceptor_Accept(t *testing.T) {
	manager := NewManager()

	acceptor, err := NewListener(manager, "A").Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	conn, err := manager.Dial("A")
	require.NoError(t, err)

	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := acceptor.Accept(ctx)
	require.NoError(t, err)

	defer stream.Conn.Close()

	require.Equal(t, lino.Plain, stream.Scheme)
	require.Equal(t, "A", stream.Local.String())

	// The pipe is synchronous so the write must happen alongside the read.
	go func() {
		conn.Write([]byte("ping"))
	}()

	buffer := make([]byte, 4)
	_, err = io.ReadFull(stream.Conn, buffer)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buffer))
}

func TestAcceptor_Accept_contextDone(t *testing.T) {
	manager := NewManager()

	acceptor, err := NewListener(manager, "A").Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = acceptor.Accept(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcceptor_Close(t *testing.T) {
	manager := NewManager()

	acceptor, err := NewListener(manager, "A").Listen(context.Background())
	require.NoError(t, err)

	// A connection dialed but never accepted is released by the closing.
	conn, err := manager.Dial("A")
	require.NoError(t, err)

	require.NoError(t, acceptor.Close())
	require.NoError(t, acceptor.Close())

	_, err = acceptor.Accept(context.Background())
	require.ErrorIs(t, err, lino.ErrClosed)

	_, err = manager.Dial("A")
	require.EqualError(t, err, "endpoint 'A' not found")

	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
