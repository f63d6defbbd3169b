package linotcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/lino"
	"golang.org/x/time/rate"
)

func TestListener_Listen(t *testing.T) {
	listener := NewListener("127.0.0.1:0")

	acceptor, err := listener.Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	addrs := acceptor.Addrs()
	require.Len(t, addrs, 1)
	require.NotEqual(t, 0, addrs[0].(*net.TCPAddr).Port)
}

func TestListener_Listen_badAddress(t *testing.T) {
	listener := NewListener("127.0.0.1:-80")

	_, err := listener.Listen(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't bind")
}

func TestAcceptor_Accept(t *testing.T) {
	listener := NewListener("127.0.0.1:0",
		WithKeepAlive(30*time.Second),
		WithConnLimit(8),
		WithAcceptRate(rate.Limit(100), 8),
	)

	acceptor, err := listener.Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	addr := acceptor.Addrs()[0].String()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := acceptor.Accept(ctx)
	require.NoError(t, err)

	defer stream.Conn.Close()

	require.Equal(t, lino.Plain, stream.Scheme)
	require.Equal(t, addr, stream.Local.String())
	require.Equal(t, conn.LocalAddr().String(), stream.Remote.String())

	_, err = conn.Write([]byte{0xde, 0xad})
	require.NoError(t, err)

	buffer := make([]byte, 2)
	_, err = io.ReadFull(stream.Conn, buffer)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, buffer)
}

func TestAcceptor_Accept_contextDone(t *testing.T) {
	listener := NewListener("127.0.0.1:0")

	acceptor, err := listener.Listen(context.Background())
	require.NoError(t, err)

	defer acceptor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = acceptor.Accept(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcceptor_Close(t *testing.T) {
	listener := NewListener("127.0.0.1:0")

	acceptor, err := listener.Listen(context.Background())
	require.NoError(t, err)

	require.NoError(t, acceptor.Close())
	require.NoError(t, acceptor.Close())

	_, err = acceptor.Accept(context.Background())
	require.ErrorIs(t, err, lino.ErrClosed)
}
