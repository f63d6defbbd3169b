// Package fake provides fake implementations for interfaces commonly used in
// the repository.
// The implementations offer configuration to return errors when it is needed
// by the unit test and it is also possible to record the call of functions of
// an object in some cases.
package fake

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"go.dedis.ch/lino"
	"golang.org/x/xerrors"
)

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	if c == nil {
		return
	}

	c.Lock()
	defer c.Unlock()

	c.calls = append(c.calls, args)
}

// Address is a fake implementation of a network address.
//
// - implements net.Addr
type Address struct {
	index int
}

// NewAddress returns a fake address with the given index.
func NewAddress(index int) Address {
	return Address{index: index}
}

// Network implements net.Addr. It returns the name of the fake network.
func (a Address) Network() string {
	return "fake"
}

// String implements fmt.Stringer. It returns a string representation of the
// address.
func (a Address) String() string {
	return fmt.Sprintf("fake:%d", a.index)
}

// Conn is a fake implementation of a network connection. It records its
// closings so that a test can assert the connection has been released.
//
// - implements net.Conn
type Conn struct {
	net.Conn

	Calls *Call

	err error
}

// NewConn returns a new fake connection.
func NewConn() *Conn {
	return &Conn{
		Calls: &Call{},
	}
}

// NewBadConn returns a fake connection that only returns errors.
func NewBadConn() *Conn {
	return &Conn{
		Calls: &Call{},
		err:   xerrors.New("fake error"),
	}
}

// Read implements io.Reader. It returns EOF right away.
func (c *Conn) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	return 0, io.EOF
}

// Write implements io.Writer. It accepts the bytes without writing them
// anywhere.
func (c *Conn) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}

	return len(p), nil
}

// Close implements io.Closer. It records the call.
func (c *Conn) Close() error {
	c.Calls.Add("close")

	return c.err
}

// LocalAddr implements net.Conn.
func (c *Conn) LocalAddr() net.Addr {
	return NewAddress(0)
}

// RemoteAddr implements net.Conn.
func (c *Conn) RemoteAddr() net.Addr {
	return NewAddress(1)
}

// Acceptor is a fake implementation of an acceptor that yields the streams
// queued beforehand.
//
// - implements lino.Acceptor
type Acceptor struct {
	Calls *Call

	streams chan lino.Stream
	err     error
	closing chan struct{}
	once    sync.Once
}

// NewAcceptor returns a fake acceptor that yields the given streams.
func NewAcceptor(streams ...lino.Stream) *Acceptor {
	ch := make(chan lino.Stream, 32)
	for _, stream := range streams {
		ch <- stream
	}

	return &Acceptor{
		Calls:   &Call{},
		streams: ch,
		closing: make(chan struct{}),
	}
}

// NewBadAcceptor returns a fake acceptor that always fails to accept.
func NewBadAcceptor() *Acceptor {
	acceptor := NewAcceptor()
	acceptor.err = xerrors.New("fake error")

	return acceptor
}

// NewExhaustedAcceptor returns a fake acceptor that is already exhausted.
func NewExhaustedAcceptor() *Acceptor {
	acceptor := NewAcceptor()
	acceptor.err = lino.ErrExhausted

	return acceptor
}

// Push queues a stream to be returned by a later accept.
func (a *Acceptor) Push(stream lino.Stream) {
	a.streams <- stream
}

// PushConn queues a plain stream wrapping the given connection.
func (a *Acceptor) PushConn(conn net.Conn) {
	a.Push(lino.Stream{
		Conn:   conn,
		Local:  NewAddress(0),
		Remote: NewAddress(1),
		Scheme: lino.Plain,
	})
}

// Addrs implements lino.Acceptor.
func (a *Acceptor) Addrs() []net.Addr {
	return []net.Addr{NewAddress(0)}
}

// Accept implements lino.Acceptor. It returns the next queued stream, or the
// error the acceptor is configured with.
func (a *Acceptor) Accept(ctx context.Context) (lino.Stream, error) {
	a.Calls.Add("accept")

	if a.err != nil {
		return lino.Stream{}, a.err
	}

	select {
	case stream := <-a.streams:
		return stream, nil
	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed
	case <-ctx.Done():
		return lino.Stream{}, ctx.Err()
	}
}

// Close implements lino.Acceptor. It records the call and unblocks the
// pending accepts.
func (a *Acceptor) Close() error {
	a.Calls.Add("close")

	a.once.Do(func() {
		close(a.closing)
	})

	return nil
}

// Listener is a fake implementation of a listener.
//
// - implements lino.Listener
type Listener struct {
	acceptor *Acceptor
	err      error
}

// NewListener returns a fake listener that activates into the given acceptor.
func NewListener(acceptor *Acceptor) Listener {
	return Listener{acceptor: acceptor}
}

// NewBadListener returns a fake listener that fails to activate.
func NewBadListener() Listener {
	return Listener{err: xerrors.New("fake error")}
}

// Listen implements lino.Listener. It returns the acceptor, or the error the
// listener is configured with.
func (l Listener) Listen(ctx context.Context) (lino.Acceptor, error) {
	if l.err != nil {
		return nil, l.err
	}

	return l.acceptor, nil
}
