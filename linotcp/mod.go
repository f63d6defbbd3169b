// Package linotcp is an implementation of the listener abstraction on top of
// TCP.
//
// The accepted streams are plain, security layers are expected to be stacked
// on top by wrapping the listener. The transport can cap the number of
// simultaneous connections and pace the accepts to protect the host.
package linotcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.dedis.ch/lino"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"
	"golang.org/x/xerrors"
)

// template holds the settings of a listener while it is being created.
type template struct {
	keepAlive time.Duration
	maxConns  int
	limiter   *rate.Limiter
}

// Option is the type to tweak the transport at creation of the listener.
type Option func(*template)

// WithKeepAlive sets the keep-alive period of the accepted connections. A
// negative period disables the probes.
func WithKeepAlive(period time.Duration) Option {
	return func(tmpl *template) {
		tmpl.keepAlive = period
	}
}

// WithConnLimit caps the number of connections served at the same time. The
// endpoint stops accepting when the cap is reached, until one of the accepted
// connections is closed.
func WithConnLimit(n int) Option {
	return func(tmpl *template) {
		tmpl.maxConns = n
	}
}

// WithAcceptRate paces the accepts to the given rate.
func WithAcceptRate(limit rate.Limit, burst int) Option {
	return func(tmpl *template) {
		tmpl.limiter = rate.NewLimiter(limit, burst)
	}
}

// Listener opens a TCP endpoint.
//
// - implements lino.Listener
type Listener struct {
	addr string
	tmpl template
}

// NewListener returns a listener that will bind the given TCP address.
func NewListener(addr string, opts ...Option) *Listener {
	tmpl := template{}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Listener{
		addr: addr,
		tmpl: tmpl,
	}
}

// Listen implements lino.Listener. It binds the TCP address and returns the
// acceptor for it.
func (l *Listener) Listen(ctx context.Context) (lino.Acceptor, error) {
	lc := net.ListenConfig{
		KeepAlive: l.tmpl.keepAlive,
	}

	listener, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return nil, xerrors.Errorf("couldn't bind '%s': %v", l.addr, err)
	}

	if l.tmpl.maxConns > 0 {
		listener = netutil.LimitListener(listener, l.tmpl.maxConns)
	}

	return newAcceptor(listener, l.tmpl.limiter), nil
}

// result is the outcome of an accept on the endpoint.
type result struct {
	conn net.Conn
	err  error
}

// Acceptor yields the connections accepted on the TCP endpoint.
//
// - implements lino.Acceptor
type Acceptor struct {
	listener net.Listener
	limiter  *rate.Limiter
	results  chan result
	closing  chan struct{}
	drained  chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func newAcceptor(listener net.Listener, limiter *rate.Limiter) *Acceptor {
	acceptor := &Acceptor{
		listener: listener,
		limiter:  limiter,
		results:  make(chan result),
		closing:  make(chan struct{}),
		drained:  make(chan struct{}),
	}

	acceptor.wg.Add(1)

	go acceptor.pump()

	return acceptor
}

// Addrs implements lino.Acceptor. It returns the address the endpoint is
// bound to.
func (a *Acceptor) Addrs() []net.Addr {
	return []net.Addr{a.listener.Addr()}
}

// Accept implements lino.Acceptor. It returns the next connection accepted,
// wrapped in a plain stream.
func (a *Acceptor) Accept(ctx context.Context) (lino.Stream, error) {
	select {
	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed
	default:
	}

	if a.limiter != nil {
		err := a.limiter.Wait(ctx)
		if err != nil {
			return lino.Stream{}, xerrors.Errorf("accept paced out: %v", err)
		}
	}

	select {
	case res := <-a.results:
		if res.err != nil {
			if errors.Is(res.err, net.ErrClosed) {
				return lino.Stream{}, lino.ErrClosed
			}

			return lino.Stream{}, xerrors.Errorf("couldn't accept: %v", res.err)
		}

		stream := lino.Stream{
			Conn:   res.conn,
			Local:  res.conn.LocalAddr(),
			Remote: res.conn.RemoteAddr(),
			Scheme: lino.Plain,
		}

		return stream, nil

	case <-a.drained:
		return lino.Stream{}, lino.ErrExhausted

	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed

	case <-ctx.Done():
		return lino.Stream{}, ctx.Err()
	}
}

// Close implements lino.Acceptor. It stops the endpoint. Connections already
// accepted are not affected.
func (a *Acceptor) Close() error {
	var err error

	a.once.Do(func() {
		close(a.closing)

		err = a.listener.Close()
	})

	a.wg.Wait()

	if err != nil {
		return xerrors.Errorf("couldn't close listener: %v", err)
	}

	return nil
}

func (a *Acceptor) pump() {
	defer a.wg.Done()
	defer close(a.drained)

	for {
		conn, err := a.listener.Accept()

		select {
		case a.results <- result{conn: conn, err: err}:
		case <-a.closing:
			if err == nil {
				conn.Close()
			}

			return
		}

		if err != nil && errors.Is(err, net.ErrClosed) {
			return
		}
	}
}
