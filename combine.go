package lino

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/xerrors"
)

// result is the outcome of an accept performed by one of the inner acceptors
// of a combined acceptor.
type result struct {
	stream Stream
	err    error
}

// CombinedListener is a listener that fans in the streams of several
// listeners.
//
// - implements lino.Listener
type CombinedListener struct {
	listeners []Listener
}

// Combine returns a listener that activates all the given listeners and
// accepts the streams of every one of them.
func Combine(listeners ...Listener) *CombinedListener {
	return &CombinedListener{
		listeners: listeners,
	}
}

// Listen implements lino.Listener. It activates the inner listeners one by
// one and returns an acceptor racing their accepts. If one of them fails to
// bind, the ones already activated are closed.
func (l *CombinedListener) Listen(ctx context.Context) (Acceptor, error) {
	acceptors := make([]Acceptor, 0, len(l.listeners))

	for _, inner := range l.listeners {
		acceptor, err := inner.Listen(ctx)
		if err != nil {
			for _, prev := range acceptors {
				prev.Close()
			}

			return nil, xerrors.Errorf("couldn't activate listener: %v", err)
		}

		acceptors = append(acceptors, acceptor)
	}

	acceptor := &combinedAcceptor{
		acceptors: acceptors,
		results:   make(chan result),
		closing:   make(chan struct{}),
		drained:   make(chan struct{}),
	}

	for _, inner := range acceptors {
		acceptor.wg.Add(1)

		go acceptor.pump(inner)
	}

	go func() {
		acceptor.wg.Wait()
		close(acceptor.drained)
	}()

	return acceptor, nil
}

// combinedAcceptor drives the inner acceptors with one goroutine each and
// delivers whichever stream arrives first.
//
// - implements lino.Acceptor
type combinedAcceptor struct {
	acceptors []Acceptor
	results   chan result
	closing   chan struct{}
	drained   chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// Addrs implements lino.Acceptor. It returns the addresses of every inner
// acceptor.
func (a *combinedAcceptor) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(a.acceptors))
	for _, inner := range a.acceptors {
		addrs = append(addrs, inner.Addrs()...)
	}

	return addrs
}

// Accept implements lino.Acceptor. It returns the next stream accepted by any
// of the inner acceptors. A transient error of an inner acceptor is reported
// once to the caller, and the acceptors keep serving. When every inner
// acceptor is done, accept fails with ErrExhausted.
func (a *combinedAcceptor) Accept(ctx context.Context) (Stream, error) {
	select {
	case <-a.closing:
		return Stream{}, ErrClosed
	default:
	}

	select {
	case res := <-a.results:
		return res.stream, res.err
	case <-a.drained:
		return Stream{}, ErrExhausted
	case <-a.closing:
		return Stream{}, ErrClosed
	case <-ctx.Done():
		return Stream{}, ctx.Err()
	}
}

// Close implements lino.Acceptor. It closes every inner acceptor and waits
// for their goroutines to land.
func (a *combinedAcceptor) Close() error {
	a.once.Do(func() {
		close(a.closing)
	})

	var err error
	for _, inner := range a.acceptors {
		closeErr := inner.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}

	a.wg.Wait()

	if err != nil {
		return xerrors.Errorf("couldn't close acceptor: %v", err)
	}

	return nil
}

func (a *combinedAcceptor) pump(inner Acceptor) {
	defer a.wg.Done()

	for {
		stream, err := inner.Accept(context.Background())

		// A terminal error means this acceptor cannot produce anything
		// anymore. The combined acceptor is exhausted once every one of them
		// is, so the error itself carries no information for the caller.
		if errors.Is(err, ErrClosed) || errors.Is(err, ErrExhausted) {
			return
		}

		select {
		case a.results <- result{stream: stream, err: err}:
		case <-a.closing:
			if err == nil {
				stream.Conn.Close()
			}

			return
		}
	}
}
