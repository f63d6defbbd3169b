// Package linounix is an implementation of the listener abstraction on top of
// Unix domain sockets.
//
// Access control of the endpoint is the one of the file system: the folder of
// the socket is created with mode 0700 when missing, and the mode of the
// socket file can be tuned with an option. The socket file is removed when the
// acceptor is closed.
package linounix

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.dedis.ch/lino"
	"golang.org/x/xerrors"
)

// template holds the settings of a listener while it is being created.
type template struct {
	mode fs.FileMode
}

// Option is the type to tweak the transport at creation of the listener.
type Option func(*template)

// WithSocketMode sets the permissions of the socket file once bound.
func WithSocketMode(mode fs.FileMode) Option {
	return func(tmpl *template) {
		tmpl.mode = mode
	}
}

// Listener opens a Unix domain socket endpoint.
//
// - implements lino.Listener
type Listener struct {
	path string
	tmpl template
}

// NewListener returns a listener that will bind the socket at the given path.
func NewListener(path string, opts ...Option) *Listener {
	tmpl := template{}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Listener{
		path: path,
		tmpl: tmpl,
	}
}

// Listen implements lino.Listener. It binds the socket and returns the
// acceptor for it.
func (l *Listener) Listen(ctx context.Context) (lino.Acceptor, error) {
	err := os.MkdirAll(filepath.Dir(l.path), 0700)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create socket folder: %v", err)
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "unix", l.path)
	if err != nil {
		return nil, xerrors.Errorf("couldn't bind socket: %v", err)
	}

	if l.tmpl.mode != 0 {
		err = os.Chmod(l.path, l.tmpl.mode)
		if err != nil {
			listener.Close()

			return nil, xerrors.Errorf("couldn't set socket mode: %v", err)
		}
	}

	return newAcceptor(listener), nil
}

// result is the outcome of an accept on the endpoint.
type result struct {
	conn net.Conn
	err  error
}

// Acceptor yields the connections accepted on the socket.
//
// - implements lino.Acceptor
type Acceptor struct {
	listener net.Listener
	results  chan result
	closing  chan struct{}
	drained  chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func newAcceptor(listener net.Listener) *Acceptor {
	acceptor := &Acceptor{
		listener: listener,
		results:  make(chan result),
		closing:  make(chan struct{}),
		drained:  make(chan struct{}),
	}

	acceptor.wg.Add(1)

	go acceptor.pump()

	return acceptor
}

// Addrs implements lino.Acceptor. It returns the address of the socket.
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

// Close implements lino.Acceptor. It stops the endpoint and removes the
// socket file. Connections already accepted are not affected.
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
