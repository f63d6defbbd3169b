// Package linoch is an implementation of the listener abstraction that is
// using channels and a local manager to route the connections.
//
// Because it is using only Go channels and in-memory pipes, this
// implementation can only be used by multiple instances in the same process.
// Its usage is purely to simplify the writing of tests.
package linoch

import (
	"context"
	"net"
	"sync"

	"go.dedis.ch/lino"
	"golang.org/x/xerrors"
)

// address is the name of an endpoint inside a manager.
//
// - implements net.Addr
type address struct {
	name string
}

// Network implements net.Addr. It returns the name of the channel network.
func (a address) Network() string {
	return "ch"
}

// String implements fmt.Stringer. It returns the name of the endpoint.
func (a address) String() string {
	return a.name
}

// Manager is an orchestrator to route the connections between the local
// endpoints.
type Manager struct {
	sync.Mutex
	endpoints map[string]*Acceptor
}

// NewManager creates a new empty manager.
func NewManager() *Manager {
	return &Manager{
		endpoints: make(map[string]*Acceptor),
	}
}

// Dial opens a connection to the named endpoint. The other half of the pipe
// is delivered to the acceptor of the endpoint.
func (m *Manager) Dial(name string) (net.Conn, error) {
	m.Lock()
	acceptor := m.endpoints[name]
	m.Unlock()

	if acceptor == nil {
		return nil, xerrors.Errorf("endpoint '%s' not found", name)
	}

	client, server := net.Pipe()

	select {
	case acceptor.conns <- server:
		return client, nil
	case <-acceptor.closing:
		client.Close()

		return nil, xerrors.Errorf("endpoint '%s' is closed", name)
	}
}

func (m *Manager) insert(acceptor *Acceptor) error {
	if acceptor.addr.name == "" {
		return xerrors.New("identifier must not be empty")
	}

	m.Lock()
	defer m.Unlock()

	if _, ok := m.endpoints[acceptor.addr.name]; ok {
		return xerrors.New("identifier already exists")
	}

	m.endpoints[acceptor.addr.name] = acceptor

	return nil
}

func (m *Manager) remove(name string) {
	m.Lock()
	defer m.Unlock()

	delete(m.endpoints, name)
}

// Listener registers an endpoint in a manager.
//
// - implements lino.Listener
type Listener struct {
	manager *Manager
	name    string
}

// NewListener returns a listener that will register the named endpoint in the
// manager.
func NewListener(manager *Manager, name string) *Listener {
	return &Listener{
		manager: manager,
		name:    name,
	}
}

// Listen implements lino.Listener. It registers the endpoint so that
// connections can be dialed to it.
func (l *Listener) Listen(ctx context.Context) (lino.Acceptor, error) {
	acceptor := &Acceptor{
		manager: l.manager,
		addr:    address{name: l.name},
		conns:   make(chan net.Conn, 8),
		closing: make(chan struct{}),
	}

	err := l.manager.insert(acceptor)
	if err != nil {
		return nil, xerrors.Errorf("manager refused: %v", err)
	}

	return acceptor, nil
}

// Acceptor yields the connections dialed to the endpoint.
//
// - implements lino.Acceptor
type Acceptor struct {
	manager *Manager
	addr    address
	conns   chan net.Conn
	closing chan struct{}
	once    sync.Once
}

// Addrs implements lino.Acceptor. It returns the name of the endpoint.
func (a *Acceptor) Addrs() []net.Addr {
	return []net.Addr{a.addr}
}

// Accept implements lino.Acceptor. It returns the next connection dialed to
// the endpoint, wrapped in a plain stream.
func (a *Acceptor) Accept(ctx context.Context) (lino.Stream, error) {
	select {
	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed
	default:
	}

	select {
	case conn := <-a.conns:
		stream := lino.Stream{
			Conn:   conn,
			Local:  a.addr,
			Remote: conn.RemoteAddr(),
			Scheme: lino.Plain,
		}

		return stream, nil

	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed

	case <-ctx.Done():
		return lino.Stream{}, ctx.Err()
	}
}

// Close implements lino.Acceptor. It removes the endpoint from the manager so
// that dialing it fails, and releases the connections dialed but never
// accepted.
func (a *Acceptor) Close() error {
	a.once.Do(func() {
		a.manager.remove(a.addr.name)

		close(a.closing)

		for {
			select {
			case conn := <-a.conns:
				conn.Close()
			default:
				return
			}
		}
	})

	return nil
}
