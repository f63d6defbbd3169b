package linotls

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/lino"
	"golang.org/x/xerrors"
)

// template holds the settings of a listener while it is being created.
type template struct {
	logger zerolog.Logger
}

// Option is the type to tweak the listener at creation.
type Option func(*template)

// WithLogger makes the listener and its acceptor log through the given
// logger instead of the global one.
func WithLogger(logger zerolog.Logger) Option {
	return func(tmpl *template) {
		tmpl.logger = logger
	}
}

// Listener terminates TLS on the streams of an inner listener.
//
// - implements lino.Listener
type Listener struct {
	inner  lino.Listener
	feed   Feed
	logger zerolog.Logger
}

// NewListener returns a listener that activates the inner listener and
// negotiates TLS on every stream it accepts, following the configurations
// received on the feed.
func NewListener(inner lino.Listener, feed Feed, opts ...Option) *Listener {
	tmpl := template{
		logger: lino.Logger.With().Str("component", "linotls").Logger(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Listener{
		inner:  inner,
		feed:   feed,
		logger: tmpl.logger,
	}
}

// Listen implements lino.Listener. It activates the inner listener and
// returns the acceptor terminating TLS on its streams.
func (l *Listener) Listen(ctx context.Context) (lino.Acceptor, error) {
	inner, err := l.inner.Listen(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't activate inner listener: %v", err)
	}

	return newAcceptor(inner, l.feed, l.logger), nil
}

// result is the outcome of an accept performed by the inner acceptor.
type result struct {
	stream lino.Stream
	err    error
}

// Acceptor terminates TLS on the streams of an inner acceptor.
//
// An accepted stream carries its handshake in progress: the negotiation is
// driven by the first read or write of the stream, so a slow or broken
// client costs nothing to the acceptor itself, and a failed negotiation is
// scoped to that one connection.
//
// - implements lino.Acceptor
type Acceptor struct {
	inner   lino.Acceptor
	feed    Feed
	results chan result
	closing chan struct{}
	drained chan struct{}
	logger  zerolog.Logger
	current atomic.Pointer[tls.Config]
	once    sync.Once
	wg      sync.WaitGroup
}

func newAcceptor(inner lino.Acceptor, feed Feed, logger zerolog.Logger) *Acceptor {
	acceptor := &Acceptor{
		inner:   inner,
		feed:    feed,
		results: make(chan result),
		closing: make(chan struct{}),
		drained: make(chan struct{}),
		logger:  logger,
	}

	acceptor.wg.Add(1)

	go acceptor.pump()

	return acceptor
}

// Addrs implements lino.Acceptor. It returns the addresses of the inner
// acceptor.
func (a *Acceptor) Addrs() []net.Addr {
	return a.inner.Addrs()
}

// Accept implements lino.Acceptor. It waits for whichever comes first of a
// configuration pushed on the feed, or a stream accepted by the inner
// acceptor.
//
// A configuration resumes the wait: it is compiled and installed for the
// upcoming streams, while one that does not compile is logged and dropped,
// the active configuration keeps serving. A stream is wrapped and returned
// right away with the handshake left to the first read or write, using the
// configuration active at this very moment regardless of later changes. The
// streams arriving before the first configuration are closed and reported as
// failed accepts.
//
// Accept applies the configurations itself, so it is not meant to be called
// concurrently.
func (a *Acceptor) Accept(ctx context.Context) (lino.Stream, error) {
	select {
	case <-a.closing:
		return lino.Stream{}, lino.ErrClosed
	default:
	}

	for {
		select {
		case cfg, ok := <-a.feed:
			if !ok {
				// The feed is exhausted: the active configuration keeps
				// serving forever.
				a.feed = nil
				continue
			}

			a.apply(cfg)

		case res := <-a.results:
			return a.handle(res)

		case <-a.drained:
			return lino.Stream{}, lino.ErrExhausted

		case <-a.closing:
			return lino.Stream{}, lino.ErrClosed

		case <-ctx.Done():
			return lino.Stream{}, ctx.Err()
		}
	}
}

// Close implements lino.Acceptor. It closes the inner acceptor. Streams
// already accepted are not affected, their handshakes complete or fail on
// their own.
func (a *Acceptor) Close() error {
	a.once.Do(func() {
		close(a.closing)
	})

	err := a.inner.Close()

	a.wg.Wait()

	if err != nil {
		return xerrors.Errorf("couldn't close inner acceptor: %v", err)
	}

	return nil
}

// apply compiles the configuration and installs it for the upcoming streams.
// The streams already handed out keep the configuration they were accepted
// with.
func (a *Acceptor) apply(cfg *Config) {
	compiled, err := makeTLSConfig(cfg)
	if err != nil {
		promRejections.Inc()

		a.logger.Error().Err(err).Msg("invalid tls config")

		return
	}

	previous := a.current.Swap(compiled)

	promLoads.Inc()

	if previous == nil {
		a.logger.Info().Msg("tls config loaded")
	} else {
		a.logger.Info().Msg("tls config changed")
	}
}

// handle turns an inner result into a TLS stream.
func (a *Acceptor) handle(res result) (lino.Stream, error) {
	if res.err != nil {
		promFailures.Inc()

		return lino.Stream{}, xerrors.Errorf("couldn't accept: %w", res.err)
	}

	cfg := a.current.Load()
	if cfg == nil {
		res.stream.Conn.Close()

		promFailures.Inc()

		return lino.Stream{}, xerrors.New("no valid tls configuration")
	}

	stream := lino.Stream{
		Conn:   tls.Server(res.stream.Conn, cfg),
		Local:  res.stream.Local,
		Remote: res.stream.Remote,
		Scheme: lino.Secure,
	}

	promAccepts.Inc()

	a.logger.Debug().
		Str("connection", xid.New().String()).
		Stringer("remote", res.stream.Remote).
		Msg("tls stream accepted")

	return stream, nil
}

func (a *Acceptor) pump() {
	defer a.wg.Done()
	defer close(a.drained)

	for {
		stream, err := a.inner.Accept(context.Background())

		// A terminal error means the inner acceptor cannot produce anything
		// anymore, which the drained channel reports on its own.
		if errors.Is(err, lino.ErrClosed) || errors.Is(err, lino.ErrExhausted) {
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
