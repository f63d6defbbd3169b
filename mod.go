// Package lino provides an abstraction for stream listeners. It offers a
// LIstener Network Overlay (LINO) to accept incoming byte streams
// independently of the transport, and to compose security layers on top of
// them.
//
// A transport implements the Listener interface and binds its endpoint when
// activated, returning an Acceptor that yields the incoming streams together
// with their addressing metadata. A security layer is itself a listener that
// wraps an inner one, so that for instance TLS termination can be stacked on
// top of TCP, of a Unix socket, or of both combined, without the upper layer
// knowing which transport carries the bytes.
package lino

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// ErrClosed is returned by accept calls after the acceptor has been closed.
var ErrClosed = xerrors.New("acceptor is closed")

// ErrExhausted is returned by accept calls when no stream can ever be
// accepted again, for instance when the endpoint died out from under the
// acceptor.
var ErrExhausted = xerrors.New("acceptor is exhausted")

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

func init() {
	lvl := os.Getenv(EnvLogLevel)

	var level zerolog.Level

	switch lvl {
	case "error":
		level = zerolog.ErrorLevel
	case "warn":
		level = zerolog.WarnLevel
	case "info":
		level = zerolog.InfoLevel
	case "debug":
		level = zerolog.DebugLevel
	case "trace":
		level = zerolog.TraceLevel
	case "":
		level = defaultLevel
	default:
		level = zerolog.TraceLevel
	}

	Logger = Logger.Level(level)
}

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default, it only prints
// message of the info level or above, but the level can be changed through the
// environment.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(defaultLevel)

// PromCollectors exposes the prometheus collectors created in the module. An
// application can register them to its own registry.
var PromCollectors []prometheus.Collector

// Scheme identifies the outermost layer a stream went through before being
// accepted.
type Scheme string

const (
	// Plain is the scheme of streams accepted without a security layer.
	Plain Scheme = "plain"

	// Secure is the scheme of streams protected by a security layer.
	Secure Scheme = "secure"
)

// Stream is an accepted connection alongside its addressing metadata.
type Stream struct {
	// Conn is the connection to read from and write to.
	Conn net.Conn

	// Local is the address of the endpoint that accepted the stream.
	Local net.Addr

	// Remote is the address of the distant endpoint.
	Remote net.Addr

	// Scheme indicates which layer produced the stream.
	Scheme Scheme
}

// Acceptor is an interface to provide primitives to accept incoming streams
// from an activated endpoint.
type Acceptor interface {
	// Addrs returns the addresses the acceptor can be reached at. An acceptor
	// assembled from multiple endpoints reports all of them.
	Addrs() []net.Addr

	// Accept returns the next incoming stream. It blocks until a stream is
	// available, the context is done, or the acceptor is closed.
	Accept(ctx context.Context) (Stream, error)

	// Close releases the resources of the acceptor. It can safely be called
	// more than once. Streams already accepted are not affected.
	Close() error
}

// Listener is an interface to provide the primitive to activate a transport
// endpoint. A listener is activated at most once, the acceptor owns the
// resources afterwards.
type Listener interface {
	// Listen binds the endpoint and returns the acceptor for it.
	Listen(ctx context.Context) (Acceptor, error)
}
