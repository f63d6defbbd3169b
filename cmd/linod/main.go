// Package main implements a daemon that terminates TLS in front of a plain
// byte stream service, with the certificates hot-reloaded from a manifest on
// the disk.
//
//	linod start --listen :4433 --certs /etc/lino/manifest.yml
//
// Every setting can also be provided through the environment with the LINOD_
// prefix, the flags taking precedence:
//
//	LINOD_CERTS=/etc/lino/manifest.yml linod start
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.dedis.ch/lino"
	"go.dedis.ch/lino/linotcp"
	"go.dedis.ch/lino/linotls"
	"go.dedis.ch/lino/linotls/diskfeed"
	"go.dedis.ch/lino/linounix"
	"golang.org/x/xerrors"
)

// envPrefix is the prefix of the environment variables read by the daemon.
const envPrefix = "LINOD_"

const defaultListen = ":4433"

const defaultKeepAlive = 3 * time.Minute

func main() {
	app := makeApp()

	err := app.Run(os.Args)
	if err != nil {
		lino.Logger.Fatal().Msgf("%+v", err)
	}
}

func makeApp() *cli.App {
	return &cli.App{
		Name:  "linod",
		Usage: "TLS termination daemon",
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "start the daemon",
				Flags:  startFlags(),
				Action: start,
			},
		},
	}
}

func startFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "address of the TCP endpoint",
			Value: defaultListen,
		},
		&cli.StringFlag{
			Name:  "unix",
			Usage: "path of an additional unix socket endpoint",
		},
		&cli.StringFlag{
			Name:  "certs",
			Usage: "path to the certificate manifest",
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "address of the prometheus endpoint",
		},
		&cli.BoolFlag{
			Name:  "echo",
			Usage: "echo the bytes of the streams back instead of discarding them",
		},
	}
}

// settings is the resolved configuration of the daemon.
type settings struct {
	listen  string
	unix    string
	certs   string
	metrics string
	echo    bool
}

// resolveSettings builds the settings out of the flags and the environment.
// A flag explicitly set wins over the environment, which wins over the flag
// default.
func resolveSettings(ctx *cli.Context) (settings, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "_", ".")

		return s
	}), nil)
	if err != nil {
		return settings{}, xerrors.Errorf("couldn't load the environment: %v", err)
	}

	pick := func(name string) string {
		if !ctx.IsSet(name) && k.Exists(name) {
			return k.String(name)
		}

		return ctx.String(name)
	}

	cfg := settings{
		listen:  pick("listen"),
		unix:    pick("unix"),
		certs:   pick("certs"),
		metrics: pick("metrics"),
		echo:    ctx.Bool("echo"),
	}

	if !ctx.IsSet("echo") && k.Exists("echo") {
		cfg.echo = k.Bool("echo")
	}

	return cfg, nil
}

// start runs the daemon until SIGINT or SIGTERM.
func start(ctx *cli.Context) error {
	cfg, err := resolveSettings(ctx)
	if err != nil {
		return err
	}

	if cfg.certs == "" {
		return xerrors.New("a certificate manifest is required")
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()

	feed, err := diskfeed.Watch(runCtx, cfg.certs)
	if err != nil {
		return xerrors.Errorf("couldn't watch the manifest: %v", err)
	}

	var inner lino.Listener = linotcp.NewListener(
		cfg.listen,
		linotcp.WithKeepAlive(defaultKeepAlive),
	)

	if cfg.unix != "" {
		inner = lino.Combine(inner, linounix.NewListener(cfg.unix))
	}

	acceptor, err := linotls.NewListener(inner, feed).Listen(runCtx)
	if err != nil {
		return xerrors.Errorf("couldn't start the listener: %v", err)
	}

	defer acceptor.Close()

	for _, addr := range acceptor.Addrs() {
		lino.Logger.Info().Stringer("address", addr).Msg("listening")
	}

	if cfg.metrics != "" {
		srv := startMetrics(cfg.metrics)
		defer srv.Close()
	}

	go serve(runCtx, acceptor, cfg.echo)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	<-sigs

	lino.Logger.Trace().Msg("daemon has been stopped")

	return nil
}

// serve accepts the streams and serves each one in its own goroutine.
func serve(ctx context.Context, acceptor lino.Acceptor, echo bool) {
	for {
		stream, err := acceptor.Accept(ctx)
		if errors.Is(err, lino.ErrClosed) || errors.Is(err, lino.ErrExhausted) ||
			errors.Is(err, context.Canceled) {

			return
		}
		if err != nil {
			lino.Logger.Err(err).Msg("accept failed")

			continue
		}

		go handleStream(stream, echo)
	}
}

// handleStream reads the stream until it ends, which is also what drives the
// handshake. The bytes are echoed back when asked, discarded otherwise.
func handleStream(stream lino.Stream, echo bool) {
	defer stream.Conn.Close()

	var err error
	if echo {
		_, err = io.Copy(stream.Conn, stream.Conn)
	} else {
		_, err = io.Copy(io.Discard, stream.Conn)
	}

	if err != nil {
		lino.Logger.Debug().Err(err).Msg("stream ended")
	}
}

// startMetrics registers the collectors of the module and serves the
// prometheus handler.
func startMetrics(addr string) *http.Server {
	for _, c := range lino.PromCollectors {
		err := prometheus.DefaultRegisterer.Register(c)
		if err != nil {
			lino.Logger.Err(err).Msg("failed to register")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lino.Logger.Err(err).Msg("metrics server failed")
		}
	}()

	lino.Logger.Info().Str("address", addr).Msg("registered prometheus service")

	return srv
}
