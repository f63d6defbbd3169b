// This file contains the hot-reload part of the feed. It watches the folder
// of the manifest so that the events survive the file being replaced, which
// is how most editors and certificate renewal tools write.
//
// Documentation Last Review: 14.08.2026
//

package diskfeed

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"go.dedis.ch/lino"
	"go.dedis.ch/lino/linotls"
	"golang.org/x/xerrors"
)

// defaultDebounce is how long the watcher waits after an event before it
// reloads, so that a burst of writes ends up in a single reload.
const defaultDebounce = 500 * time.Millisecond

// template is the default configuration of a watcher.
type template struct {
	logger   zerolog.Logger
	debounce time.Duration
}

// Option is a function to set an optional parameter of the watcher.
type Option func(*template)

// WithLogger sets the logger of the watcher.
func WithLogger(logger zerolog.Logger) Option {
	return func(tmpl *template) {
		tmpl.logger = logger
	}
}

// WithDebounce sets how long the watcher coalesces the events before it
// reloads the manifest.
func WithDebounce(debounce time.Duration) Option {
	return func(tmpl *template) {
		tmpl.debounce = debounce
	}
}

// Watch loads the manifest, then pushes a freshly loaded configuration on
// the returned feed every time a file of the manifest folder changes. The
// initial load must succeed, later failures are logged and skipped so that
// the acceptor keeps its active configuration. The feed is closed when the
// context is done.
func Watch(ctx context.Context, path string, opts ...Option) (linotls.Feed, error) {
	tmpl := template{
		logger:   lino.Logger.With().Str("component", "diskfeed").Logger(),
		debounce: defaultDebounce,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, xerrors.Errorf("initial load: %v", err)
	}

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Errorf("couldn't create watcher: %v", err)
	}

	err = notify.Add(filepath.Dir(path))
	if err != nil {
		notify.Close()

		return nil, xerrors.Errorf("couldn't watch folder: %v", err)
	}

	w := &watcher{
		path:     path,
		logger:   tmpl.logger,
		debounce: tmpl.debounce,
		notify:   notify,
		feed:     make(chan *linotls.Config, 1),
	}

	w.feed <- cfg

	go w.run(ctx)

	w.logger.Info().Str("manifest", path).Msg("watching manifest")

	return w.feed, nil
}

// watcher drives the reloads of a manifest.
type watcher struct {
	path     string
	logger   zerolog.Logger
	debounce time.Duration
	notify   *fsnotify.Watcher
	feed     chan *linotls.Config
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.feed)
	defer w.notify.Close()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) {

				continue
			}

			if pending != nil {
				if !timer.Stop() {
					<-timer.C
				}
			}

			timer.Reset(w.debounce)
			pending = timer.C

		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}

			w.logger.Err(err).Msg("watcher error")

		case <-pending:
			pending = nil

			w.reload()

		case <-ctx.Done():
			return
		}
	}
}

// reload loads the manifest again and pushes the configuration on the feed.
func (w *watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Err(err).Msg("couldn't reload manifest")

		return
	}

	w.push(cfg)

	w.logger.Info().
		Int("certificates", len(cfg.ServerNames())).
		Msg("manifest reloaded")
}

// push delivers the configuration, replacing a pending one if the consumer
// has not caught up. Only the latest configuration matters.
func (w *watcher) push(cfg *linotls.Config) {
	for {
		select {
		case w.feed <- cfg:
			return
		default:
		}

		select {
		case <-w.feed:
		default:
		}
	}
}
