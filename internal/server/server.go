// Package server provides a read-only HTTP query API over a definitions
// database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/defsdb/internal/server/notifier"
	"github.com/leapstack-labs/defsdb/internal/state"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"golang.org/x/sync/errgroup"
)

// reloadDebounce is how long the snapshot must stay unchanged before a
// reload.
const reloadDebounce = 100 * time.Millisecond

// Server serves the query API and optionally reloads the snapshot when
// the file changes.
type Server struct {
	addr            string
	readTimeout     time.Duration
	shutdownTimeout time.Duration
	watch           bool
	snapshotPath    string
	store           state.Store
	logger          *slog.Logger

	// reloadMu serializes Reload so generations increase by one per swap.
	reloadMu sync.Mutex
	current  atomic.Pointer[Reload]
	db       atomic.Pointer[defsdb.Database]
	events   *notifier.Notifier[Reload]
	handlers *Handlers
}

// Config holds configuration for the query server.
type Config struct {
	DB              *defsdb.Database
	SnapshotPath    string
	Store           state.Store
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Watch           bool
	Logger          *slog.Logger
}

// NewServer creates a server for cfg.DB. Watch requires SnapshotPath.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		addr:            cfg.Addr,
		readTimeout:     cfg.ReadTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		watch:           cfg.Watch && cfg.SnapshotPath != "",
		snapshotPath:    cfg.SnapshotPath,
		store:           cfg.Store,
		logger:          logger,
		events:          notifier.New[Reload](),
	}
	s.swap(cfg.DB)
	s.handlers = NewHandlers(s, cfg.Store, s.events, logger)
	return s
}

// Database returns the database currently served.
func (s *Server) Database() *defsdb.Database {
	return s.db.Load()
}

// Status returns the generation and counts of the database currently served.
func (s *Server) Status() Reload {
	return *s.current.Load()
}

// Events returns the notifier that receives one event per reload.
func (s *Server) Events() *notifier.Notifier[Reload] {
	return s.events
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Compress(5))
	return SetupRoutes(r, s.handlers)
}

// Reload reopens the snapshot file and swaps it in. On failure the
// previous database keeps being served.
func (s *Server) Reload() error {
	if s.snapshotPath == "" {
		return fmt.Errorf("no snapshot path to reload from")
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	db, err := defsdb.Open(s.snapshotPath, defsdb.LoadOptions{Logger: s.logger})
	if err != nil {
		return err
	}
	ev := s.swap(db)
	s.logger.Info("reloaded snapshot",
		slog.String("path", s.snapshotPath),
		slog.Uint64("generation", ev.Generation),
	)
	s.events.Broadcast(ev)
	return nil
}

func (s *Server) swap(db *defsdb.Database) Reload {
	ev := Reload{Source: s.snapshotPath, Stats: db.Stats()}
	if prev := s.current.Load(); prev != nil {
		ev.Generation = prev.Generation + 1
	}
	s.db.Store(db)
	s.current.Store(&ev)
	return ev
}

// Serve listens on the configured address and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully. ln is closed on return.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting query server", "addr", "http://"+ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: s.readTimeout,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchSnapshot(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down query server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchSnapshot reloads the snapshot after it is written. The directory
// is watched rather than the file so editors that replace the file by
// renaming keep triggering reloads.
func (s *Server) watchSnapshot(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.snapshotPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		s.logger.Error("failed to watch snapshot directory", "error", err)
		// Keep serving without reloads.
		<-ctx.Done()
		return nil
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.logger.Debug("snapshot changed, reloading", "file", target)
				if err := s.Reload(); err != nil {
					s.logger.Error("reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
