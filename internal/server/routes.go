package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
)

// staticSource serves a database that never changes.
type staticSource struct {
	db *defsdb.Database
}

func (s staticSource) Database() *defsdb.Database { return s.db }

func (s staticSource) Status() Reload { return Reload{Stats: s.db.Stats()} }

// NewRouter returns the read-only query API over db.
func NewRouter(db *defsdb.Database, logger *slog.Logger) chi.Router {
	return SetupRoutes(chi.NewMux(), NewHandlers(staticSource{db: db}, nil, nil, logger))
}

// SetupRoutes registers the query API on router and returns it.
func SetupRoutes(router chi.Router, h *Handlers) chi.Router {
	router.Use(
		middleware.RequestID,
		requestLogger(h.logger),
		middleware.Recoverer,
	)

	router.Get("/healthz", h.Health)
	router.Get("/status", h.Status)
	router.Get("/stats", h.Stats)
	router.Get("/toplevel", h.TopLevel)
	router.Get("/libs", h.Libs)

	router.Route("/modules", func(r chi.Router) {
		r.Get("/", h.ListModules)
		r.Get("/{id}", h.GetModule)
	})
	router.Get("/method-bodies/{id}", h.GetMethodBody)

	router.Get("/resolve", h.Resolve)
	router.Post("/lookup", h.Lookup)
	router.Get("/method", h.FindMethod)

	if h.events != nil {
		router.Get("/events", h.Events)
	}

	if h.store != nil {
		router.Route("/indexes", func(r chi.Router) {
			r.Get("/", h.ListIndexes)
			r.Get("/{id}", h.GetIndex)
			r.Get("/{id}/modules", h.IndexModules)
			r.Get("/{id}/methods", h.IndexMethods)
		})
	}

	return router
}

// requestLogger logs one debug line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
