package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/defsdb/internal/server/notifier"
	"github.com/leapstack-labs/defsdb/internal/state"
	"github.com/leapstack-labs/defsdb/pkg/core"
	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"github.com/starfederation/datastar-go/datastar"
)

// maxLookupBody bounds the size of a POST /lookup request body.
const maxLookupBody = 64 << 10

// Source supplies the database the handlers query. A Server swaps the
// database on reload, so handlers fetch it once per request.
type Source interface {
	Database() *defsdb.Database
	Status() Reload
}

// Reload describes the database currently served.
type Reload struct {
	Generation uint64       `json:"generation"`
	Source     string       `json:"source,omitempty"`
	Stats      defsdb.Stats `json:"stats"`
}

// ModuleSummary is one row of GET /modules.
type ModuleSummary struct {
	ID         core.ID `json:"id"`
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Superclass string  `json:"superclass,omitempty"`
}

// LookupRequest is the body of POST /lookup.
type LookupRequest struct {
	Name    string   `json:"name"`
	Current string   `json:"current,omitempty"`
	Context []string `json:"context,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handlers provides the HTTP handlers of the query API.
type Handlers struct {
	source Source
	store  state.Store
	events *notifier.Notifier[Reload]
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance. store and events may be nil,
// in which case the index and event routes are not mounted.
func NewHandlers(source Source, store state.Store, events *notifier.Notifier[Reload], logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		source: source,
		store:  store,
		events: events,
		logger: logger,
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the generation and counts of the served database.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.source.Status())
}

// Stats reports entity counts.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.source.Database().Stats())
}

// ListModules lists modules, optionally filtered by ?pattern=.
func (h *Handlers) ListModules(w http.ResponseWriter, r *http.Request) {
	mods, err := h.source.Database().FindModules(r.URL.Query().Get("pattern"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]ModuleSummary, len(mods))
	for i, m := range mods {
		out[i] = ModuleSummary{ID: m.ID(), Name: m.Name(), Kind: m.Kind().String()}
		if super, ok := m.Superclass(); ok {
			out[i].Superclass = super.Name()
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetModule describes the module with the given snapshot id.
func (h *Handlers) GetModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mod, ok := h.source.Database().Module(core.ID(id))
	if !ok {
		h.writeStatus(w, http.StatusNotFound, fmt.Sprintf("module %s not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, defsdb.Describe(mod))
}

// GetMethodBody describes the method body loaded for a method record id.
func (h *Handlers) GetMethodBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := h.source.Database().MethodBody(core.ID(id))
	if !ok {
		h.writeStatus(w, http.StatusNotFound, fmt.Sprintf("method body %s not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, defsdb.DescribeBody(body))
}

// TopLevel lists the top-level constant names.
func (h *Handlers) TopLevel(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, nonNil(h.source.Database().TopLevelNames()))
}

// Libs lists the required library paths.
func (h *Handlers) Libs(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, nonNil(h.source.Database().RequiredLibs()))
}

// Resolve answers GET /resolve?path=...&context=...
//
// context may be repeated and each value may hold several "::"-joined
// names, so ?context=A::B and ?context=A&context=B are equivalent.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := q.Get("path")
	if p == "" {
		h.writeStatus(w, http.StatusBadRequest, "path is required")
		return
	}

	var lexical []string
	for _, c := range q["context"] {
		lexical = append(lexical, splitContext(c)...)
	}

	e, found, err := h.source.Database().Resolve(p, lexical)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeStatus(w, http.StatusNotFound, fmt.Sprintf("%s not found", p))
		return
	}
	h.writeJSON(w, http.StatusOK, defsdb.Describe(e))
}

// Lookup answers POST /lookup with the structured constant lookup.
func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLookupBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		h.writeStatus(w, http.StatusBadRequest, "name is required")
		return
	}

	db := h.source.Database()

	var current *defsdb.Module
	if req.Current != "" {
		m, err := db.ResolveModule(req.Current)
		if err != nil {
			h.writeError(w, err)
			return
		}
		current = m
	}

	lexical := make([]*defsdb.Module, 0, len(req.Context))
	for _, name := range req.Context {
		m, err := db.ResolveModule(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		lexical = append(lexical, m)
	}

	e, err := db.LookupConstantPath(defsdb.SplitPath(req.Name), current, lexical)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, defsdb.Describe(e))
}

// FindMethod answers GET /method?class=...&instance=... or &singleton=...
func (h *Handlers) FindMethod(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	class := q.Get("class")
	if class == "" {
		h.writeStatus(w, http.StatusBadRequest, "class is required")
		return
	}

	def, found, err := h.source.Database().FindMethodDefinition(class, defsdb.MethodQuery{
		Instance:  q.Get("instance"),
		Singleton: q.Get("singleton"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		h.writeStatus(w, http.StatusNotFound, "method not found")
		return
	}
	h.writeJSON(w, http.StatusOK, defsdb.DescribeMethod(def))
}

// Events streams reload notifications as server-sent events. The current
// status is sent first, then one event per reload until the client leaves.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	ch := h.events.Subscribe()
	defer h.events.Unsubscribe(ch)

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(h.source.Status()); err != nil {
		h.logger.Debug("event stream closed", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := sse.MarshalAndPatchSignals(ev); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}

// ListIndexes lists saved indexes, newest first.
func (h *Handlers) ListIndexes(w http.ResponseWriter, r *http.Request) {
	indexes, err := h.store.ListIndexes(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(indexes))
}

// GetIndex describes one saved index.
func (h *Handlers) GetIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := h.store.GetIndex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, idx)
}

// IndexModules searches the modules of a saved index by ?pattern=.
func (h *Handlers) IndexModules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetIndex(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	mods, err := h.store.FindModules(r.Context(), id, r.URL.Query().Get("pattern"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(mods))
}

// IndexMethods finds the definitions of ?name= in a saved index.
func (h *Handlers) IndexMethods(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := r.URL.Query().Get("name")
	if name == "" {
		h.writeStatus(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := h.store.GetIndex(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	methods, err := h.store.FindMethods(r.Context(), id, name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(methods))
}

// splitContext splits a context parameter on "::" and ",".
func splitContext(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		for _, name := range strings.Split(part, defsdb.Separator) {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// statusOf maps a query error to an HTTP status.
func statusOf(err error) int {
	var (
		lookupErr   *defsdb.ConstantLookupError
		notFoundErr *defsdb.ModuleNotFoundError
		contextErr  *defsdb.InvalidModuleContextError
		argErr      *defsdb.ArgumentError
	)
	switch {
	case errors.As(err, &lookupErr), errors.As(err, &notFoundErr), errors.Is(err, state.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.As(err, &contextErr), errors.As(err, &argErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeStatus(w, status, err.Error())
}

func (h *Handlers) writeStatus(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}
