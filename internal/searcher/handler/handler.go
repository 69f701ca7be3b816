// Package handler exposes collections over HTTP: document CRUD, search and
// snapshot management under /api/v1/collections/{name}.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

const maxBodyBytes = 32 << 20

type Options struct {
	// Cache and Snapshots are optional.
	Cache     *cache.QueryCache
	Snapshots snapshot.Store
	Metrics   *metrics.Metrics
	// DefaultLimit applies when a search names no limit; MaxResults caps
	// the limit a search may ask for.
	DefaultLimit int
	MaxResults   int
	SlowQuery    time.Duration
}

type Handler struct {
	registry     *collection.Registry
	cache        *cache.QueryCache
	snapshots    snapshot.Store
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	slowQuery    time.Duration
	logger       *slog.Logger
}

func New(reg *collection.Registry, opts Options) *Handler {
	return &Handler{
		registry:     reg,
		cache:        opts.Cache,
		snapshots:    opts.Snapshots,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		slowQuery:    opts.SlowQuery,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register installs the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/collections", h.ListCollections)
	mux.HandleFunc("POST /api/v1/collections/{name}/documents", h.InsertDocuments)
	mux.HandleFunc("GET /api/v1/collections/{name}/documents/{id}", h.GetDocument)
	mux.HandleFunc("PUT /api/v1/collections/{name}/documents/{id}", h.UpdateDocument)
	mux.HandleFunc("DELETE /api/v1/collections/{name}/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("POST /api/v1/collections/{name}/search", h.Search)
	mux.HandleFunc("POST /api/v1/collections/{name}/reindex", h.Reindex)
	mux.HandleFunc("POST /api/v1/collections/{name}/snapshot", h.SaveSnapshot)
	mux.HandleFunc("POST /api/v1/collections/{name}/snapshot/restore", h.RestoreSnapshot)
}

type collectionInfo struct {
	Name       string `json:"name"`
	Documents  int    `json:"documents"`
	Generation uint64 `json:"generation"`
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	out := make([]collectionInfo, 0)
	for _, name := range h.registry.Names() {
		c, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		n, err := c.Count(r.Context())
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		out = append(out, collectionInfo{Name: name, Documents: n, Generation: c.Generation()})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

// InsertDocuments accepts a single document object or an array of them.
// The optional language query parameter applies to every document.
func (h *Handler) InsertDocuments(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeErr(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "reading body: %v", err))
		return
	}
	language := r.URL.Query().Get("language")

	if first := firstByte(raw); first == '[' {
		var docs []schema.Document
		if err := json.Unmarshal(raw, &docs); err != nil {
			h.writeErr(w, r, badJSON(err))
			return
		}
		ids, err := c.InsertMultiple(r.Context(), docs, language)
		h.invalidate(r, c.Name())
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
		return
	}

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		h.writeErr(w, r, badJSON(err))
		return
	}
	id, err := c.Insert(r.Context(), doc, language)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidate(r, c.Name())
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	doc, found, err := c.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !found {
		h.writeErr(w, r, notFound(id))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "document": doc})
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	var doc schema.Document
	if err := h.decode(w, r, &doc); err != nil {
		h.writeErr(w, r, err)
		return
	}
	id, err := c.Update(r.Context(), r.PathValue("id"), doc, r.URL.Query().Get("language"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidate(r, c.Name())
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	removed, err := c.Remove(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !removed {
		h.writeErr(w, r, notFound(id))
		return
	}
	h.invalidate(r, c.Name())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(r.Context())

	ctx, span := tracing.Start(r.Context(), "search")
	span.SetAttr("collection", c.Name())
	defer func() {
		span.End()
		span.Log(log, h.slowQuery)
	}()

	var p parser.Params
	if err := h.decode(w, r, &p); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if p.Limit == 0 && h.defaultLimit > 0 {
		p.Limit = h.defaultLimit
	}
	if h.maxResults > 0 && p.Limit > h.maxResults {
		p.Limit = h.maxResults
	}
	span.SetAttr("term", p.Term)

	execute := func() (*executor.SearchResult, error) {
		execCtx, exec := tracing.Start(ctx, "execute")
		defer exec.End()
		return c.Search(execCtx, p)
	}

	var (
		res      *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		var key string
		key, err = cache.Key(c.Name(), c.Generation(), p)
		if err == nil {
			cacheCtx, lookup := tracing.Start(ctx, "cache")
			res, cacheHit, err = h.cache.GetOrCompute(cacheCtx, key, execute)
			lookup.SetAttr("hit", cacheHit)
			lookup.End()
		}
	} else {
		res, err = execute()
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		h.writeErr(w, r, err)
		return
	}

	if cacheHit && h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(c.Name(), "hit").Observe(time.Since(start).Seconds())
	}
	span.SetAttr("count", res.Count)
	log.Info("search completed",
		"collection", c.Name(),
		"term", p.Term,
		"count", res.Count,
		"returned", len(res.Hits),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok {
		return
	}
	n, err := c.Reindex(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidate(r, c.Name())
	h.writeJSON(w, http.StatusOK, map[string]int{"documents": n})
}

func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok || !h.snapshotsEnabled(w, r) {
		return
	}
	if err := collection.SaveTo(r.Context(), c, h.snapshots); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "collection": c.Name()})
}

func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := h.collection(w, r)
	if !ok || !h.snapshotsEnabled(w, r) {
		return
	}
	found, err := collection.RestoreFrom(r.Context(), c, h.snapshots)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !found {
		h.writeErr(w, r, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "no snapshot for %q", c.Name()))
		return
	}
	h.invalidate(r, c.Name())
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "restored", "collection": c.Name()})
}

func (h *Handler) snapshotsEnabled(w http.ResponseWriter, r *http.Request) bool {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return false
	}
	return true
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (*collection.Collection, bool) {
	c, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		h.writeErr(w, r, err)
		return nil, false
	}
	return c, true
}

// invalidate drops cached searches of a collection. Generation-keyed entries
// are already unreachable, so a failure only costs memory until the TTL.
func (h *Handler) invalidate(r *http.Request, name string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(r.Context(), name); err != nil {
		logger.FromContext(r.Context()).Warn("cache invalidation failed", "collection", name, "error", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badJSON(err)
	}
	return nil
}

func badJSON(err error) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body: %v", err)
}

func notFound(id string) error {
	return apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q", id)
}

func firstByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
