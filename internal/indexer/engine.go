// Package indexer keeps the document store and every per-property index of a
// collection consistent across inserts, updates and removals, and answers
// searches over them.
//
// An Engine assumes a single logical writer. Mutations must be serialized by
// the caller; searches may run concurrently with each other but not with a
// mutation.
package indexer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// DefaultBatchSize is the number of documents a batch operation applies
// before yielding.
const DefaultBatchSize = 1000

// Options configures an Engine. Only Schema is required.
type Options struct {
	Name      string
	Schema    schema.Schema
	Language  string
	Tokenizer tokenizer.Tokenizer
	Store     store.DocumentStore
	Validator schema.Validator
	Sort      sorter.Config
	BatchSize int
	Scheduler Scheduler
	IDs       IDGenerator
	Ranking   ranker.Params
	Metrics   *metrics.Metrics
}

type Engine struct {
	name      string
	schema    schema.Schema
	types     map[string]schema.Type
	paths     []string
	language  string
	tok       tokenizer.Tokenizer
	docs      store.DocumentStore
	validator schema.Validator
	sortCfg   sorter.Config
	batchSize int
	scheduler Scheduler
	ids       IDGenerator

	index  *index.Index
	sorter *sorter.Sorter
	// languages records documents inserted in a language other than the
	// default, so removal tokenizes them the same way.
	languages map[string]string

	exec    *executor.Executor
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if len(opts.Schema) == 0 {
		return nil, apperrors.Config(apperrors.ErrSchemaMismatch, "schema has no properties")
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Language == "" {
		opts.Language = tokenizer.DefaultLanguage
	}
	if !tokenizer.Supported(opts.Language) {
		return nil, apperrors.Config(apperrors.ErrUnsupportedLanguage, "language %q", opts.Language)
	}
	if opts.Tokenizer == nil {
		tok, err := tokenizer.New(tokenizer.Config{Language: opts.Language})
		if err != nil {
			return nil, fmt.Errorf("creating tokenizer: %w", err)
		}
		opts.Tokenizer = tok
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Validator == nil {
		opts.Validator = schema.DefaultValidator
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Scheduler == nil {
		opts.Scheduler = GoschedScheduler{}
	}
	opts.Sort.Language = opts.Language
	if opts.IDs == nil {
		opts.IDs = &Counter{}
	}

	e := &Engine{
		name:      opts.Name,
		language:  opts.Language,
		tok:       opts.Tokenizer,
		docs:      opts.Store,
		validator: opts.Validator,
		sortCfg:   opts.Sort,
		batchSize: opts.BatchSize,
		scheduler: opts.Scheduler,
		ids:       opts.IDs,
		exec:      executor.New(opts.Ranking),
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "indexer", "collection", opts.Name),
	}
	e.setSchema(opts.Schema)
	e.index = index.New(opts.Schema)
	e.sorter = sorter.New(opts.Schema, opts.Sort)
	e.languages = make(map[string]string)
	return e, nil
}

func (e *Engine) setSchema(s schema.Schema) {
	e.schema = s
	e.types = s.Flatten()
	e.paths = make([]string, 0, len(e.types))
	for path := range e.types {
		e.paths = append(e.paths, path)
	}
	sort.Strings(e.paths)
}

func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) Schema() schema.Schema {
	return e.schema
}

// Language is the default language for documents and queries.
func (e *Engine) Language() string {
	return e.language
}

// Insert validates doc, stores it and indexes every property it defines. The
// document ID is taken from its "id" field when present, otherwise the
// engine's generator issues one.
func (e *Engine) Insert(ctx context.Context, doc schema.Document, language string) (string, error) {
	lang, err := e.prepare(doc, language)
	if err != nil {
		return "", err
	}
	id, err := e.resolveID(doc)
	if err != nil {
		return "", err
	}
	if err := e.insert(ctx, id, doc, lang); err != nil {
		return "", err
	}
	return id, nil
}

// prepare runs every check that must pass before anything is mutated.
func (e *Engine) prepare(doc schema.Document, language string) (string, error) {
	if doc == nil {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document is empty")
	}
	if path, ok := e.validator.Validate(doc, e.schema); !ok {
		return "", apperrors.Newf(apperrors.ErrSchemaMismatch, http.StatusUnprocessableEntity,
			"property %q does not match the schema", path)
	}
	return e.resolveLanguage(language)
}

func (e *Engine) resolveLanguage(language string) (string, error) {
	if language == "" {
		return e.language, nil
	}
	if !tokenizer.Supported(language) {
		return "", apperrors.Config(apperrors.ErrUnsupportedLanguage, "language %q", language)
	}
	return language, nil
}

func (e *Engine) resolveID(doc schema.Document) (string, error) {
	raw, ok := doc["id"]
	if !ok || raw == nil {
		return e.ids.NextID(), nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", apperrors.Newf(apperrors.ErrInvalidDocumentID, http.StatusUnprocessableEntity,
			"id must be a non-empty string, got %T", raw)
	}
	return id, nil
}

func (e *Engine) insert(ctx context.Context, id string, doc schema.Document, lang string) error {
	stored, err := e.docs.Store(ctx, id, doc)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", id, err)
	}
	if !stored {
		return apperrors.Newf(apperrors.ErrDuplicateID, http.StatusConflict, "id %q", id)
	}

	if err := e.indexDocument(id, doc, lang); err != nil {
		if _, rmErr := e.docs.Remove(ctx, id); rmErr != nil {
			e.logger.Error("rolling back stored document", "doc_id", id, "error", rmErr)
		}
		return fmt.Errorf("indexing document %s: %w", id, err)
	}

	if e.metrics != nil {
		e.metrics.DocsInsertedTotal.WithLabelValues(e.name).Inc()
		e.metrics.CollectionDocCount.WithLabelValues(e.name).Set(float64(e.index.DocCount()))
	}
	return nil
}

// indexDocument adds every property of doc to the index and the sorter. On
// failure the document is unindexed again.
func (e *Engine) indexDocument(id string, doc schema.Document, lang string) error {
	e.index.Track(id)
	if lang != e.language {
		e.languages[id] = lang
	}
	for _, prop := range e.paths {
		v, ok := schema.GetNested(doc, prop)
		if !ok || v == nil {
			continue
		}
		if _, indexed := e.index.PropertyType(prop); indexed {
			if err := e.index.Insert(prop, id, v, lang, e.tok); err != nil {
				e.unindex(id, doc, lang)
				return err
			}
		}
		e.sorter.Insert(prop, id, v)
	}
	return nil
}

// Reindex rebuilds every index from the documents already in the store, in
// ID order and with the default language. It is used when the store outlives
// the process. The ID counter moves past every numeric ID found.
func (e *Engine) Reindex(ctx context.Context) (int, error) {
	docs, err := e.docs.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading documents: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)

	e.index = index.New(e.schema)
	e.sorter = sorter.New(e.schema, e.sortCfg)
	e.languages = make(map[string]string)
	for _, id := range ids {
		if err := e.indexDocument(id, docs[id], e.language); err != nil {
			return 0, fmt.Errorf("reindexing document %s: %w", id, err)
		}
		if c, ok := e.ids.(*Counter); ok {
			if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > c.Value() {
				c.Set(n)
			}
		}
	}
	if e.metrics != nil {
		e.metrics.CollectionDocCount.WithLabelValues(e.name).Set(float64(len(ids)))
	}
	e.logger.Info("collection reindexed from store", "documents", len(ids))
	return len(ids), nil
}

// compareIDs orders counter IDs numerically ahead of caller-chosen IDs, which
// order lexically.
func compareIDs(a, b string) int {
	na, aerr := strconv.ParseUint(a, 10, 64)
	nb, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Or(cmp.Compare(na, nb), cmp.Compare(a, b))
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// Remove deletes the document from every index and then from the store. It
// reports false, without error, when id is unknown.
func (e *Engine) Remove(ctx context.Context, id string) (bool, error) {
	doc, ok, err := e.docs.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("loading document %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	lang := e.language
	if l, ok := e.languages[id]; ok {
		lang = l
	}
	if err := e.unindex(id, doc, lang); err != nil {
		return false, fmt.Errorf("unindexing document %s: %w", id, err)
	}
	if _, err := e.docs.Remove(ctx, id); err != nil {
		return false, fmt.Errorf("removing document %s: %w", id, err)
	}

	if e.metrics != nil {
		e.metrics.DocsRemovedTotal.WithLabelValues(e.name).Inc()
		e.metrics.CollectionDocCount.WithLabelValues(e.name).Set(float64(e.index.DocCount()))
	}
	return true, nil
}

func (e *Engine) unindex(id string, doc schema.Document, lang string) error {
	var firstErr error
	for _, prop := range e.paths {
		v, ok := schema.GetNested(doc, prop)
		if !ok || v == nil {
			continue
		}
		if err := e.index.Remove(prop, id, v, lang, e.tok); err != nil && firstErr == nil {
			firstErr = err
		}
		e.sorter.Remove(prop, id)
	}
	e.index.Untrack(id)
	delete(e.languages, id)
	return firstErr
}

// Update replaces the document id with doc. The new document is validated
// before the old one is removed; it keeps its own "id" field or receives a
// fresh ID.
func (e *Engine) Update(ctx context.Context, id string, doc schema.Document, language string) (string, error) {
	lang, err := e.prepare(doc, language)
	if err != nil {
		return "", err
	}
	newID, err := e.resolveID(doc)
	if err != nil {
		return "", err
	}
	if _, err := e.Remove(ctx, id); err != nil {
		return "", err
	}
	if err := e.insert(ctx, newID, doc, lang); err != nil {
		return "", err
	}
	return newID, nil
}

// Count returns the number of stored documents.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.docs.Count(ctx)
}

func (e *Engine) Get(ctx context.Context, id string) (schema.Document, bool, error) {
	return e.docs.Get(ctx, id)
}

// GetMultiple returns the documents in the order of ids, with nil for the
// unknown ones.
func (e *Engine) GetMultiple(ctx context.Context, ids []string) ([]schema.Document, error) {
	return e.docs.GetMultiple(ctx, ids)
}
