// Package collection serializes access to named indexer engines and keeps
// them together in a Registry. Writes take an exclusive lock, searches a
// shared one, and every mutation bumps the collection's generation so cached
// results keyed by it go stale.
package collection

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

type Collection struct {
	mu         sync.RWMutex
	engine     *indexer.Engine
	generation atomic.Uint64
	closer     io.Closer
	logger     *slog.Logger
}

// New builds the engine for opts. A document store that implements
// io.Closer is closed with the collection.
func New(opts indexer.Options) (*Collection, error) {
	e, err := indexer.New(opts)
	if err != nil {
		return nil, err
	}
	c := &Collection{
		engine: e,
		logger: slog.Default().With("component", "collection", "collection", e.Name()),
	}
	if closer, ok := opts.Store.(io.Closer); ok {
		c.closer = closer
	}
	return c, nil
}

func (c *Collection) Name() string {
	return c.engine.Name()
}

func (c *Collection) Schema() schema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Schema()
}

// Generation changes whenever the collection's contents may have changed.
func (c *Collection) Generation() uint64 {
	return c.generation.Load()
}

// write runs fn under the exclusive lock and bumps the generation even when
// fn fails, since batch operations may have applied part of their work.
func (c *Collection) write(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.generation.Add(1)
	return fn()
}

func (c *Collection) Insert(ctx context.Context, doc schema.Document, language string) (id string, err error) {
	err = c.write(func() error {
		id, err = c.engine.Insert(ctx, doc, language)
		return err
	})
	return id, err
}

func (c *Collection) InsertMultiple(ctx context.Context, docs []schema.Document, language string) (ids []string, err error) {
	err = c.write(func() error {
		ids, err = c.engine.InsertMultiple(ctx, docs, language)
		return err
	})
	return ids, err
}

func (c *Collection) Update(ctx context.Context, id string, doc schema.Document, language string) (newID string, err error) {
	err = c.write(func() error {
		newID, err = c.engine.Update(ctx, id, doc, language)
		return err
	})
	return newID, err
}

func (c *Collection) UpdateMultiple(ctx context.Context, ids []string, docs []schema.Document, language string) (newIDs []string, err error) {
	err = c.write(func() error {
		newIDs, err = c.engine.UpdateMultiple(ctx, ids, docs, language)
		return err
	})
	return newIDs, err
}

func (c *Collection) Remove(ctx context.Context, id string) (removed bool, err error) {
	err = c.write(func() error {
		removed, err = c.engine.Remove(ctx, id)
		return err
	})
	return removed, err
}

func (c *Collection) RemoveMultiple(ctx context.Context, ids []string) (n int, err error) {
	err = c.write(func() error {
		n, err = c.engine.RemoveMultiple(ctx, ids)
		return err
	})
	return n, err
}

func (c *Collection) Reindex(ctx context.Context) (n int, err error) {
	err = c.write(func() error {
		n, err = c.engine.Reindex(ctx)
		return err
	})
	return n, err
}

func (c *Collection) Load(ctx context.Context, snap *snapshot.Snapshot) error {
	return c.write(func() error {
		return c.engine.Load(ctx, snap)
	})
}

func (c *Collection) Save(ctx context.Context) (*snapshot.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Save(ctx)
}

func (c *Collection) Search(ctx context.Context, p parser.Params) (*executor.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Search(ctx, p)
}

func (c *Collection) Get(ctx context.Context, id string) (schema.Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Get(ctx, id)
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine.Count(ctx)
}

func (c *Collection) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
