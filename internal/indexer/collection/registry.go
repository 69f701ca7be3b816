package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Registry maps collection names to collections.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	logger      *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
		logger:      slog.Default().With("component", "collection-registry"),
	}
}

func (r *Registry) Add(c *Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[c.Name()]; ok {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusConflict, "collection %q already registered", c.Name())
	}
	r.collections[c.Name()] = c
	r.logger.Info("collection registered", "collection", c.Name())
	return nil
}

func (r *Registry) Get(name string) (*Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownCollection, http.StatusNotFound, "collection %q", name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveAll writes a snapshot of every collection to st under the
// collection's name. It continues past failures and returns the first one.
func (r *Registry) SaveAll(ctx context.Context, st snapshot.Store) error {
	var firstErr error
	for _, name := range r.Names() {
		c, err := r.Get(name)
		if err != nil {
			continue
		}
		if err := SaveTo(ctx, c, st); err != nil {
			r.logger.Error("snapshot save failed", "collection", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RestoreAll loads each collection's snapshot from st. Collections without a
// stored snapshot are left untouched and not counted.
func (r *Registry) RestoreAll(ctx context.Context, st snapshot.Store) (int, error) {
	restored := 0
	for _, name := range r.Names() {
		c, err := r.Get(name)
		if err != nil {
			continue
		}
		ok, err := RestoreFrom(ctx, c, st)
		if err != nil {
			return restored, fmt.Errorf("restoring collection %s: %w", name, err)
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

// SaveTo snapshots c into st.
func SaveTo(ctx context.Context, c *Collection, st snapshot.Store) error {
	snap, err := c.Save(ctx)
	if err != nil {
		return err
	}
	return st.Save(ctx, c.Name(), snap)
}

// RestoreFrom loads c's snapshot from st, reporting false when none exists.
func RestoreFrom(ctx context.Context, c *Collection, st snapshot.Store) (bool, error) {
	snap, err := st.Load(ctx, c.Name())
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		c.logger.Info("no snapshot to restore")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.Load(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}

// Close closes every collection, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, c := range r.collections {
		if err := c.Close(); err != nil {
			r.logger.Error("close failed", "collection", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
