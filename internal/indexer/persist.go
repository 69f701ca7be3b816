package indexer

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Save captures the engine's full state, stored documents included.
func (e *Engine) Save(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, err := e.save(ctx)
	if e.metrics != nil {
		e.metrics.SnapshotsTotal.WithLabelValues("save", metrics.Status(err)).Inc()
	}
	return snap, err
}

func (e *Engine) save(ctx context.Context) (*snapshot.Snapshot, error) {
	docs, err := e.docs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	snap := &snapshot.Snapshot{
		Version:   snapshot.FormatVersion,
		CreatedAt: time.Now().UTC(),
		Schema:    e.schema,
		Language:  e.language,
		Index:     e.index.Save(),
		Sorting:   e.sorter.Save(),
		Docs:      docs,
		Languages: maps.Clone(e.languages),
	}
	if c, ok := e.ids.(*Counter); ok {
		snap.NextID = c.Value()
	}
	e.logger.Info("snapshot taken", "documents", len(docs))
	return snap, nil
}

// Load replaces the engine's state with snap. Documents previously stored
// are removed from the store first.
func (e *Engine) Load(ctx context.Context, snap *snapshot.Snapshot) error {
	err := e.load(ctx, snap)
	if e.metrics != nil {
		e.metrics.SnapshotsTotal.WithLabelValues("load", metrics.Status(err)).Inc()
		if err == nil {
			e.metrics.CollectionDocCount.WithLabelValues(e.name).Set(float64(e.index.DocCount()))
		}
	}
	return err
}

func (e *Engine) load(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil || len(snap.Schema) == 0 {
		return apperrors.Config(apperrors.ErrInvalidSnapshot, "snapshot has no schema")
	}
	idx, err := index.Load(snap.Index)
	if err != nil {
		return err
	}
	if idx.DocCount() != len(snap.Docs) {
		return apperrors.Config(apperrors.ErrInvalidSnapshot,
			"index tracks %d documents, snapshot holds %d", idx.DocCount(), len(snap.Docs))
	}

	current, err := e.docs.All(ctx)
	if err != nil {
		return fmt.Errorf("reading documents: %w", err)
	}
	for id := range current {
		if _, err := e.docs.Remove(ctx, id); err != nil {
			return fmt.Errorf("clearing document %s: %w", id, err)
		}
	}
	for id, doc := range snap.Docs {
		if _, err := e.docs.Store(ctx, id, doc); err != nil {
			return fmt.Errorf("restoring document %s: %w", id, err)
		}
	}

	e.setSchema(snap.Schema)
	if snap.Language != "" {
		e.language = snap.Language
		e.sortCfg.Language = snap.Language
	}
	e.index = idx
	e.sorter = sorter.Load(snap.Sorting)
	e.languages = maps.Clone(snap.Languages)
	if e.languages == nil {
		e.languages = make(map[string]string)
	}
	if c, ok := e.ids.(*Counter); ok {
		c.Set(snap.NextID)
	}
	e.logger.Info("snapshot loaded", "documents", len(snap.Docs), "created_at", snap.CreatedAt)
	return nil
}
