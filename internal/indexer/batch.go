package indexer

import (
	"context"
	"net/http"
	"runtime"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Scheduler is called between the chunks of a batch operation. Returning an
// error stops the batch; chunks already applied stay applied.
type Scheduler interface {
	Yield(ctx context.Context) error
}

// GoschedScheduler yields the processor and stops once ctx is done.
type GoschedScheduler struct{}

func (GoschedScheduler) Yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(ctx context.Context) error

func (f SchedulerFunc) Yield(ctx context.Context) error {
	return f(ctx)
}

// InsertMultiple inserts docs in chunks of the engine's batch size. It stops
// at the first error and returns the IDs inserted before it.
func (e *Engine) InsertMultiple(ctx context.Context, docs []schema.Document, language string) ([]string, error) {
	ids := make([]string, 0, len(docs))
	err := e.chunked(ctx, "insert", len(docs), func(i int) error {
		id, err := e.Insert(ctx, docs[i], language)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// RemoveMultiple removes ids in chunks and returns how many documents were
// actually removed. Unknown IDs are skipped.
func (e *Engine) RemoveMultiple(ctx context.Context, ids []string) (int, error) {
	removed := 0
	err := e.chunked(ctx, "remove", len(ids), func(i int) error {
		ok, err := e.Remove(ctx, ids[i])
		if err != nil {
			return err
		}
		if ok {
			removed++
		}
		return nil
	})
	return removed, err
}

// UpdateMultiple replaces ids[i] with docs[i]. Every document is validated
// before the first one is applied.
func (e *Engine) UpdateMultiple(ctx context.Context, ids []string, docs []schema.Document, language string) ([]string, error) {
	if len(ids) != len(docs) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"%d ids for %d documents", len(ids), len(docs))
	}
	for _, doc := range docs {
		if _, err := e.prepare(doc, language); err != nil {
			return nil, err
		}
	}
	newIDs := make([]string, 0, len(docs))
	err := e.chunked(ctx, "update", len(docs), func(i int) error {
		id, err := e.Update(ctx, ids[i], docs[i], language)
		if err != nil {
			return err
		}
		newIDs = append(newIDs, id)
		return nil
	})
	return newIDs, err
}

func (e *Engine) chunked(ctx context.Context, op string, n int, apply func(i int) error) error {
	for start := 0; start < n; start += e.batchSize {
		end := min(start+e.batchSize, n)
		for i := start; i < end; i++ {
			if err := apply(i); err != nil {
				e.logger.Warn("batch aborted", "op", op, "index", i, "error", err)
				return err
			}
		}
		if e.metrics != nil {
			e.metrics.BatchChunksTotal.WithLabelValues(e.name, op).Inc()
		}
		e.logger.Debug("batch chunk applied", "op", op, "done", end, "total", n)
		if end < n {
			if err := e.scheduler.Yield(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
