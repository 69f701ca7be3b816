package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type countingScheduler struct {
	yields int
	failAt int
}

func (s *countingScheduler) Yield(ctx context.Context) error {
	s.yields++
	if s.failAt > 0 && s.yields >= s.failAt {
		return context.Canceled
	}
	return ctx.Err()
}

func quotes(n int) []schema.Document {
	docs := make([]schema.Document, n)
	for i := range docs {
		docs[i] = schema.Document{"quote": fmt.Sprintf("quote number w%d", i)}
	}
	return docs
}

func TestInsertMultipleYieldsBetweenChunks(t *testing.T) {
	sched := &countingScheduler{}
	e := newEngine(t, quoteSchema, func(o *Options) {
		o.BatchSize = 2
		o.Scheduler = sched
	})

	ids, err := e.InsertMultiple(context.Background(), quotes(5), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
	assert.Equal(t, 2, sched.yields, "no yield after the last chunk")
	assert.Equal(t, 5, search(t, e, parser.Params{Term: "quote"}).Count)
}

func TestInsertMultipleStopsAtFirstError(t *testing.T) {
	e := newEngine(t, quoteSchema, func(o *Options) { o.BatchSize = 2 })
	docs := quotes(5)
	docs[3] = schema.Document{"quote": false}

	ids, err := e.InsertMultiple(context.Background(), docs, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))
	assert.Equal(t, []string{"1", "2", "3"}, ids, "applied items stay applied")

	n, err := e.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, search(t, e, parser.Params{Term: "w4"}).Count)
}

func TestSchedulerErrorStopsBatch(t *testing.T) {
	sched := &countingScheduler{failAt: 1}
	e := newEngine(t, quoteSchema, func(o *Options) {
		o.BatchSize = 2
		o.Scheduler = sched
	})

	ids, err := e.InsertMultiple(context.Background(), quotes(5), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ids, 2)
}

func TestCancelledContextStopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(t, quoteSchema, func(o *Options) {
		o.BatchSize = 1
		o.Scheduler = SchedulerFunc(func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
	})

	ids, err := e.InsertMultiple(ctx, quotes(3), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"1"}, ids)
}

func TestRemoveMultipleCountsRemoved(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema, func(o *Options) { o.BatchSize = 2 })
	ids, err := e.InsertMultiple(ctx, quotes(4), "")
	require.NoError(t, err)

	removed, err := e.RemoveMultiple(ctx, []string{ids[0], "missing", ids[2], ids[0]})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, search(t, e, parser.Params{Term: "quote"}).Count)
}

func TestUpdateMultipleValidatesEverythingFirst(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, quoteSchema)
	_, err := e.InsertMultiple(ctx, []schema.Document{
		{"id": "a", "quote": "alpha"},
		{"id": "b", "quote": "beta"},
	}, "")
	require.NoError(t, err)

	_, err = e.UpdateMultiple(ctx, []string{"a", "b"}, []schema.Document{
		{"id": "a", "quote": "gamma"},
		{"id": "b", "quote": 3},
	}, "")
	assert.True(t, errors.Is(err, apperrors.ErrSchemaMismatch))
	assert.Equal(t, 1, search(t, e, parser.Params{Term: "alpha"}).Count, "nothing applied")

	newIDs, err := e.UpdateMultiple(ctx, []string{"a", "b"}, []schema.Document{
		{"id": "a", "quote": "gamma"},
		{"id": "b", "quote": "delta"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, newIDs)
	assert.Zero(t, search(t, e, parser.Params{Term: "alpha"}).Count)
	assert.Equal(t, 1, search(t, e, parser.Params{Term: "delta"}).Count)

	_, err = e.UpdateMultiple(ctx, []string{"a"}, nil, "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
