package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/facets"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

var errMissing = errors.New("nil")

type fakeBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
	gets int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (f *fakeBackend) GetBytes(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return nil, errors.New("connection refused")
	}
	v, ok := f.data[key]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.data[key] = value.([]byte)
	return nil
}

func (f *fakeBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func result() *executor.SearchResult {
	return &executor.SearchResult{
		Count: 1,
		Hits:  []executor.Hit{{ID: "1", Score: 0.5, Document: map[string]any{"title": "dune"}}},
		Facets: map[string]facets.Result{
			"tags": {Count: 2, Values: []facets.Bucket{{Label: "scifi", Count: 1}, {Label: "classic", Count: 1}}},
		},
	}
}

func isMissing(err error) bool { return errors.Is(err, errMissing) }

func TestKeyIsStable(t *testing.T) {
	a, err := Key("books", 3, parser.Params{Term: "dune", Where: map[string]any{"a": true, "b": false}})
	require.NoError(t, err)
	b, err := Key("books", 3, parser.Params{Term: "dune", Where: map[string]any{"b": false, "a": true}})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Key("books", 4, parser.Params{Term: "dune"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Contains(t, c, "search:books:4:")
}

func TestGetOrComputeLocal(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, err := New(nil, Config{LocalSize: 8}, m)
	require.NoError(t, err)
	ctx := context.Background()

	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result(), nil
	}
	_, hit, err := c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	res, hit, err := c.GetOrCompute(ctx, "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "dune", res.Hits[0].Document["title"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestComputeErrorsAreNotCached(t *testing.T) {
	c, err := New(nil, Config{LocalSize: 8}, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c, err := New(nil, Config{}, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return result(), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestRemoteTierSharesResults(t *testing.T) {
	remote := newFakeBackend()
	ctx := context.Background()
	first, err := New(remote, Config{IsNil: isMissing}, nil)
	require.NoError(t, err)
	_, _, err = first.GetOrCompute(ctx, "search:books:1:abc", func() (*executor.SearchResult, error) { return result(), nil })
	require.NoError(t, err)

	second, err := New(remote, Config{LocalSize: 4, IsNil: isMissing}, nil)
	require.NoError(t, err)
	res, hit, err := second.GetOrCompute(ctx, "search:books:1:abc", func() (*executor.SearchResult, error) {
		t.Fatal("expected remote hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, result().Facets, res.Facets)
	assert.Equal(t, 1, second.Len(), "remote hits fill the local tier")
}

func TestInvalidateDropsOneCollection(t *testing.T) {
	remote := newFakeBackend()
	ctx := context.Background()
	c, err := New(remote, Config{LocalSize: 8, IsNil: isMissing}, nil)
	require.NoError(t, err)
	c.Set(ctx, "search:books:1:a", result())
	c.Set(ctx, "search:films:1:a", result())

	require.NoError(t, c.Invalidate(ctx, "books"))
	_, ok := c.Get(ctx, "search:books:1:a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "search:films:1:a")
	assert.True(t, ok)
	assert.Len(t, remote.data, 1)
}

func TestBreakerOpensWhenRemoteFails(t *testing.T) {
	remote := newFakeBackend()
	remote.down = true
	m := metrics.New(prometheus.NewRegistry())
	c, err := New(remote, Config{
		IsNil:   isMissing,
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}, m)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	}
	assert.Equal(t, 2, remote.gets, "open breaker short-circuits the backend")
	assert.Equal(t, float64(resilience.StateOpen),
		testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-query-cache")))

	res, hit, err := c.GetOrCompute(ctx, "k", func() (*executor.SearchResult, error) { return result(), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, res.Count)
}
