// Package cache memoizes search results in two tiers: an in-process LRU and
// an optional shared Redis tier. Keys carry the collection's generation, so a
// mutation makes every earlier entry unreachable without an explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the shared tier; *redis.Client satisfies it.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Config struct {
	// LocalSize is the LRU capacity; zero disables the local tier.
	LocalSize int
	TTL       time.Duration
	// IsNil recognizes the backend's key-not-found error.
	IsNil   func(error) bool
	Breaker resilience.CircuitBreakerConfig
}

// QueryCache results are shared between callers and must not be modified.
type QueryCache struct {
	local   *lru.Cache[string, *executor.SearchResult]
	remote  Backend
	breaker *resilience.CircuitBreaker
	cfg     Config
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a cache. remote may be nil for a local-only cache.
func New(remote Backend, cfg Config, m *metrics.Metrics) (*QueryCache, error) {
	c := &QueryCache{
		remote:  remote,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	if cfg.LocalSize > 0 {
		local, err := lru.New[string, *executor.SearchResult](cfg.LocalSize)
		if err != nil {
			return nil, fmt.Errorf("creating local cache: %w", err)
		}
		c.local = local
	}
	if remote != nil {
		bcfg := cfg.Breaker
		if m != nil {
			next := bcfg.OnStateChange
			bcfg.OnStateChange = func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				if next != nil {
					next(name, to)
				}
			}
		}
		c.breaker = resilience.NewCircuitBreaker("redis-query-cache", bcfg)
	}
	return c, nil
}

// Key identifies a search of one collection generation. Params are hashed
// from their JSON form, which orders map keys, so equal requests share a key.
func Key(collection string, generation uint64, p parser.Params) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding search params: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, collection, generation, sum[:16]), nil
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if c.local != nil {
		if res, ok := c.local.Get(key); ok {
			return res, true
		}
	}
	if c.remote == nil {
		return nil, false
	}

	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.remote.GetBytes(ctx, key)
		if c.isNil(err) {
			data, err = nil, nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var res executor.SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	if c.local != nil {
		c.local.Add(key, &res)
	}
	return &res, true
}

func (c *QueryCache) Set(ctx context.Context, key string, res *executor.SearchResult) {
	if c.local != nil {
		c.local.Add(key, res)
	}
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.remote.Set(ctx, key, data, c.cfg.TTL)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once for
// all concurrent callers of the same key. The bool reports a cache hit.
// Failed computations are not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if res, ok := c.Get(ctx, key); ok {
		c.hit()
		return res, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if res, ok := c.Get(ctx, key); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, res)
		return res, nil
	})
	c.miss()
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every entry of collection from both tiers.
func (c *QueryCache) Invalidate(ctx context.Context, collection string) error {
	prefix := keyPrefix + collection + ":"
	if c.local != nil {
		for _, key := range c.local.Keys() {
			if strings.HasPrefix(key, prefix) {
				c.local.Remove(key)
			}
		}
	}
	if c.remote == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.remote.FlushByPattern(ctx, prefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", collection, err)
	}
	c.logger.Debug("cache invalidated", "collection", collection, "keys_deleted", deleted)
	return nil
}

// Len is the number of entries in the local tier.
func (c *QueryCache) Len() int {
	if c.local == nil {
		return 0
	}
	return c.local.Len()
}

func (c *QueryCache) isNil(err error) bool {
	return err != nil && c.cfg.IsNil != nil && c.cfg.IsNil(err)
}

func (c *QueryCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
