package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the Kafka document consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("searchd")
	log.Info("starting search service", "port", cfg.Server.Port, "collections", len(cfg.Collections))

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.StartServer(fmt.Sprintf(":%d", cfg.Metrics.Port), m)
		if err != nil {
			return err
		}
		defer metricsServer.Shutdown(context.Background())
	}
	checker := health.NewChecker(2 * time.Second)

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		client, err := resilience.RetryValue(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}, func() (*pkgredis.Client, error) {
			return pkgredis.NewClient(ctx, cfg.Redis)
		})
		switch {
		case err == nil:
			redisClient = client
			defer redisClient.Close()
			checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
		case cfg.Snapshot.Backend == "redis":
			return fmt.Errorf("connecting to redis for snapshots: %w", err)
		default:
			log.Warn("redis unavailable, shared search cache disabled", "error", err)
		}
	}

	var pg *postgres.Client
	if cfg.Store.Backend == "postgres" {
		var err error
		pg, err = resilience.RetryValue(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond}, func() (*postgres.Client, error) {
			return postgres.New(ctx, cfg.Postgres)
		})
		if err != nil {
			return err
		}
		defer pg.Close()
		checker.Register("postgres", health.Ping(pg.Ping, health.StatusDown))
	}

	reg, err := buildRegistry(ctx, cfg, pg, m)
	if err != nil {
		return err
	}
	defer reg.Close()
	checker.Register("collections", func(ctx context.Context) health.ComponentHealth {
		names := reg.Names()
		if len(names) == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no collections configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d collections", len(names))}
	})

	snapshots := snapshotStore(cfg, redisClient)
	if err := warmUp(ctx, cfg, reg, snapshots); err != nil {
		return err
	}

	cacheCfg := cache.Config{LocalSize: cfg.Search.LocalCacheSize, TTL: cfg.Redis.CacheTTL, IsNil: pkgredis.IsNilError}
	var queryCache *cache.QueryCache
	if redisClient != nil {
		queryCache, err = cache.New(redisClient, cacheCfg, m)
	} else {
		queryCache, err = cache.New(nil, cacheCfg, m)
	}
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, consumer.HandleMessage(reg, m), consumer.ReportLag(m))
		ic := consumer.New(kc)
		go func() {
			if err := ic.Start(ctx); err != nil {
				log.Error("index consumer stopped", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.New(reg, handler.Options{
		Cache:        queryCache,
		Snapshots:    snapshots,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		SlowQuery:    cfg.Search.SlowQuery,
	}).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Timeout(cfg.Server.RequestTimeout),
			middleware.Metrics(m),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if cfg.Snapshot.SaveOnShutdown {
		if err := reg.SaveAll(shutdownCtx, snapshots); err != nil {
			log.Error("saving snapshots on shutdown failed", "error", err)
		}
	}
	log.Info("search service stopped")
	return nil
}

// buildRegistry creates one collection per configured schema file, in name
// order.
func buildRegistry(ctx context.Context, cfg *config.Config, pg *postgres.Client, m *metrics.Metrics) (*collection.Registry, error) {
	names := make([]string, 0, len(cfg.Collections))
	for name := range cfg.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := collection.NewRegistry()
	for _, name := range names {
		col := cfg.Collections[name]
		s, err := schema.LoadFile(col.SchemaFile)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		lang := col.Language
		if lang == "" {
			lang = cfg.Index.DefaultLanguage
		}
		tok, err := tokenizer.New(tokenizer.Config{
			Language:     lang,
			Stemming:     cfg.Index.Stemming,
			StopWords:    cfg.Index.StopWords,
			SkipStemming: cfg.Index.SkipStemming,
		})
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		docs, err := documentStore(ctx, cfg, pg, name)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		c, err := collection.New(indexer.Options{
			Name:      name,
			Schema:    s,
			Language:  lang,
			Tokenizer: tok,
			Store:     docs,
			Sort:      sorter.Config{Disabled: col.SortDisabled, UnsortableProperties: col.UnsortableProperties},
			BatchSize: cfg.Index.BatchSize,
			IDs:       indexer.NewIDGenerator(cfg.Index.IDGenerator),
			Ranking:   ranker.Params{K1: cfg.Search.BM25K1, B: cfg.Search.BM25B},
			Metrics:   m,
		})
		if err == nil {
			err = reg.Add(c)
		}
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return reg, nil
}

func documentStore(ctx context.Context, cfg *config.Config, pg *postgres.Client, name string) (store.DocumentStore, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.Store.SQLitePath, name)
	case "postgres":
		return store.NewPostgres(ctx, pg, name)
	default:
		return store.NewMemory(), nil
	}
}

func snapshotStore(cfg *config.Config, redisClient *pkgredis.Client) snapshot.Store {
	if cfg.Snapshot.Backend == "redis" && redisClient != nil {
		return snapshot.NewRedisStore(redisClient, cfg.Snapshot.RedisPrefix, 0, pkgredis.IsNilError)
	}
	return snapshot.NewFileStore(cfg.Snapshot.Dir)
}

// warmUp restores snapshots when configured. Collections backed by a
// persistent store and left without a snapshot are rebuilt from the store.
func warmUp(ctx context.Context, cfg *config.Config, reg *collection.Registry, snapshots snapshot.Store) error {
	for _, name := range reg.Names() {
		c, err := reg.Get(name)
		if err != nil {
			return err
		}
		restored := false
		if cfg.Snapshot.LoadOnStart {
			if restored, err = collection.RestoreFrom(ctx, c, snapshots); err != nil {
				return fmt.Errorf("restoring %s: %w", name, err)
			}
		}
		if restored || cfg.Store.Backend == "memory" {
			continue
		}
		n, err := c.Reindex(ctx)
		if err != nil {
			return fmt.Errorf("reindexing %s: %w", name, err)
		}
		slog.Info("collection rebuilt from store", "collection", name, "documents", n)
	}
	return nil
}
