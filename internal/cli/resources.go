package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/graphload/internal/config"
	"github.com/JonMunkholm/graphload/internal/core"
	"github.com/JonMunkholm/graphload/internal/graph"
	"github.com/JonMunkholm/graphload/internal/metrics"
	"github.com/JonMunkholm/graphload/internal/progress"
	"github.com/JonMunkholm/graphload/internal/retry"
	"github.com/JonMunkholm/graphload/internal/source"
)

// checkpoint is an opened checkpoint backend and its cleanup.
type checkpoint struct {
	backend progress.Backend
	close   func() error
}

// openCheckpoint opens the configured backend without reading it.
func openCheckpoint(cfg *config.Config) (*checkpoint, error) {
	path := cfg.Import.CheckpointPath
	switch cfg.Import.CheckpointBackend {
	case "sqlite":
		b, err := progress.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return &checkpoint{backend: b, close: b.Close}, nil
	default:
		return &checkpoint{backend: progress.NewFileBackend(path), close: func() error { return nil }}, nil
	}
}

// openCheckpointRecovering opens the configured backend, discarding a
// SQLite checkpoint that is not a database. Callers hold the checkpoint lock.
func openCheckpointRecovering(cfg *config.Config) (*checkpoint, error) {
	cp, err := openCheckpoint(cfg)
	if err == nil || !progress.IsCorrupt(err) {
		return cp, err
	}
	path := cfg.Import.CheckpointPath
	slog.Warn("discarding unreadable checkpoint", "location", path, "error", err)
	if err := progress.RemoveSQLite(path); err != nil {
		return nil, &core.ConfigError{Op: "remove checkpoint", Err: err}
	}
	return openCheckpoint(cfg)
}

// lock takes the advisory lock when the backend supports one.
func (c *checkpoint) lock() (func() error, error) {
	l, ok := c.backend.(progress.Locker)
	if !ok {
		return func() error { return nil }, nil
	}
	return lockErr(l.Lock())
}

// lockCheckpoint takes the advisory lock on path without opening the
// checkpoint itself.
func lockCheckpoint(path string) (func() error, error) {
	return lockErr(progress.LockCheckpoint(path))
}

func lockErr(release func() error, err error) (func() error, error) {
	if err != nil {
		if errors.Is(err, progress.ErrLocked) {
			return nil, &core.ConfigError{Op: "lock checkpoint", Err: err}
		}
		return nil, err
	}
	return release, nil
}

// openStore connects to the configured graph store and provisions labels
// when STORE_PROVISION is set.
func openStore(ctx context.Context, cfg *config.Config, labels []string) (graph.ReadWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()

	var (
		store graph.ReadWriter
		err   error
	)
	switch cfg.Store.Backend {
	case "memory":
		store = graph.NewMemoryStore()
	case "postgres":
		store, err = graph.OpenPostgres(ctx, graph.PostgresConfig{
			URL:      cfg.Store.DatabaseURL,
			MaxConns: cfg.Store.MaxConns,
		})
	case "neo4j":
		store, err = graph.OpenNeo4j(ctx, graph.Neo4jConfig{
			URI:      cfg.Store.Neo4jURI,
			Username: cfg.Store.Neo4jUsername,
			Password: cfg.Store.Neo4jPassword,
			Database: cfg.Store.Neo4jDatabase,
		})
	default:
		return nil, &core.ConfigError{Op: "open store", Err: fmt.Errorf("unknown store backend %q", cfg.Store.Backend)}
	}
	if err != nil {
		return nil, err
	}

	if p, ok := store.(graph.Provisioner); ok && cfg.Store.Provision {
		if err := p.Provision(ctx, labels); err != nil {
			store.Close(context.WithoutCancel(ctx))
			return nil, &graph.ConnectionError{Backend: cfg.Store.Backend, Err: err}
		}
		slog.Info("store provisioned", "backend", cfg.Store.Backend, "labels", len(labels))
	}
	return store, nil
}

func openSource(cfg *config.Config) (source.Opener, error) {
	opener, err := source.NewOpener(cfg.Import.DataDir, source.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, &core.ConfigError{Op: "open data dir", Err: err}
	}
	return opener, nil
}

// pipelineOptions translates the configuration into pipeline options.
func pipelineOptions(cfg *config.Config, m *metrics.Metrics) []core.Option {
	opts := []core.Option{
		core.WithBatchSize(cfg.Import.BatchSize),
		core.WithMetrics(m),
		core.WithMinInterval(cfg.Import.MinInterval),
		core.WithProximityRadius(cfg.Import.ProximityRadius),
	}
	if cfg.Retry.Attempts > 0 {
		backoff := retry.NewExponentialBackoff(cfg.Retry.Attempts,
			retry.WithInitialDelay(cfg.Retry.InitialDelay),
			retry.WithMaxDelay(cfg.Retry.MaxDelay),
			retry.WithJitter(0.1),
		)
		opts = append(opts, core.WithRetry(retry.NewExecutor(retry.StoreErrorClassifier{}, backoff)))
	}
	return opts
}

func labels(ds core.Dataset) []string {
	out := make([]string, 0, len(ds.Kinds))
	seen := make(map[string]bool, len(ds.Kinds))
	for _, k := range ds.Kinds {
		if !seen[k.Label] {
			seen[k.Label] = true
			out = append(out, k.Label)
		}
	}
	return out
}

func closeStore(store graph.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		slog.Warn("close store", "error", err)
	}
}
