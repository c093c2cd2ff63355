package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds pool settings for the Postgres graph tables.
type PostgresConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	label      TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	props      JSONB       NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (label, key)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	kind         TEXT        NOT NULL,
	source_label TEXT        NOT NULL,
	source_key   TEXT        NOT NULL,
	target_label TEXT        NOT NULL,
	target_key   TEXT        NOT NULL,
	props        JSONB       NOT NULL DEFAULT '{}',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, source_label, source_key, target_label, target_key)
);

CREATE INDEX IF NOT EXISTS graph_edges_target_idx ON graph_edges (target_label, target_key);
`

const upsertNodeSQL = `
INSERT INTO graph_nodes (label, key, props)
VALUES ($1, $2, $3)
ON CONFLICT (label, key)
DO UPDATE SET props = graph_nodes.props || EXCLUDED.props, updated_at = now()`

const upsertEdgeSQL = `
INSERT INTO graph_edges (kind, source_label, source_key, target_label, target_key, props)
SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::jsonb
WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE label = $2::text AND key = $3::text)
  AND EXISTS (SELECT 1 FROM graph_nodes WHERE label = $4::text AND key = $5::text)
ON CONFLICT (kind, source_label, source_key, target_label, target_key)
DO UPDATE SET props = graph_edges.props || EXCLUDED.props, updated_at = now()`

// PostgresStore keeps the graph in two tables: graph_nodes and
// graph_edges, with properties as JSONB. Each batch runs in one
// transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates the pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Backend: "postgres", Err: fmt.Errorf("parse database URL: %w", err)}
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{Backend: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectionError{Backend: "postgres", Err: err}
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the pool.
func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Provision creates the graph tables. Labels need no per-label setup.
func (s *PostgresStore) Provision(ctx context.Context, _ []string) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create graph tables: %w", err)
	}
	return nil
}

// UpsertNodes merges node properties in one transaction.
func (s *PostgresStore) UpsertNodes(ctx context.Context, batch NodeBatch) error {
	if len(batch.Nodes) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, n := range batch.Nodes {
			props := n.Props
			if props == nil {
				props = map[string]any{}
			}
			b.Queue(upsertNodeSQL, batch.Label, n.Key, props)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// UpsertEdges merges edges whose endpoints exist, in one transaction.
func (s *PostgresStore) UpsertEdges(ctx context.Context, batch EdgeBatch) error {
	if len(batch.Edges) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, e := range batch.Edges {
			props := e.Props
			if props == nil {
				props = map[string]any{}
			}
			b.Queue(upsertEdgeSQL, batch.Kind, batch.SourceLabel, e.SourceKey, batch.TargetLabel, e.TargetKey, props)
		}
		return tx.SendBatch(ctx, b).Close()
	})
}

// CountNodes returns the number of nodes with label.
func (s *PostgresStore) CountNodes(ctx context.Context, label string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM graph_nodes WHERE label = $1`, label).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return n, nil
}

// ReadNodes returns a page of nodes ordered by key.
func (s *PostgresStore) ReadNodes(ctx context.Context, label string, offset, limit int) ([]Node, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, props FROM graph_nodes WHERE label = $1 ORDER BY key OFFSET $2 LIMIT $3`,
		label, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}

	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Node, error) {
		var n Node
		err := row.Scan(&n.Key, &n.Props)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}
	return nodes, nil
}
