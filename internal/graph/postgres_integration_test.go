//go:build integration

package graph

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/graphload/internal/testinfra"
)

var pgContainer *testinfra.PostgresContainer

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := testinfra.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}
	pgContainer = ctr

	code := m.Run()

	pgContainer.Terminate(ctx) //nolint:errcheck
	os.Exit(code)
}

func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	s, err := OpenPostgres(ctx, PostgresConfig{URL: pgContainer.ConnString, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(ctx) })

	require.NoError(t, s.Provision(ctx, []string{"Route", "Trip"}))
	_, err = s.pool.Exec(ctx, `TRUNCATE graph_nodes, graph_edges`)
	require.NoError(t, err)
	return s
}

func TestPostgresUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	batch := NodeBatch{Label: "Route", Nodes: []Node{
		{Key: "R1", Props: map[string]any{"route_id": "R1", "route_type": int64(3)}},
		{Key: "R2", Props: map[string]any{"route_id": "R2", "route_type": int64(1)}},
	}}
	require.NoError(t, s.UpsertNodes(ctx, batch))
	require.NoError(t, s.UpsertNodes(ctx, batch))

	n, err := s.CountNodes(ctx, "Route")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	nodes, err := s.ReadNodes(ctx, "Route", 1, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "R2", nodes[0].Key)
	assert.Equal(t, "R2", nodes[0].Props["route_id"])
}

func TestPostgresEdgesSkipMissingEndpoints(t *testing.T) {
	ctx := context.Background()
	s := openTestPostgres(t)

	require.NoError(t, s.UpsertNodes(ctx, NodeBatch{Label: "Route", Nodes: []Node{{Key: "R1"}}}))
	require.NoError(t, s.UpsertNodes(ctx, NodeBatch{Label: "Trip", Nodes: []Node{{Key: "T1"}}}))

	edges := EdgeBatch{Kind: "HAS_TRIP", SourceLabel: "Route", TargetLabel: "Trip", Edges: []Edge{
		{SourceKey: "R1", TargetKey: "T1"},
		{SourceKey: "R1", TargetKey: "T404"},
	}}
	require.NoError(t, s.UpsertEdges(ctx, edges))
	require.NoError(t, s.UpsertEdges(ctx, edges))

	var count int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM graph_edges WHERE kind = 'HAS_TRIP'`).Scan(&count))
	assert.Equal(t, 1, count)
}
