package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore writes to Neo4j with UNWIND batches inside managed write
// transactions. Nodes carry their natural key in the "key" property.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// OpenNeo4j connects and verifies connectivity.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, &ConnectionError{Backend: "neo4j", Err: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, &ConnectionError{Backend: "neo4j", Err: err}
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// UpsertNodes merges every node on (label, key) and overwrites the
// supplied properties.
func (s *Neo4jStore) UpsertNodes(ctx context.Context, batch NodeBatch) error {
	if err := checkIdents(batch.Label); err != nil {
		return err
	}
	if len(batch.Nodes) == 0 {
		return nil
	}

	rows := make([]any, len(batch.Nodes))
	for i, n := range batch.Nodes {
		rows[i] = map[string]any{"key": n.Key, "props": n.Props}
	}

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MERGE (n:%s {key: row.key})
		SET n += row.props
	`, batch.Label)

	return s.write(ctx, query, map[string]any{"rows": rows})
}

// UpsertEdges merges every edge between existing endpoints. Rows whose
// endpoints are missing match nothing and are skipped.
func (s *Neo4jStore) UpsertEdges(ctx context.Context, batch EdgeBatch) error {
	if err := checkIdents(batch.Kind, batch.SourceLabel, batch.TargetLabel); err != nil {
		return err
	}
	if len(batch.Edges) == 0 {
		return nil
	}

	rows := make([]any, len(batch.Edges))
	for i, e := range batch.Edges {
		props := e.Props
		if props == nil {
			props = map[string]any{}
		}
		rows[i] = map[string]any{"source": e.SourceKey, "target": e.TargetKey, "props": props}
	}

	query := fmt.Sprintf(`
		UNWIND $rows AS row
		MATCH (a:%s {key: row.source})
		MATCH (b:%s {key: row.target})
		MERGE (a)-[r:%s]->(b)
		SET r += row.props
	`, batch.SourceLabel, batch.TargetLabel, batch.Kind)

	return s.write(ctx, query, map[string]any{"rows": rows})
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

// CountNodes returns the number of nodes with label.
func (s *Neo4jStore) CountNodes(ctx context.Context, label string) (int, error) {
	if err := checkIdents(label); err != nil {
		return 0, err
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	count, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, fmt.Sprintf(`MATCH (n:%s) RETURN count(n) AS c`, label), nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		c, _ := record.Get("c")
		return c, nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}

	n, ok := count.(int64)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected result %T", label, count)
	}
	return int(n), nil
}

// ReadNodes returns a page of nodes ordered by key.
func (s *Neo4jStore) ReadNodes(ctx context.Context, label string, offset, limit int) ([]Node, error) {
	if err := checkIdents(label); err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (n:%s)
		RETURN n.key AS key, properties(n) AS props
		ORDER BY n.key
		SKIP $offset LIMIT $limit
	`, label)

	nodes, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"offset": int64(offset), "limit": int64(limit)})
		if err != nil {
			return nil, err
		}

		var out []Node
		for result.Next(ctx) {
			record := result.Record()
			key, _ := record.Get("key")
			props, _ := record.Get("props")
			k, _ := key.(string)
			p, _ := props.(map[string]any)
			out = append(out, Node{Key: k, Props: p})
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}
	return nodes.([]Node), nil
}

// Provision creates a uniqueness constraint on key for each label.
func (s *Neo4jStore) Provision(ctx context.Context, labels []string) error {
	for _, label := range labels {
		if err := checkIdents(label); err != nil {
			return err
		}
		query := fmt.Sprintf(
			`CREATE CONSTRAINT %s_key_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.key IS UNIQUE`,
			toSnake(label), label,
		)
		if err := s.write(ctx, query, nil); err != nil {
			return fmt.Errorf("create constraint for %s: %w", label, err)
		}
	}
	return nil
}

func toSnake(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
