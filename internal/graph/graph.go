// Package graph writes nodes and edges to a graph store and reads
// committed nodes back for relationship building.
//
// Every write is an upsert keyed on (label, key) for nodes and on
// (kind, source, target) for edges, so replaying a batch is harmless.
// A batch is applied in a single transaction: all of it or none of it.
package graph

import (
	"context"
	"fmt"
	"regexp"
)

// Node is one entity, identified within its label by Key.
type Node struct {
	Key   string
	Props map[string]any
}

// NodeBatch is a set of nodes sharing a label.
type NodeBatch struct {
	Label string
	Nodes []Node
}

// Edge connects two nodes by their keys.
type Edge struct {
	SourceKey string
	TargetKey string
	Props     map[string]any
}

// EdgeBatch is a set of edges of one kind between two labels.
// Edges whose endpoints do not exist are skipped.
type EdgeBatch struct {
	Kind        string
	SourceLabel string
	TargetLabel string
	Edges       []Edge
}

// Store is the write side of a graph database.
type Store interface {
	UpsertNodes(ctx context.Context, batch NodeBatch) error
	UpsertEdges(ctx context.Context, batch EdgeBatch) error
	Close(ctx context.Context) error
}

// NodeReader pages through committed nodes of a label in key order.
type NodeReader interface {
	CountNodes(ctx context.Context, label string) (int, error)
	ReadNodes(ctx context.Context, label string, offset, limit int) ([]Node, error)
}

// Provisioner prepares the store for the given labels, for example by
// creating uniqueness constraints or tables. It must be idempotent.
type Provisioner interface {
	Provision(ctx context.Context, labels []string) error
}

// ReadWriter is a store that can also read nodes back.
type ReadWriter interface {
	Store
	NodeReader
}

// ConnectionError reports a failure to reach the store.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store connection failed: %s: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to splice into a query as a
// label or relationship type.
func ValidIdentifier(s string) bool {
	return identRegex.MatchString(s)
}

func checkIdents(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}
