package graph

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and dry runs.
// It records every write call so callers can assert what was sent.
type MemoryStore struct {
	mu    sync.Mutex
	nodes map[string]map[string]map[string]any
	edges map[edgeID]map[string]any

	nodeCalls []NodeBatch
	edgeCalls []EdgeBatch
	dangling  int

	// FailNodes, when set, is consulted before each node batch is applied.
	// A non-nil error aborts the batch without applying any of it.
	FailNodes func(NodeBatch) error
	// FailEdges is the edge counterpart of FailNodes.
	FailEdges func(EdgeBatch) error
}

type edgeID struct {
	kind, sourceLabel, sourceKey, targetLabel, targetKey string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]map[string]any),
		edges: make(map[edgeID]map[string]any),
	}
}

// UpsertNodes merges props into existing nodes or creates them.
func (m *MemoryStore) UpsertNodes(_ context.Context, batch NodeBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodeCalls = append(m.nodeCalls, batch)
	if m.FailNodes != nil {
		if err := m.FailNodes(batch); err != nil {
			return err
		}
	}

	byKey, ok := m.nodes[batch.Label]
	if !ok {
		byKey = make(map[string]map[string]any)
		m.nodes[batch.Label] = byKey
	}
	for _, n := range batch.Nodes {
		props, ok := byKey[n.Key]
		if !ok {
			props = map[string]any{"key": n.Key}
			byKey[n.Key] = props
		}
		for k, v := range n.Props {
			props[k] = v
		}
	}
	return nil
}

// UpsertEdges creates or updates edges whose endpoints exist.
func (m *MemoryStore) UpsertEdges(_ context.Context, batch EdgeBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.edgeCalls = append(m.edgeCalls, batch)
	if m.FailEdges != nil {
		if err := m.FailEdges(batch); err != nil {
			return err
		}
	}

	for _, e := range batch.Edges {
		_, srcOK := m.nodes[batch.SourceLabel][e.SourceKey]
		_, dstOK := m.nodes[batch.TargetLabel][e.TargetKey]
		if !srcOK || !dstOK {
			m.dangling++
			continue
		}
		id := edgeID{batch.Kind, batch.SourceLabel, e.SourceKey, batch.TargetLabel, e.TargetKey}
		props, ok := m.edges[id]
		if !ok {
			props = make(map[string]any)
			m.edges[id] = props
		}
		for k, v := range e.Props {
			props[k] = v
		}
	}
	return nil
}

// CountNodes returns the number of nodes with label.
func (m *MemoryStore) CountNodes(_ context.Context, label string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes[label]), nil
}

// ReadNodes returns a page of nodes ordered by key.
func (m *MemoryStore) ReadNodes(_ context.Context, label string, offset, limit int) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := m.nodes[label]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if offset >= len(keys) {
		return nil, nil
	}
	end := min(offset+limit, len(keys))

	out := make([]Node, 0, end-offset)
	for _, k := range keys[offset:end] {
		out = append(out, Node{Key: k, Props: copyProps(byKey[k])})
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close(context.Context) error { return nil }

// Node returns a copy of the node's properties.
func (m *MemoryStore) Node(label, key string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	props, ok := m.nodes[label][key]
	if !ok {
		return nil, false
	}
	return copyProps(props), true
}

// NodeCount returns the total number of nodes across labels.
func (m *MemoryStore) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, byKey := range m.nodes {
		n += len(byKey)
	}
	return n
}

// EdgeCount returns the number of edges of the given kind.
func (m *MemoryStore) EdgeCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.edges {
		if id.kind == kind {
			n++
		}
	}
	return n
}

// EdgesFrom returns the target keys of kind edges leaving sourceKey.
func (m *MemoryStore) EdgesFrom(kind, sourceKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.edges {
		if id.kind == kind && id.sourceKey == sourceKey {
			out = append(out, id.targetKey)
		}
	}
	sort.Strings(out)
	return out
}

// EdgesTo returns the source keys of kind edges arriving at targetKey.
func (m *MemoryStore) EdgesTo(kind, targetKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.edges {
		if id.kind == kind && id.targetKey == targetKey {
			out = append(out, id.sourceKey)
		}
	}
	sort.Strings(out)
	return out
}

// EdgeProps returns the properties of one edge.
func (m *MemoryStore) EdgeProps(kind, sourceKey, targetKey string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, props := range m.edges {
		if id.kind == kind && id.sourceKey == sourceKey && id.targetKey == targetKey {
			return copyProps(props), true
		}
	}
	return nil, false
}

// NodeCalls returns every node batch passed to UpsertNodes, including
// failed ones, in call order.
func (m *MemoryStore) NodeCalls() []NodeBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NodeBatch(nil), m.nodeCalls...)
}

// EdgeCalls returns every edge batch passed to UpsertEdges in call order.
func (m *MemoryStore) EdgeCalls() []EdgeBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EdgeBatch(nil), m.edgeCalls...)
}

// Dangling returns how many edges were skipped for missing endpoints.
func (m *MemoryStore) Dangling() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dangling
}

// ResetCalls forgets recorded calls without touching stored data.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeCalls = nil
	m.edgeCalls = nil
}

func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
