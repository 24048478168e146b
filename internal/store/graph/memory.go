package graph

import (
	"context"
	"sync"

	"nur/internal/memory"
)

// memoryStore is an in-process Store for tests, mirroring store/vector's
// memoryStore fake: same data, no network, real traversal semantics.
type memoryStore struct {
	mu    sync.Mutex
	nodes map[string]Node
	edges []Edge
}

// NewMemory builds an in-process graph Store.
func NewMemory() Store {
	return &memoryStore{nodes: map[string]Node{}}
}

func (m *memoryStore) UpsertNode(_ context.Context, id string, labels []string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if props == nil {
		props = map[string]any{}
	}
	m.nodes[id] = Node{ID: id, Labels: labels, Props: props}
	return nil
}

func (m *memoryStore) UpsertEdge(_ context.Context, srcID, rel, dstID string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if props == nil {
		props = map[string]any{}
	}
	for i, e := range m.edges {
		if e.Source == srcID && e.Rel == rel && e.Target == dstID {
			m.edges[i].Props = props
			return nil
		}
	}
	m.edges = append(m.edges, Edge{Source: srcID, Rel: rel, Target: dstID, Props: props})
	return nil
}

func (m *memoryStore) GetNode(_ context.Context, id string) (Node, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

func (m *memoryStore) Neighbors(_ context.Context, id string, rel string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.edges {
		if e.Source == id && e.Rel == rel {
			out = append(out, e.Target)
		}
	}
	return out, nil
}

func (m *memoryStore) touchingEdges(_ context.Context, id string, rels []string) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Edge
	for _, e := range m.edges {
		if (e.Source != id && e.Target != id) || !containsStr(rels, e.Rel) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func containsStr(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func (m *memoryStore) Expand(ctx context.Context, seedIDs []string, maxHops int, filters Filters, budget int) ([]Item, error) {
	return bfsExpand(ctx, seedIDs, maxHops, filters, budget, m.GetNode, m.touchingEdges)
}

func (m *memoryStore) Close() error { return nil }

var _ Store = (*memoryStore)(nil)
var _ Store = (*postgresStore)(nil)
