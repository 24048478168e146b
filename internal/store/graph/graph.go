// Package graph implements C3/C10: a property-graph client over a single
// named graph, MERGE-style upserts keyed by (label, id) for nodes and
// (type, src, dst) for edges, and a bounded breadth-first expand() used by
// retrieval to attach related_context.
package graph

import (
	"context"

	"nur/internal/memory"
)

// Node mirrors the teacher's Node shape (id, labels, props) generalized to
// carry Entity/Event vertices instead of manifold's generic graph payload.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Edge is one ACTED_IN/ABOUT/POSSIBLY_SAME relationship.
type Edge struct {
	Source string
	Rel    string
	Target string
	Props  map[string]any
}

// Filters scope expand() to matching event categories / entity types, and
// gate which POSSIBLY_SAME edges are worth following.
type Filters struct {
	EventCategories       []memory.EventCategory
	EntityTypes           []memory.EntityType
	PossiblySameThreshold float64
}

// Item is one node returned by Expand, along with how it was reached.
type Item struct {
	ID    string
	Type  string // memory.LabelEntity or memory.LabelEvent
	Hops  float64
	Path  []string
}

// Store is the graph client every other package depends on.
type Store interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	GetNode(ctx context.Context, id string) (Node, bool, error)
	Neighbors(ctx context.Context, id string, rel string) ([]string, error)
	// Expand performs a bounded BFS from seedIDs per spec §4.10: hop 1 to
	// linked entities via ACTED_IN/ABOUT (either direction), hop 2 to other
	// events linked to those entities, and an optional POSSIBLY_SAME
	// half-hop between entities when its score clears
	// filters.PossiblySameThreshold. Truncates at budget nodes in BFS order.
	Expand(ctx context.Context, seedIDs []string, maxHops int, filters Filters, budget int) ([]Item, error)
	Close() error
}
