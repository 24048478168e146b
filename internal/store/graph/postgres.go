package graph

import (
	"container/list"
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"nur/internal/memory"
)

// postgresStore is grounded on the teacher's
// internal/persistence/databases/postgres_graph.go pgGraph: the same
// nodes(id, labels, props)/edges(source, rel, target, props) MERGE-style
// schema, scoped by a graph_name column so more than one named graph could
// share the tables (spec names exactly one, "nur", but the column costs
// nothing and matches the teacher's multi-tenant posture elsewhere).
type postgresStore struct {
	pool      *pgxpool.Pool
	graphName string
}

// NewPostgres bootstraps the nodes/edges tables (best-effort, like the
// teacher) and returns a Store scoped to graphName.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, graphName string) (Store, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			graph_name TEXT NOT NULL,
			id TEXT NOT NULL,
			labels TEXT[] NOT NULL DEFAULT '{}',
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (graph_name, id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			graph_name TEXT NOT NULL,
			source TEXT NOT NULL,
			rel TEXT NOT NULL,
			target TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (graph_name, source, rel, target)
		)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_src_rel ON graph_edges(graph_name, source, rel)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_dst_rel ON graph_edges(graph_name, target, rel)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, memory.NewStorageError("bootstrap graph schema", err)
		}
	}
	return &postgresStore{pool: pool, graphName: graphName}, nil
}

func (g *postgresStore) UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
		INSERT INTO graph_nodes (graph_name, id, labels, props) VALUES ($1,$2,$3,$4)
		ON CONFLICT (graph_name, id) DO UPDATE SET labels = EXCLUDED.labels, props = EXCLUDED.props`,
		g.graphName, id, labels, props)
	if err != nil {
		return memory.NewStorageError("upsert graph node", err)
	}
	return nil
}

func (g *postgresStore) UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	_, err := g.pool.Exec(ctx, `
		INSERT INTO graph_edges (graph_name, source, rel, target, props) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (graph_name, source, rel, target) DO UPDATE SET props = EXCLUDED.props`,
		g.graphName, srcID, rel, dstID, props)
	if err != nil {
		return memory.NewStorageError("upsert graph edge", err)
	}
	return nil
}

func (g *postgresStore) GetNode(ctx context.Context, id string) (Node, bool, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT labels, props FROM graph_nodes WHERE graph_name = $1 AND id = $2`, g.graphName, id)
	var labels []string
	var rawProps []byte
	if err := row.Scan(&labels, &rawProps); err != nil {
		return Node{}, false, nil
	}
	props := map[string]any{}
	if len(rawProps) > 0 {
		_ = json.Unmarshal(rawProps, &props)
	}
	return Node{ID: id, Labels: labels, Props: props}, true, nil
}

func (g *postgresStore) Neighbors(ctx context.Context, id string, rel string) ([]string, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT target FROM graph_edges WHERE graph_name = $1 AND source = $2 AND rel = $3 ORDER BY target`,
		g.graphName, id, rel)
	if err != nil {
		return nil, memory.NewStorageError("query neighbors", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, memory.NewStorageError("scan neighbor", err)
		}
		out = append(out, target)
	}
	return out, nil
}

// touchingEdges returns every edge with id at either end whose rel is in
// rels, since hop 1/2 traversal follows ACTED_IN/ABOUT in either direction.
func (g *postgresStore) touchingEdges(ctx context.Context, id string, rels []string) ([]Edge, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT source, rel, target, props FROM graph_edges
		WHERE graph_name = $1 AND rel = ANY($2) AND (source = $3 OR target = $3)`,
		g.graphName, rels, id)
	if err != nil {
		return nil, memory.NewStorageError("query touching edges", err)
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		var rawProps []byte
		if err := rows.Scan(&e.Source, &e.Rel, &e.Target, &rawProps); err != nil {
			return nil, memory.NewStorageError("scan touching edge", err)
		}
		e.Props = map[string]any{}
		if len(rawProps) > 0 {
			_ = json.Unmarshal(rawProps, &e.Props)
		}
		out = append(out, e)
	}
	return out, nil
}

func (g *postgresStore) Expand(ctx context.Context, seedIDs []string, maxHops int, filters Filters, budget int) ([]Item, error) {
	return bfsExpand(ctx, seedIDs, maxHops, filters, budget, g.GetNode, g.touchingEdges)
}

func (g *postgresStore) Close() error { return nil }

// bfsExpand is the traversal core, shared by the postgres and in-memory
// backends so the algorithm is tested once against the fake and trusted
// identically against postgres.
func bfsExpand(
	ctx context.Context,
	seedIDs []string,
	maxHops int,
	filters Filters,
	budget int,
	getNode func(context.Context, string) (Node, bool, error),
	touching func(context.Context, string, []string) ([]Edge, error),
) ([]Item, error) {
	if budget <= 0 {
		budget = 50
	}
	type queued struct {
		id   string
		hop  float64
		path []string
	}

	visited := map[string]bool{}
	queue := list.New()
	for _, seed := range seedIDs {
		visited[seed] = true
		queue.PushBack(queued{id: seed, hop: 0, path: []string{seed}})
	}

	var results []Item
	for queue.Len() > 0 && len(results) < budget {
		front := queue.Remove(queue.Front()).(queued)
		if front.hop >= float64(maxHops) {
			continue
		}

		node, ok, err := getNode(ctx, front.id)
		if err != nil {
			return nil, err
		}
		isEntity := ok && hasLabel(node.Labels, memory.LabelEntity)

		edges, err := touching(ctx, front.id, []string{memory.EdgeActedIn, memory.EdgeAbout})
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			neighbor := e.Target
			if neighbor == front.id {
				neighbor = e.Source
			}
			if visited[neighbor] {
				continue
			}
			nextHop := front.hop + 1
			if nextHop > float64(maxHops) {
				continue
			}
			nNode, nOK, err := getNode(ctx, neighbor)
			if err != nil {
				return nil, err
			}
			if !nOK || !passesFilters(nNode, filters) {
				continue
			}
			visited[neighbor] = true
			path := append(append([]string{}, front.path...), neighbor)
			results = append(results, Item{ID: neighbor, Type: primaryLabel(nNode.Labels), Hops: nextHop, Path: path})
			queue.PushBack(queued{id: neighbor, hop: nextHop, path: path})
			if len(results) >= budget {
				break
			}
		}
		if len(results) >= budget {
			break
		}

		if !isEntity || filters.PossiblySameThreshold <= 0 {
			continue
		}
		psEdges, err := touching(ctx, front.id, []string{memory.EdgePossiblySame})
		if err != nil {
			return nil, err
		}
		for _, e := range psEdges {
			score, _ := e.Props["score"].(float64)
			if score < filters.PossiblySameThreshold {
				continue
			}
			neighbor := e.Target
			if neighbor == front.id {
				neighbor = e.Source
			}
			if visited[neighbor] {
				continue
			}
			nextHop := front.hop + 0.5
			if nextHop > float64(maxHops) {
				continue
			}
			nNode, nOK, err := getNode(ctx, neighbor)
			if err != nil {
				return nil, err
			}
			if !nOK || !passesFilters(nNode, filters) {
				continue
			}
			visited[neighbor] = true
			path := append(append([]string{}, front.path...), neighbor)
			results = append(results, Item{ID: neighbor, Type: primaryLabel(nNode.Labels), Hops: nextHop, Path: path})
			queue.PushBack(queued{id: neighbor, hop: nextHop, path: path})
			if len(results) >= budget {
				break
			}
		}
	}
	return results, nil
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func primaryLabel(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

func passesFilters(n Node, filters Filters) bool {
	if hasLabel(n.Labels, memory.LabelEvent) && len(filters.EventCategories) > 0 {
		cat, _ := n.Props["category"].(string)
		ok := false
		for _, c := range filters.EventCategories {
			if string(c) == cat {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if hasLabel(n.Labels, memory.LabelEntity) && len(filters.EntityTypes) > 0 {
		typ, _ := n.Props["type"].(string)
		ok := false
		for _, t := range filters.EntityTypes {
			if string(t) == typ {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
