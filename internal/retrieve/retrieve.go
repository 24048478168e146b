// Package retrieve implements C11: the hybrid retrieval service. It queries
// the content and chunks vector collections, fuses them with Reciprocal
// Rank Fusion, optionally expands the top results through the graph store,
// and attaches entities. Grounded on the teacher's
// internal/rag/retrieve/{api,fusion,query}.go request/response shape,
// narrowed from its weighted FTS+vector+diversify+rerank pipeline to
// spec §4.11's simpler unweighted multi-collection RRF plus graph
// expansion.
package retrieve

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/memory"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

// Request mirrors spec §4.11's input shape.
type Request struct {
	Query          string
	K              int
	IncludeEvents  bool
	IncludeEntities bool
	GraphExpand    bool
	GraphSeedLimit int
	GraphBudget    int
	GraphFilters   graph.Filters
	Filters        vector.Filter
}

// Item is one fused, optionally graph-expanded and entity-attached result.
type Item struct {
	ArtifactID     string
	Score          float64
	Document       string
	Metadata       map[string]string
	Events         []memory.Event
	RelatedContext []graph.Item
	Entities       []memory.Entity
}

// Response is the full C11 result set plus a non-fatal warning (e.g. a
// partial graph-expansion failure).
type Response struct {
	Items   []Item
	Warning string
}

// Service wires the embedding, vector, graph, and relational tiers into the
// C11 pipeline.
type Service struct {
	embedder   embedding.Embedder
	vector     vector.Store
	graph      graph.Store
	relational *relational.Store
	cfg        config.RetrievalConfig
	graphCfg   config.GraphTraversalConfig
}

// New builds a Service.
func New(embedder embedding.Embedder, vec vector.Store, g graph.Store, rel *relational.Store, cfg config.RetrievalConfig, graphCfg config.GraphTraversalConfig) *Service {
	return &Service{embedder: embedder, vector: vec, graph: g, relational: rel, cfg: cfg, graphCfg: graphCfg}
}

// Retrieve runs the full C11 pipeline per spec §4.11's seven steps.
func (s *Service) Retrieve(ctx context.Context, req Request) (Response, error) {
	k := req.K
	if k <= 0 {
		k = 10
	}
	kPrime := k
	if kPrime < 20 {
		kPrime = 20
	}

	vecs, err := s.embedder.EmbedBatch(ctx, []string{req.Query})
	if err != nil {
		return Response{}, err // already memory.EmbeddingError
	}
	queryEmbedding := vecs[0]

	// The content and chunks collections are independent vector queries, so
	// they fan out in parallel via errgroup rather than running back to
	// back, the same coordination primitive the teacher reaches for over
	// hand-rolled sync.WaitGroup/channel plumbing.
	var contentHits, chunkHits []vector.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.vector.Query(gctx, vector.CollectionContent, queryEmbedding, kPrime, req.Filters)
		if err != nil {
			return memory.NewRetrievalError("query content collection", err)
		}
		contentHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.vector.Query(gctx, vector.CollectionChunks, queryEmbedding, kPrime, req.Filters)
		if err != nil {
			return memory.NewRetrievalError("query chunks collection", err)
		}
		chunkHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	fusedDocs := fuseRRF(contentHits, chunkHits, s.cfg.RRFConstant)
	if len(fusedDocs) > k {
		fusedDocs = fusedDocs[:k]
	}

	items := make([]Item, len(fusedDocs))
	for i, d := range fusedDocs {
		items[i] = Item{ArtifactID: d.ID, Score: d.Score, Document: d.Document, Metadata: d.Metadata}
	}

	warning := ""
	if req.IncludeEvents || req.GraphExpand || req.IncludeEntities {
		for i := range items {
			events, err := s.relational.ListEventsForArtifact(ctx, items[i].ArtifactID)
			if err != nil {
				warning = "partial failure attaching events"
				continue
			}
			items[i].Events = events
		}
	}

	if req.GraphExpand {
		items, warning = s.expandGraph(ctx, items, req, warning)
	}

	if req.IncludeEntities {
		items = s.attachEntities(ctx, items)
	}

	sortItems(items)
	return Response{Items: items, Warning: warning}, nil
}

// expandGraph implements step 5: seed from the top graph_seed_limit items
// that have associated events, call graph.Store.Expand, and attach
// related_context per result. A partial failure degrades to no
// related_context plus a warning rather than failing the whole call.
func (s *Service) expandGraph(ctx context.Context, items []Item, req Request, warning string) ([]Item, string) {
	seedLimit := req.GraphSeedLimit
	if seedLimit <= 0 {
		seedLimit = s.graphCfg.SeedLimit
	}
	if seedLimit <= 0 {
		seedLimit = 10
	}
	budget := req.GraphBudget
	if budget <= 0 {
		budget = s.graphCfg.Budget
	}
	if budget <= 0 {
		budget = 50
	}
	filters := req.GraphFilters
	if filters.PossiblySameThreshold <= 0 {
		filters.PossiblySameThreshold = s.graphCfg.PossiblySameThreshold
	}

	var seeds []string
	seeded := make(map[int]bool)
	for i := range items {
		if len(seeded) >= seedLimit {
			break
		}
		if len(items[i].Events) == 0 {
			continue
		}
		for _, e := range items[i].Events {
			seeds = append(seeds, e.EventID)
		}
		seeded[i] = true
	}
	if len(seeds) == 0 {
		return items, warning
	}

	expanded, err := s.graph.Expand(ctx, seeds, 2, filters, budget)
	if err != nil {
		return items, "partial failure expanding graph"
	}
	for i := range items {
		if seeded[i] {
			items[i].RelatedContext = expanded
		}
	}
	return items, warning
}

// attachEntities implements step 6: resolve each item's event actors and
// subjects to Entity records.
func (s *Service) attachEntities(ctx context.Context, items []Item) []Item {
	for i := range items {
		var ids []string
		seen := map[string]bool{}
		for _, e := range items[i].Events {
			for _, id := range append(append([]string{}, e.Actors...), e.Subjects...) {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			continue
		}
		entities, err := s.relational.ListEntitiesByIDs(ctx, ids)
		if err != nil {
			continue
		}
		items[i].Entities = entities
	}
	return items
}

// sortItems orders by RRF score descending, ties broken by recency of
// timestamp then lexicographic id, per spec §4.11.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		ti, tj := items[i].Metadata["timestamp"], items[j].Metadata["timestamp"]
		if ti != tj {
			return ti > tj
		}
		return items[i].ArtifactID < items[j].ArtifactID
	})
}
