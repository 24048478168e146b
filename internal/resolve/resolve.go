// Package resolve implements C9: two-phase entity resolution (embedding
// candidate search, then an LLM confirm-or-reject prompt) with the
// θ_r/θ_s/θ_u decision policy and append-only entity embeddings. Grounded
// on original_source's entity_resolution_service.py for the two-phase shape
// ("embedding similarity for candidate generation" + "LLM confirmation for
// merge decisions") and on internal/llm's single-purpose Chat provider for
// the confirm prompt.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/ids"
	"nur/internal/llm"
	"nur/internal/memory"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

// Mention is one entity mention surfaced by C8, enriched with its context
// clues, awaiting resolution to a canonical entity.
type Mention struct {
	SurfaceForm  string
	Offset       int
	RevisionID   string
	EntityType   memory.EntityType
	ContextClues map[string]string
}

// Result is the outcome of resolving one mention.
type Result struct {
	EntityID string
	Decision memory.ResolverDecision
	Score    float64
}

// Resolver wires the embedding, vector, relational, graph, and LLM tiers
// into the C9 pipeline.
type Resolver struct {
	embedder   embedding.Embedder
	vector     vector.Store
	relational *relational.Store
	graph      graph.Store
	llm        llm.Provider
	model      string
	cfg        config.ResolutionConfig
}

// New builds a Resolver. The POSSIBLY_SAME edges it writes carry the raw
// confirmation score; gating that score against a threshold is graph.Expand's
// job at traversal time (config.GraphTraversalConfig.PossiblySameThreshold),
// not the writer's.
func New(embedder embedding.Embedder, vec vector.Store, rel *relational.Store, g graph.Store, provider llm.Provider, model string, cfg config.ResolutionConfig) *Resolver {
	return &Resolver{embedder: embedder, vector: vec, relational: rel, graph: g, llm: provider, model: model, cfg: cfg}
}

type candidate struct {
	entityID string
	distance float64
	entity   memory.Entity
}

type confirmVerdict struct {
	Decision string  `json:"decision"` // same | different | uncertain
	Score    float64 `json:"score"`
}

// Resolve resolves one mention to a canonical entity, recording the
// decision as an EntityMention row. On an embedding or LLM failure, it
// returns an error so the caller can drop the enclosing event without
// failing the whole extraction job (spec §4.9).
func (r *Resolver) Resolve(ctx context.Context, m Mention) (Result, error) {
	text := enrichedText(m)
	vecs, err := r.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Result{}, err // already memory.EmbeddingError
	}
	embedding := vecs[0]

	topK := r.cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	hits, err := r.vector.Query(ctx, vector.CollectionEntities, embedding, topK, nil)
	if err != nil {
		return Result{}, memory.NewStorageError("query entity candidates", err)
	}

	recallThreshold := r.cfg.RecallThreshold
	if recallThreshold <= 0 {
		recallThreshold = 0.25
	}
	var candidates []candidate
	for _, h := range hits {
		distance := 1 - h.Score
		if distance > recallThreshold {
			continue
		}
		entity, err := r.relational.GetEntity(ctx, h.ID)
		if err != nil {
			continue // entity row missing/stale; skip as a candidate
		}
		candidates = append(candidates, candidate{entityID: h.ID, distance: distance, entity: entity})
	}

	if len(candidates) == 0 {
		return r.create(ctx, m, embedding, nil)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].entity.CreatedAt.Before(candidates[j].entity.CreatedAt)
	})

	sameThreshold := r.cfg.SameThreshold
	if sameThreshold <= 0 {
		sameThreshold = 0.85
	}
	uncertainThreshold := r.cfg.UncertainThreshold
	if uncertainThreshold <= 0 {
		uncertainThreshold = 0.60
	}

	var bestSame *candidate
	var bestSameScore float64
	var bestUncertain *candidate
	var bestUncertainScore float64

	for i := range candidates {
		c := candidates[i]
		verdict, err := r.confirm(ctx, m, c.entity)
		if err != nil {
			return Result{}, err // already memory.KindEntityResolution
		}
		// spec.md §4.9's uncertain band [θ_u, θ_s) applies to the verdict's
		// score regardless of its decision label: a "same" verdict that
		// scores below θ_s is not confident enough to merge outright, but
		// still belongs in the uncertain band rather than being discarded.
		switch {
		case verdict.Decision == "same" && verdict.Score >= sameThreshold && (bestSame == nil || c.distance < bestSame.distance):
			cCopy := c
			bestSame = &cCopy
			bestSameScore = verdict.Score
		case verdict.Score >= uncertainThreshold && verdict.Score < sameThreshold && (bestUncertain == nil || c.distance < bestUncertain.distance):
			cCopy := c
			bestUncertain = &cCopy
			bestUncertainScore = verdict.Score
		}
	}

	if bestSame != nil {
		return r.merge(ctx, m, bestSame.entityID, bestSameScore)
	}
	if bestUncertain != nil {
		return r.createWithPossiblySame(ctx, m, embedding, bestUncertain.entityID, bestUncertainScore)
	}
	return r.create(ctx, m, embedding, nil)
}

func (r *Resolver) confirm(ctx context.Context, m Mention, candidateEntity memory.Entity) (confirmVerdict, error) {
	prompt := confirmPrompt(m, candidateEntity)
	resp, err := r.llm.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, r.model)
	if err != nil {
		return confirmVerdict{}, memory.NewEntityResolutionError("llm confirmation failed", err)
	}
	var v confirmVerdict
	if err := json.Unmarshal([]byte(trimJSONFence(resp)), &v); err != nil {
		return confirmVerdict{}, memory.NewEntityResolutionError("parse llm confirmation", err)
	}
	return v, nil
}

func (r *Resolver) create(ctx context.Context, m Mention, embedding []float32, possiblySame *string) (Result, error) {
	entityID := ids.NewEntityID()
	now := time.Now()
	entity := memory.Entity{
		EntityID:      entityID,
		Type:          m.EntityType,
		CanonicalName: m.SurfaceForm,
		Aliases:       []string{m.SurfaceForm},
		ContextClues:  m.ContextClues,
		Embedding:     embedding,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	mention := memory.EntityMention{
		MentionID:   ids.NewMentionID(),
		EntityID:    entityID,
		RevisionID:  m.RevisionID,
		SurfaceForm: m.SurfaceForm,
		Offset:      m.Offset,
		Decision:    memory.DecisionCreated,
		Score:       0,
		Model:       r.model,
	}

	err := r.relational.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := relational.InsertEntityTx(ctx, tx, entity); err != nil {
			return err
		}
		return relational.InsertEntityMentionTx(ctx, tx, mention)
	})
	if err != nil {
		return Result{}, err
	}
	if err := r.vector.Upsert(ctx, vector.CollectionEntities, []vector.Record{{ID: entityID, Embedding: embedding}}); err != nil {
		return Result{}, err
	}
	if err := r.graph.UpsertNode(ctx, entityID, []string{memory.LabelEntity}, map[string]any{"type": string(m.EntityType)}); err != nil {
		return Result{}, memory.NewStorageError("upsert entity node", err)
	}
	if possiblySame != nil {
		if err := r.graph.UpsertEdge(ctx, entityID, memory.EdgePossiblySame, *possiblySame, map[string]any{"score": 0.0}); err != nil {
			return Result{}, memory.NewStorageError("upsert possibly_same edge", err)
		}
	}
	return Result{EntityID: entityID, Decision: memory.DecisionCreated}, nil
}

func (r *Resolver) createWithPossiblySame(ctx context.Context, m Mention, embedding []float32, candidateEntityID string, score float64) (Result, error) {
	entityID := ids.NewEntityID()
	now := time.Now()
	entity := memory.Entity{
		EntityID:      entityID,
		Type:          m.EntityType,
		CanonicalName: m.SurfaceForm,
		Aliases:       []string{m.SurfaceForm},
		ContextClues:  m.ContextClues,
		Embedding:     embedding,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	mention := memory.EntityMention{
		MentionID:   ids.NewMentionID(),
		EntityID:    entityID,
		RevisionID:  m.RevisionID,
		SurfaceForm: m.SurfaceForm,
		Offset:      m.Offset,
		Decision:    memory.DecisionUncertain,
		Score:       score,
		Model:       r.model,
	}

	err := r.relational.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := relational.InsertEntityTx(ctx, tx, entity); err != nil {
			return err
		}
		return relational.InsertEntityMentionTx(ctx, tx, mention)
	})
	if err != nil {
		return Result{}, err
	}
	if err := r.vector.Upsert(ctx, vector.CollectionEntities, []vector.Record{{ID: entityID, Embedding: embedding}}); err != nil {
		return Result{}, err
	}
	if err := r.graph.UpsertNode(ctx, entityID, []string{memory.LabelEntity}, map[string]any{"type": string(m.EntityType)}); err != nil {
		return Result{}, memory.NewStorageError("upsert entity node", err)
	}
	if err := r.graph.UpsertEdge(ctx, entityID, memory.EdgePossiblySame, candidateEntityID, map[string]any{"score": score}); err != nil {
		return Result{}, memory.NewStorageError("upsert possibly_same edge", err)
	}
	return Result{EntityID: entityID, Decision: memory.DecisionUncertain, Score: score}, nil
}

func (r *Resolver) merge(ctx context.Context, m Mention, entityID string, score float64) (Result, error) {
	now := time.Now()
	mention := memory.EntityMention{
		MentionID:   ids.NewMentionID(),
		EntityID:    entityID,
		RevisionID:  m.RevisionID,
		SurfaceForm: m.SurfaceForm,
		Offset:      m.Offset,
		Decision:    memory.DecisionMerged,
		Score:       score,
		Model:       r.model,
	}
	err := r.relational.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := relational.MergeAliasTx(ctx, tx, entityID, m.SurfaceForm, now); err != nil {
			return err
		}
		return relational.InsertEntityMentionTx(ctx, tx, mention)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{EntityID: entityID, Decision: memory.DecisionMerged, Score: score}, nil
}

func enrichedText(m Mention) string {
	if len(m.ContextClues) == 0 {
		return m.SurfaceForm
	}
	parts := make([]string, 0, len(m.ContextClues)+1)
	parts = append(parts, m.SurfaceForm)
	for k, v := range m.ContextClues {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v))
	}
	return strings.Join(parts, "; ")
}

func trimJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
