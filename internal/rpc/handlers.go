package rpc

import (
	"context"
	"encoding/json"
	"time"

	"nur/internal/memory"
	"nur/internal/service"
	"nur/internal/store/graph"
	"nur/internal/store/vector"
)

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, memory.NewValidationError("malformed params", err)
	}
	return v, nil
}

// rememberParams mirrors spec.md §6's remember(content, metadata) shape,
// with metadata's fields flattened to ingest.Request's input fields
// (spec §4.6).
type rememberParams struct {
	Content  string `json:"content"`
	Metadata struct {
		Type            string   `json:"type"`
		SourceSystem    string   `json:"source_system"`
		SourceID        string   `json:"source_id"`
		SourceURL       string   `json:"source_url"`
		Timestamp       string   `json:"timestamp"` // RFC3339; defaults to now
		Title           string   `json:"title"`
		Author          string   `json:"author"`
		Participants    []string `json:"participants"`
		Sensitivity     string   `json:"sensitivity"`
		VisibilityScope string   `json:"visibility_scope"`
		RetentionPolicy string   `json:"retention_policy"`
	} `json:"metadata"`
}

func (h *Handler) remember(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[rememberParams](params)
	if err != nil {
		return nil, err
	}
	ts := time.Now().UTC()
	if p.Metadata.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, p.Metadata.Timestamp)
		if err != nil {
			return nil, memory.NewValidationError("metadata.timestamp is not RFC3339", err)
		}
		ts = parsed
	}
	sensitivity := memory.Sensitivity(p.Metadata.Sensitivity)
	if sensitivity == "" {
		sensitivity = memory.SensitivityNormal
	}
	visibility := memory.VisibilityScope(p.Metadata.VisibilityScope)
	if visibility == "" {
		visibility = memory.VisibilityMe
	}
	artifactType := memory.ArtifactType(p.Metadata.Type)
	if artifactType == "" {
		artifactType = memory.ArtifactNote
	}

	res, err := h.svc.Remember(ctx, service.RememberRequest{
		Content:         p.Content,
		Type:            artifactType,
		SourceSystem:    p.Metadata.SourceSystem,
		SourceID:        p.Metadata.SourceID,
		SourceURL:       p.Metadata.SourceURL,
		Timestamp:       ts,
		Title:           p.Metadata.Title,
		Author:          p.Metadata.Author,
		Participants:    p.Metadata.Participants,
		Sensitivity:     sensitivity,
		VisibilityScope: visibility,
		RetentionPolicy: p.Metadata.RetentionPolicy,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"artifact_id": res.ArtifactID,
		"deduped":     res.Deduped,
		"job_id":      res.JobID,
	}, nil
}

// recallParams mirrors spec.md §6's recall() parameters.
type recallParams struct {
	Query           string              `json:"query"`
	ID              string              `json:"id"`
	K               int                 `json:"k"`
	IncludeEvents   bool                `json:"include_events"`
	IncludeEntities bool                `json:"include_entities"`
	GraphExpand     bool                `json:"graph_expand"`
	GraphSeedLimit  int                 `json:"graph_seed_limit"`
	GraphBudget     int                 `json:"graph_budget"`
	GraphFilters    graphFiltersParams  `json:"graph_filters"`
	Filters         map[string][]string `json:"filters"`
}

type graphFiltersParams struct {
	EventCategories       []string `json:"event_categories"`
	EntityTypes           []string `json:"entity_types"`
	PossiblySameThreshold float64  `json:"possibly_same_threshold"`
}

func (h *Handler) recall(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[recallParams](params)
	if err != nil {
		return nil, err
	}

	// recall(id=...) is a direct lookup, bypassing RRF (spec.md §6 lists id?
	// as an alternative to query-based similarity search).
	if p.ID != "" && p.Query == "" {
		artifact, err := h.svc.GetArtifact(ctx, p.ID)
		if err != nil {
			if k, ok := memory.KindOf(err); ok && k == memory.KindNotFound {
				return []any{}, nil
			}
			return nil, err
		}
		return []any{resultItem{ArtifactID: artifact.ArtifactID, Metadata: map[string]string{
			"title":  artifact.Title,
			"author": artifact.Author,
		}}}, nil
	}

	eventCategories := make([]memory.EventCategory, 0, len(p.GraphFilters.EventCategories))
	for _, c := range p.GraphFilters.EventCategories {
		eventCategories = append(eventCategories, memory.EventCategory(c))
	}
	entityTypes := make([]memory.EntityType, 0, len(p.GraphFilters.EntityTypes))
	for _, t := range p.GraphFilters.EntityTypes {
		entityTypes = append(entityTypes, memory.EntityType(t))
	}

	resp, err := h.svc.Recall(ctx, service.RecallRequest{
		Query:           p.Query,
		K:               p.K,
		IncludeEvents:   p.IncludeEvents,
		IncludeEntities: p.IncludeEntities,
		GraphExpand:     p.GraphExpand,
		GraphSeedLimit:  p.GraphSeedLimit,
		GraphBudget:     p.GraphBudget,
		GraphFilters: graph.Filters{
			EventCategories:       eventCategories,
			EntityTypes:           entityTypes,
			PossiblySameThreshold: p.GraphFilters.PossiblySameThreshold,
		},
		Filters: vector.Filter(p.Filters),
	})
	if err != nil {
		return nil, err
	}

	items := make([]resultItem, len(resp.Items))
	for i, it := range resp.Items {
		items[i] = resultItem{
			ArtifactID:     it.ArtifactID,
			Content:        it.Document,
			Score:          it.Score,
			Metadata:       it.Metadata,
			RelatedContext: it.RelatedContext,
		}
	}
	result := map[string]any{"results": items}
	if resp.Warning != "" {
		result["warning"] = resp.Warning
	}
	return result, nil
}

// resultItem mirrors spec.md §6's recall() result shape:
// {id, content, score, metadata, related_context?}.
type resultItem struct {
	ArtifactID     string            `json:"id"`
	Content        string            `json:"content,omitempty"`
	Score          float64           `json:"score,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RelatedContext []graph.Item      `json:"related_context,omitempty"`
}

type forgetParams struct {
	ID      string `json:"id"`
	Confirm bool   `json:"confirm"`
}

func (h *Handler) forget(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[forgetParams](params)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.Forget(ctx, p.ID, p.Confirm)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted": res.Deleted,
		"cascade_counts": map[string]int{
			"chunks":   res.CascadeCounts.Chunks,
			"events":   res.CascadeCounts.Events,
			"mentions": res.CascadeCounts.EntityMentions,
		},
	}, nil
}

type statusParams struct {
	ArtifactID string `json:"artifact_id"`
}

func (h *Handler) status(ctx context.Context, params json.RawMessage) (any, error) {
	if _, err := decode[statusParams](params); err != nil {
		return nil, err
	}
	res := h.svc.Status(ctx)
	return map[string]any{
		"services": res.Services,
		"counts":   res.Counts,
		"jobs":     res.Jobs,
	}, nil
}

type eventSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *Handler) eventSearch(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[eventSearchParams](params)
	if err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	events, err := h.svc.EventSearch(ctx, p.Query, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events}, nil
}

type eventIDParams struct {
	ID string `json:"id"`
}

func (h *Handler) eventGet(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[eventIDParams](params)
	if err != nil {
		return nil, err
	}
	event, err := h.svc.EventGet(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return event, nil
}

type revisionIDParams struct {
	RevisionID string `json:"revision_id"`
}

func (h *Handler) eventListForRevision(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[revisionIDParams](params)
	if err != nil {
		return nil, err
	}
	events, err := h.svc.EventListForRevision(ctx, p.RevisionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events}, nil
}

type jobIDParams struct {
	JobID string `json:"job_id"`
}

func (h *Handler) jobStatus(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[jobIDParams](params)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.JobStatus(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"state":      res.State,
		"attempts":   res.Attempts,
		"last_error": res.LastError,
	}, nil
}
