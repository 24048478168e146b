// Package extract implements C8: the two-prompt event extraction pipeline
// (extract candidates, then canonicalize/de-duplicate) and its validation
// gate. Grounded on internal/llm's single-purpose Chat provider and the
// Python original's event extraction contract (evidence-quote validation,
// the closed category set, the actor/subject requirement) described in
// spec.md §4.8 and original_source's entity_resolution_service.py sibling
// services.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nur/internal/ids"
	"nur/internal/llm"
	"nur/internal/memory"
)

// Dropped records one event that failed the validation gate, with the
// reason, so callers can log it without failing the enclosing job.
type Dropped struct {
	Summary string
	Reason  string
}

// Mention is one actor/subject surface form pulled out of an event, with
// its offset in the revision content, awaiting entity resolution (C9).
// memory.Event.Actors/Subjects hold entity ids only after resolution; until
// then the worker needs the raw surface form and role to resolve and
// rewrite those fields in place.
type Mention struct {
	SurfaceForm string
	Offset      int
	Role        string // "actor" | "subject"
}

// Extracted pairs one validated event with the raw mentions a caller must
// resolve to entity ids before the event can be persisted.
type Extracted struct {
	Event    memory.Event
	Mentions []Mention
}

// Extractor runs Prompt A (extract) and Prompt B (canonicalize) against an
// LLM provider and validates the result before it ever reaches the store.
type Extractor struct {
	provider llm.Provider
	model    string
}

// New builds an Extractor.
func New(provider llm.Provider, model string) *Extractor {
	return &Extractor{provider: provider, model: model}
}

type candidateMention struct {
	SurfaceForm string `json:"surface_form"`
	Offset      int    `json:"offset"`
	Role        string `json:"role"`
}

type candidateEvent struct {
	Category   string             `json:"category"`
	Summary    string             `json:"summary"`
	Evidence   []string           `json:"evidence"`
	Mentions   []candidateMention `json:"mentions"`
	OccurredAt string             `json:"occurred_at,omitempty"`
	Confidence float64            `json:"confidence"`
}

type candidateEnvelope struct {
	Events []candidateEvent `json:"events"`
}

type finalEvent struct {
	Category   string             `json:"category"`
	Summary    string             `json:"summary"`
	Evidence   []string           `json:"evidence"`
	Mentions   []candidateMention `json:"mentions"`
	OccurredAt string             `json:"occurred_at,omitempty"`
	Confidence float64            `json:"confidence"`
}

type finalEnvelope struct {
	Events []finalEvent `json:"events"`
}

// Extract runs the full C8 pipeline against revisionContent and returns the
// events that survived validation plus those that were dropped (with
// reason). A provider error fails the call outright; a validation failure
// of individual events never does.
func (ex *Extractor) Extract(ctx context.Context, revisionID, revisionContent string) ([]Extracted, []Dropped, error) {
	candidates, err := ex.extractCandidates(ctx, revisionContent)
	if err != nil {
		return nil, nil, memory.NewExtractionError("prompt A (extract) failed", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	finals, err := ex.canonicalize(ctx, candidates)
	if err != nil {
		return nil, nil, memory.NewExtractionError("prompt B (canonicalize) failed", err)
	}

	var extracted []Extracted
	var dropped []Dropped
	for _, f := range finals {
		e, mentions, reason := ex.validate(revisionID, revisionContent, f)
		if reason != "" {
			dropped = append(dropped, Dropped{Summary: f.Summary, Reason: reason})
			continue
		}
		extracted = append(extracted, Extracted{Event: e, Mentions: mentions})
	}
	return extracted, dropped, nil
}

func (ex *Extractor) extractCandidates(ctx context.Context, content string) ([]candidateEvent, error) {
	prompt := extractPrompt(content)
	resp, err := ex.provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, ex.model)
	if err != nil {
		return nil, err
	}
	var env candidateEnvelope
	if err := json.Unmarshal([]byte(extractJSON(resp)), &env); err != nil {
		return nil, fmt.Errorf("parse extract response: %w", err)
	}
	return env.Events, nil
}

func (ex *Extractor) canonicalize(ctx context.Context, candidates []candidateEvent) ([]finalEvent, error) {
	body, err := json.Marshal(candidateEnvelope{Events: candidates})
	if err != nil {
		return nil, err
	}
	prompt := canonicalizePrompt(string(body))
	resp, err := ex.provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, ex.model)
	if err != nil {
		return nil, err
	}
	var env finalEnvelope
	if err := json.Unmarshal([]byte(extractJSON(resp)), &env); err != nil {
		return nil, fmt.Errorf("parse canonicalize response: %w", err)
	}
	return env.Events, nil
}

// validate applies spec §4.8's gate: (a) every evidence quote is a literal
// substring of the revision, (b) category is in the closed set, (c)
// confidence is in [0,1], (d) at least one actor or subject.
func (ex *Extractor) validate(revisionID, content string, f finalEvent) (memory.Event, []Mention, string) {
	category := memory.EventCategory(f.Category)
	if !memory.IsValidEventCategory(category) {
		return memory.Event{}, nil, "category not in closed set: " + f.Category
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return memory.Event{}, nil, "confidence out of range [0,1]"
	}
	if len(f.Evidence) == 0 {
		return memory.Event{}, nil, "no evidence quotes"
	}

	evidence := make([]memory.Evidence, 0, len(f.Evidence))
	for _, quote := range f.Evidence {
		idx := strings.Index(content, quote)
		if idx < 0 {
			return memory.Event{}, nil, "evidence quote not a literal substring: " + quote
		}
		evidence = append(evidence, memory.Evidence{Quote: quote, OffsetStart: idx, OffsetEnd: idx + len(quote)})
	}

	var mentions []Mention
	for _, m := range f.Mentions {
		role := "subject"
		if m.Role == "actor" {
			role = "actor"
		}
		mentions = append(mentions, Mention{SurfaceForm: m.SurfaceForm, Offset: m.Offset, Role: role})
	}
	if len(mentions) == 0 {
		return memory.Event{}, nil, "no actor or subject"
	}

	var occurredAt *time.Time
	if f.OccurredAt != "" {
		if t, err := time.Parse(time.RFC3339, f.OccurredAt); err == nil {
			occurredAt = &t
		} else if t, err := time.Parse("2006-01-02", f.OccurredAt); err == nil {
			occurredAt = &t
		}
	}

	return memory.Event{
		EventID:     ids.NewEventID(),
		RevisionID:  revisionID,
		Category:    category,
		Summary:     f.Summary,
		Evidence:    evidence,
		OccurredAt:  occurredAt,
		ExtractedAt: time.Now(),
		Model:       ex.model,
		Confidence:  f.Confidence,
	}, mentions, ""
}

// extractJSON strips Markdown code fences a chat model sometimes wraps JSON
// in, so callers using llm.Provider implementations that don't force a JSON
// response format (e.g. Anthropic's Messages API has no such mode) still
// parse cleanly.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
