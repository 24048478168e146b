package relational

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/memory"
)

// InsertEntityTx creates a brand-new entity row. The embedding itself lives
// in the vector store's entities collection; context_clues is stored as
// JSONB for the resolver's disambiguation heuristics.
func InsertEntityTx(ctx context.Context, tx pgx.Tx, e memory.Entity) error {
	clues, err := json.Marshal(e.ContextClues)
	if err != nil {
		return memory.NewStorageError("marshal context clues", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO entity (entity_id, type, canonical_name, aliases, context_clues, created_at, last_seen_at)
		VALUES ($1,$2,$3,COALESCE($4::text[], '{}'),$5,$6,$7)`,
		e.EntityID, e.Type, e.CanonicalName, e.Aliases, clues, e.CreatedAt, e.LastSeenAt)
	if err != nil {
		return memory.NewStorageError("insert entity", err)
	}
	return nil
}

// MergeAliasTx appends surfaceForm to entity_id's alias list (if new) and
// bumps last_seen_at, without touching the entity's append-only embedding.
func MergeAliasTx(ctx context.Context, tx pgx.Tx, entityID, surfaceForm string, seenAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE entity
		SET aliases = CASE WHEN $2 = ANY(aliases) THEN aliases ELSE array_append(aliases, $2) END,
		    last_seen_at = $3
		WHERE entity_id = $1`, entityID, surfaceForm, seenAt)
	if err != nil {
		return memory.NewStorageError("merge entity alias", err)
	}
	return nil
}

// InsertEntityMentionTx records one resolver decision.
func InsertEntityMentionTx(ctx context.Context, tx pgx.Tx, m memory.EntityMention) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO entity_mention (mention_id, entity_id, revision_id, surface_form, offset_start, decision, score, model)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.MentionID, m.EntityID, m.RevisionID, m.SurfaceForm, m.Offset, m.Decision, m.Score, m.Model)
	if err != nil {
		return memory.NewStorageError("insert entity mention", err)
	}
	return nil
}

// GetEntity returns one entity row (without its vector embedding — callers
// needing the embedding fetch it from the vector store's entities
// collection, keyed by entity_id).
func (s *Store) GetEntity(ctx context.Context, entityID string) (memory.Entity, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT entity_id, type, canonical_name, aliases, context_clues, created_at, last_seen_at
		FROM entity WHERE entity_id = $1`, entityID)

	var e memory.Entity
	var clues []byte
	err := row.Scan(&e.EntityID, &e.Type, &e.CanonicalName, &e.Aliases, &clues, &e.CreatedAt, &e.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Entity{}, memory.NewNotFoundError("entity not found", err)
	}
	if err != nil {
		return memory.Entity{}, memory.NewStorageError("scan entity", err)
	}
	if len(clues) > 0 {
		if err := json.Unmarshal(clues, &e.ContextClues); err != nil {
			return memory.Entity{}, memory.NewStorageError("unmarshal context clues", err)
		}
	}
	return e, nil
}

// ListEntitiesByIDs returns every entity row found among ids, in no
// particular order; missing ids are simply absent from the result.
func (s *Store) ListEntitiesByIDs(ctx context.Context, ids []string) ([]memory.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT entity_id, type, canonical_name, aliases, context_clues, created_at, last_seen_at
		FROM entity WHERE entity_id = ANY($1)`, ids)
	if err != nil {
		return nil, memory.NewStorageError("list entities", err)
	}
	defer rows.Close()

	var out []memory.Entity
	for rows.Next() {
		var e memory.Entity
		var clues []byte
		if err := rows.Scan(&e.EntityID, &e.Type, &e.CanonicalName, &e.Aliases, &clues, &e.CreatedAt, &e.LastSeenAt); err != nil {
			return nil, memory.NewStorageError("scan entity row", err)
		}
		if len(clues) > 0 {
			if err := json.Unmarshal(clues, &e.ContextClues); err != nil {
				return nil, memory.NewStorageError("unmarshal context clues", err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}
