package relational

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"nur/internal/memory"
)

// InsertEventTx writes an event row, its evidence rows, and its actor/subject
// links in one pass so a caller's outer WithTransaction can commit them
// atomically with the job state transition that produced them.
func InsertEventTx(ctx context.Context, tx pgx.Tx, e memory.Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO event (event_id, revision_id, category, summary, occurred_at, extracted_at, model, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.EventID, e.RevisionID, e.Category, e.Summary, e.OccurredAt, e.ExtractedAt, e.Model, e.Confidence)
	if err != nil {
		return memory.NewStorageError("insert event", err)
	}

	for i, ev := range e.Evidence {
		_, err := tx.Exec(ctx, `
			INSERT INTO event_evidence (event_id, idx, quote, offset_start, offset_end)
			VALUES ($1,$2,$3,$4,$5)`,
			e.EventID, i, ev.Quote, ev.OffsetStart, ev.OffsetEnd)
		if err != nil {
			return memory.NewStorageError("insert event evidence", err)
		}
	}

	for _, entityID := range e.Actors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_entity (event_id, entity_id, role) VALUES ($1,$2,'actor')`,
			e.EventID, entityID); err != nil {
			return memory.NewStorageError("insert event actor", err)
		}
	}
	for _, entityID := range e.Subjects {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_entity (event_id, entity_id, role) VALUES ($1,$2,'subject')`,
			e.EventID, entityID); err != nil {
			return memory.NewStorageError("insert event subject", err)
		}
	}
	return nil
}

// GetEvent returns one event with its evidence and actor/subject links.
func (s *Store) GetEvent(ctx context.Context, eventID string) (memory.Event, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT event_id, revision_id, category, summary, occurred_at, extracted_at, model, confidence
		FROM event WHERE event_id = $1`, eventID)

	var e memory.Event
	err := row.Scan(&e.EventID, &e.RevisionID, &e.Category, &e.Summary, &e.OccurredAt, &e.ExtractedAt, &e.Model, &e.Confidence)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Event{}, memory.NewNotFoundError("event not found", err)
	}
	if err != nil {
		return memory.Event{}, memory.NewStorageError("scan event", err)
	}

	if err := s.fillEvidenceAndLinks(ctx, &e); err != nil {
		return memory.Event{}, err
	}
	return e, nil
}

// ListEventsForRevision returns every event extracted from revisionID, newest
// first.
func (s *Store) ListEventsForRevision(ctx context.Context, revisionID string) ([]memory.Event, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, revision_id, category, summary, occurred_at, extracted_at, model, confidence
		FROM event WHERE revision_id = $1 ORDER BY extracted_at DESC`, revisionID)
	if err != nil {
		return nil, memory.NewStorageError("list events for revision", err)
	}
	defer rows.Close()

	var events []memory.Event
	for rows.Next() {
		var e memory.Event
		if err := rows.Scan(&e.EventID, &e.RevisionID, &e.Category, &e.Summary, &e.OccurredAt, &e.ExtractedAt, &e.Model, &e.Confidence); err != nil {
			return nil, memory.NewStorageError("scan event row", err)
		}
		events = append(events, e)
	}
	for i := range events {
		if err := s.fillEvidenceAndLinks(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// ListEventsForArtifact returns every event extracted from any revision of
// artifactID, newest first. Used by retrieval (C11) to find graph-expansion
// seeds for a fused result.
func (s *Store) ListEventsForArtifact(ctx context.Context, artifactID string) ([]memory.Event, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT e.event_id, e.revision_id, e.category, e.summary, e.occurred_at, e.extracted_at, e.model, e.confidence
		FROM event e
		JOIN revision r ON r.revision_id = e.revision_id
		WHERE r.artifact_id = $1
		ORDER BY e.extracted_at DESC`, artifactID)
	if err != nil {
		return nil, memory.NewStorageError("list events for artifact", err)
	}
	defer rows.Close()

	var events []memory.Event
	for rows.Next() {
		var e memory.Event
		if err := rows.Scan(&e.EventID, &e.RevisionID, &e.Category, &e.Summary, &e.OccurredAt, &e.ExtractedAt, &e.Model, &e.Confidence); err != nil {
			return nil, memory.NewStorageError("scan event row", err)
		}
		events = append(events, e)
	}
	for i := range events {
		if err := s.fillEvidenceAndLinks(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// SearchEvents answers event_search: if query names a valid event category
// it delegates to SearchEventsByCategory, otherwise it falls back to an
// ILIKE match over the summary, since no full-text search engine is wired
// for events (content/chunks search goes through the vector store instead).
func (s *Store) SearchEvents(ctx context.Context, query string, limit int) ([]memory.Event, error) {
	if memory.IsValidEventCategory(memory.EventCategory(query)) {
		return s.SearchEventsByCategory(ctx, memory.EventCategory(query), limit)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, revision_id, category, summary, occurred_at, extracted_at, model, confidence
		FROM event WHERE summary ILIKE '%' || $1 || '%' ORDER BY extracted_at DESC LIMIT $2`, query, limit)
	if err != nil {
		return nil, memory.NewStorageError("search events by summary", err)
	}
	defer rows.Close()

	var events []memory.Event
	for rows.Next() {
		var e memory.Event
		if err := rows.Scan(&e.EventID, &e.RevisionID, &e.Category, &e.Summary, &e.OccurredAt, &e.ExtractedAt, &e.Model, &e.Confidence); err != nil {
			return nil, memory.NewStorageError("scan event row", err)
		}
		events = append(events, e)
	}
	for i := range events {
		if err := s.fillEvidenceAndLinks(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// SearchEventsByCategory returns events matching category across every
// revision, most recent first, bounded by limit.
func (s *Store) SearchEventsByCategory(ctx context.Context, category memory.EventCategory, limit int) ([]memory.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, revision_id, category, summary, occurred_at, extracted_at, model, confidence
		FROM event WHERE category = $1 ORDER BY extracted_at DESC LIMIT $2`, category, limit)
	if err != nil {
		return nil, memory.NewStorageError("search events by category", err)
	}
	defer rows.Close()

	var events []memory.Event
	for rows.Next() {
		var e memory.Event
		if err := rows.Scan(&e.EventID, &e.RevisionID, &e.Category, &e.Summary, &e.OccurredAt, &e.ExtractedAt, &e.Model, &e.Confidence); err != nil {
			return nil, memory.NewStorageError("scan event row", err)
		}
		events = append(events, e)
	}
	for i := range events {
		if err := s.fillEvidenceAndLinks(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *Store) fillEvidenceAndLinks(ctx context.Context, e *memory.Event) error {
	evRows, err := s.Pool.Query(ctx, `
		SELECT quote, offset_start, offset_end FROM event_evidence WHERE event_id = $1 ORDER BY idx`, e.EventID)
	if err != nil {
		return memory.NewStorageError("query event evidence", err)
	}
	for evRows.Next() {
		var ev memory.Evidence
		if err := evRows.Scan(&ev.Quote, &ev.OffsetStart, &ev.OffsetEnd); err != nil {
			evRows.Close()
			return memory.NewStorageError("scan event evidence", err)
		}
		e.Evidence = append(e.Evidence, ev)
	}
	evRows.Close()

	linkRows, err := s.Pool.Query(ctx, `SELECT entity_id, role FROM event_entity WHERE event_id = $1`, e.EventID)
	if err != nil {
		return memory.NewStorageError("query event links", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var entityID, role string
		if err := linkRows.Scan(&entityID, &role); err != nil {
			return memory.NewStorageError("scan event link", err)
		}
		if role == "actor" {
			e.Actors = append(e.Actors, entityID)
		} else {
			e.Subjects = append(e.Subjects, entityID)
		}
	}
	return nil
}
