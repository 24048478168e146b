package relational

import (
	"context"

	"nur/internal/memory"
)

// FindArtifactByContentHash supports ingest-time dedup: if an artifact with
// this exact content hash already exists, re-ingestion is a no-op: ingest
// returns the existing artifact_id and writes no revision, chunk or job.
func (s *Store) FindArtifactByContentHash(ctx context.Context, contentHash string) (memory.Artifact, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT artifact_id, type, source_system, source_id, source_url, ts, title, author,
		       participants, content_hash, token_count, is_chunked, num_chunks, sensitivity,
		       visibility_scope, retention_policy, embedding_provider, embedding_model,
		       embedding_dimensions, ingested_at
		FROM artifact WHERE content_hash = $1`, contentHash)
	a, err := scanArtifact(row)
	if k, ok := memory.KindOf(err); ok && k == memory.KindNotFound {
		return memory.Artifact{}, false, nil
	}
	if err != nil {
		return memory.Artifact{}, false, err
	}
	return a, true, nil
}

// ForgetCounts reports how many rows cascading-delete would remove for an
// artifact, so callers can surface it in a forget confirmation.
type ForgetCounts struct {
	Chunks        int
	Revisions     int
	Events        int
	EntityMentions int
}

// ForgetArtifact deletes the artifact row; ON DELETE CASCADE foreign keys
// (artifact -> revision/chunk_meta, revision -> event/entity_mention,
// event -> event_evidence/event_entity) remove every dependent row in the
// same statement. Entity
// rows themselves are never deleted here: an entity can be referenced by
// mentions from many artifacts, and forgetting one artifact must not erase
// an identity still grounded by others.
func (s *Store) ForgetArtifact(ctx context.Context, artifactID string) (ForgetCounts, error) {
	var counts ForgetCounts
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM chunk_meta WHERE artifact_id = $1`, artifactID).Scan(&counts.Chunks)
	if err != nil {
		return ForgetCounts{}, memory.NewStorageError("count chunks before forget", err)
	}
	err = s.Pool.QueryRow(ctx, `SELECT count(*) FROM revision WHERE artifact_id = $1`, artifactID).Scan(&counts.Revisions)
	if err != nil {
		return ForgetCounts{}, memory.NewStorageError("count revisions before forget", err)
	}
	err = s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM event WHERE revision_id IN (SELECT revision_id FROM revision WHERE artifact_id = $1)`,
		artifactID).Scan(&counts.Events)
	if err != nil {
		return ForgetCounts{}, memory.NewStorageError("count events before forget", err)
	}
	err = s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM entity_mention WHERE revision_id IN (SELECT revision_id FROM revision WHERE artifact_id = $1)`,
		artifactID).Scan(&counts.EntityMentions)
	if err != nil {
		return ForgetCounts{}, memory.NewStorageError("count mentions before forget", err)
	}

	tag, err := s.Pool.Exec(ctx, `DELETE FROM artifact WHERE artifact_id = $1`, artifactID)
	if err != nil {
		return ForgetCounts{}, memory.NewStorageError("delete artifact", err)
	}
	if tag.RowsAffected() == 0 {
		return ForgetCounts{}, memory.NewNotFoundError("artifact not found", nil)
	}
	return counts, nil
}
