package relational

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/memory"
)

// FindArtifactByID returns the artifact row, or NotFoundError if absent.
func (s *Store) FindArtifactByID(ctx context.Context, artifactID string) (memory.Artifact, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT artifact_id, type, source_system, source_id, source_url, ts, title, author,
		       participants, content_hash, token_count, is_chunked, num_chunks, sensitivity,
		       visibility_scope, retention_policy, embedding_provider, embedding_model,
		       embedding_dimensions, ingested_at
		FROM artifact WHERE artifact_id = $1`, artifactID)
	return scanArtifact(row)
}

func scanArtifact(row pgx.Row) (memory.Artifact, error) {
	var a memory.Artifact
	var ts, ingestedAt time.Time
	var sourceSystem, sourceID, sourceURL, title, author, retention, embProvider, embModel *string
	var embDims *int
	err := row.Scan(&a.ArtifactID, &a.Type, &sourceSystem, &sourceID, &sourceURL, &ts, &title, &author,
		&a.Participants, &a.ContentHash, &a.TokenCount, &a.IsChunked, &a.NumChunks, &a.Sensitivity,
		&a.VisibilityScope, &retention, &embProvider, &embModel, &embDims, &ingestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Artifact{}, memory.NewNotFoundError("artifact not found", err)
	}
	if err != nil {
		return memory.Artifact{}, memory.NewStorageError("scan artifact", err)
	}
	a.Timestamp = ts
	a.IngestedAt = ingestedAt
	if sourceSystem != nil {
		a.SourceSystem = *sourceSystem
	}
	if sourceID != nil {
		a.SourceID = *sourceID
	}
	if sourceURL != nil {
		a.SourceURL = *sourceURL
	}
	if title != nil {
		a.Title = *title
	}
	if author != nil {
		a.Author = *author
	}
	if retention != nil {
		a.RetentionPolicy = *retention
	}
	if embProvider != nil {
		a.EmbeddingProvider = *embProvider
	}
	if embModel != nil {
		a.EmbeddingModel = *embModel
	}
	if embDims != nil {
		a.EmbeddingDimensions = *embDims
	}
	return a, nil
}

// GetRevision returns the revision row, or NotFoundError if absent. Workers
// use this to map a revision_id (the only identifier a job payload carries)
// back to its owning artifact_id before fetching content from the vector
// store.
func (s *Store) GetRevision(ctx context.Context, revisionID string) (memory.Revision, error) {
	var r memory.Revision
	err := s.Pool.QueryRow(ctx, `SELECT revision_id, artifact_id, created_at FROM revision WHERE revision_id = $1`, revisionID).
		Scan(&r.RevisionID, &r.ArtifactID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Revision{}, memory.NewNotFoundError("revision not found", err)
	}
	if err != nil {
		return memory.Revision{}, memory.NewStorageError("scan revision", err)
	}
	return r, nil
}

// InsertArtifactAndRevisionTx writes the artifact row (if new) and a fresh
// revision row inside tx, so callers can compose it with an outbox job
// insert in the same transaction (§4.6/§9).
func InsertArtifactAndRevisionTx(ctx context.Context, tx pgx.Tx, a memory.Artifact, revisionID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO artifact (artifact_id, type, source_system, source_id, source_url, ts, title, author,
			participants, content_hash, token_count, is_chunked, num_chunks, sensitivity, visibility_scope,
			retention_policy, embedding_provider, embedding_model, embedding_dimensions, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,COALESCE($9::text[], '{}'),$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (artifact_id) DO NOTHING`,
		a.ArtifactID, a.Type, a.SourceSystem, a.SourceID, a.SourceURL, a.Timestamp, a.Title, a.Author,
		a.Participants, a.ContentHash, a.TokenCount, a.IsChunked, a.NumChunks, a.Sensitivity, a.VisibilityScope,
		a.RetentionPolicy, a.EmbeddingProvider, a.EmbeddingModel, a.EmbeddingDimensions, a.IngestedAt)
	if err != nil {
		return memory.NewStorageError("insert artifact", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO revision (revision_id, artifact_id, created_at) VALUES ($1,$2,$3)`,
		revisionID, a.ArtifactID, time.Now())
	if err != nil {
		return memory.NewStorageError("insert revision", err)
	}
	return nil
}

// InsertChunkMetaTx records chunk boundary metadata alongside the vector
// upsert, so forget() can compute accurate cascade_counts without querying
// the vector store.
func InsertChunkMetaTx(ctx context.Context, tx pgx.Tx, c memory.Chunk) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO chunk_meta (chunk_id, artifact_id, chunk_index, start_char, end_char, token_count, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (chunk_id) DO NOTHING`,
		c.ChunkID, c.ArtifactID, c.ChunkIndex, c.StartChar, c.EndChar, c.TokenCount, c.ContentHash)
	if err != nil {
		return memory.NewStorageError("insert chunk meta", err)
	}
	return nil
}

// CountChunks returns the number of chunk_meta rows for artifactID.
func (s *Store) CountChunks(ctx context.Context, artifactID string) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM chunk_meta WHERE artifact_id = $1`, artifactID).Scan(&n)
	if err != nil {
		return 0, memory.NewStorageError("count chunks", err)
	}
	return n, nil
}
