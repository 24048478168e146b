// Package ingest implements C6: canonicalize → dedup check → revision →
// chunk → embed → vector upsert → relational transaction with an
// extract_events job enqueued via the outbox pattern. Grounded on the
// teacher's internal/rag/ingest package (api.go's Request/Response shape,
// preprocess.go's normalize-then-hash pipeline, idempotency.go's
// lookup-by-hash dedup decision), generalized from manifold's documents to
// this spec's artifacts/revisions.
package ingest

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/chunk"
	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/ids"
	"nur/internal/memory"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

// Request is the caller-facing shape for remember(), matching spec §4.6's
// input fields.
type Request struct {
	Content         string
	Type            memory.ArtifactType
	SourceSystem    string
	SourceID        string
	SourceURL       string
	Timestamp       time.Time
	Title           string
	Author          string
	Participants    []string
	Sensitivity     memory.Sensitivity
	VisibilityScope memory.VisibilityScope
	RetentionPolicy string
}

// Response is remember()'s result.
type Response struct {
	ArtifactID string
	RevisionID string
	Deduped    bool
	NumChunks  int
	JobID      string
}

// Ingestor wires the vector, relational, and embedding tiers into the C6
// pipeline.
type Ingestor struct {
	relational *relational.Store
	vector     vector.Store
	embedder   embedding.Embedder
	chunking   config.ChunkingConfig
}

// New builds an Ingestor.
func New(rel *relational.Store, vec vector.Store, embedder embedding.Embedder, chunking config.ChunkingConfig) *Ingestor {
	return &Ingestor{relational: rel, vector: vec, embedder: embedder, chunking: chunking}
}

var crlf = strings.NewReplacer("\r\n", "\n", "\r", "\n")
var trailingWhitespace = regexp.MustCompile(`(?m)[ \t]+$`)

// canonicalize normalizes line endings and trims trailing whitespace per
// line, the pair of transforms spec §4.6 names, and then ends the text with
// exactly one "\n" (trailing newlines collapsed, one added if missing), so
// artifact_id stays a pure function of content regardless of the caller's
// line-ending style.
func canonicalize(content string) string {
	normalized := crlf.Replace(content)
	normalized = trailingWhitespace.ReplaceAllString(normalized, "")
	return strings.TrimRight(normalized, "\n") + "\n"
}

// Remember executes C6 end to end. If an artifact with identical
// canonicalized content already exists, it returns {deduped: true} without
// any side effects (§4.6's idempotent re-ingest case).
func (ing *Ingestor) Remember(ctx context.Context, req Request) (Response, error) {
	canonical := canonicalize(req.Content)
	contentHash := ids.ContentHash(canonical)
	artifactID := ids.ArtifactID(contentHash)

	if _, ok, err := ing.relational.FindArtifactByContentHash(ctx, contentHash); err != nil {
		return Response{}, err
	} else if ok {
		return Response{ArtifactID: artifactID, Deduped: true}, nil
	}

	tokenCount := chunk.CountTokens(canonical)
	chunks := chunk.Split(artifactID, canonical, chunk.Options{
		MaxTokens:     ing.chunking.MaxChunkTokens,
		OverlapTokens: ing.chunking.ChunkOverlapTokens,
	})
	isChunked := len(chunks) > 1
	revisionID := ids.NewRevisionID()

	artifact := memory.Artifact{
		ArtifactID:      artifactID,
		Type:            req.Type,
		SourceSystem:    req.SourceSystem,
		SourceID:        req.SourceID,
		SourceURL:       req.SourceURL,
		Timestamp:       req.Timestamp,
		Title:           req.Title,
		Author:          req.Author,
		Participants:    req.Participants,
		ContentHash:     contentHash,
		TokenCount:      tokenCount,
		IsChunked:       isChunked,
		NumChunks:       len(chunks),
		Sensitivity:     req.Sensitivity,
		VisibilityScope: req.VisibilityScope,
		RetentionPolicy: req.RetentionPolicy,
		EmbeddingProvider: ing.embedder.Name(),
		EmbeddingModel:    ing.embedder.Name(),
		EmbeddingDimensions: ing.embedder.Dimension(),
		IngestedAt:          time.Now(),
	}

	chunkEmbeddings, err := ing.embedChunks(ctx, canonical, chunks)
	if err != nil {
		return Response{}, err
	}

	if len(chunks) > 0 {
		chunkRecords := make([]vector.Record, len(chunks))
		for i, c := range chunks {
			chunkRecords[i] = vector.Record{
				ID:        c.ChunkID,
				Embedding: chunkEmbeddings[i],
				Document:  c.Content,
				Metadata: map[string]string{
					"artifact_id": artifactID,
					"chunk_index": strconv.Itoa(c.ChunkIndex),
					"revision_id": revisionID,
					"timestamp":   req.Timestamp.Format(time.RFC3339),
				},
			}
		}
		if err := ing.vector.Upsert(ctx, vector.CollectionChunks, chunkRecords); err != nil {
			return Response{}, err
		}
	}

	// For unchunked artifacts this is the exact content embedding spec §4.6
	// names. For chunked ones it is the first chunk's embedding, standing
	// in for the whole document so content-collection search still reaches
	// this artifact; recall ranks primarily through the chunks collection
	// for those.
	artifactEmbedding := chunkEmbeddings[0]
	if err := ing.vector.Upsert(ctx, vector.CollectionContent, []vector.Record{{
		ID:        artifactID,
		Embedding: artifactEmbedding,
		Document:  canonical,
		Metadata: map[string]string{
			"artifact_id": artifactID,
			"type":        string(req.Type),
			"revision_id": revisionID,
			"timestamp":   req.Timestamp.Format(time.RFC3339),
		},
	}}); err != nil {
		return Response{}, err
	}

	jobPayload, err := json.Marshal(map[string]string{"revision_id": revisionID})
	if err != nil {
		return Response{}, memory.NewValidationError("marshal extract_events payload", err)
	}
	job := memory.Job{
		JobID:       ids.NewJobID(),
		Kind:        memory.JobExtractEvents,
		Payload:     jobPayload,
		MaxAttempts: 5,
		NotBefore:   time.Now(),
	}

	err = ing.relational.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := relational.InsertArtifactAndRevisionTx(ctx, tx, artifact, revisionID); err != nil {
			return err
		}
		for _, c := range chunks {
			if err := relational.InsertChunkMetaTx(ctx, tx, c); err != nil {
				return err
			}
		}
		return relational.EnqueueJobTx(ctx, tx, job)
	})
	if err != nil {
		return Response{}, err
	}

	return Response{ArtifactID: artifactID, RevisionID: revisionID, NumChunks: len(chunks), JobID: job.JobID}, nil
}

// embedChunks embeds every chunk's content in one batch call. When the
// artifact is unchunked (exactly one chunk spanning the whole text), that
// single embedding is also the content-collection embedding, avoiding a
// second call to C4 for the same text.
func (ing *Ingestor) embedChunks(ctx context.Context, canonical string, chunks []memory.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		vecs, err := ing.embedder.EmbedBatch(ctx, []string{canonical})
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return ing.embedder.EmbedBatch(ctx, texts)
}
