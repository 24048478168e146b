// Package ids derives the content-addressed and opaque identifiers named in
// spec.md §3: art_<12 hex of sha256>, evt_<uuid>, ent_<uuid>, and raw job
// UUIDs. The content hash is grounded on the teacher's
// internal/rag/ingest/preprocess.go ComputeHash, narrowed to hash
// canonicalized content only (the teacher also folds in source/url, which
// spec.md's artifact_id invariant — "a pure function of canonicalized
// content" — explicitly excludes).
package ids

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// ContentHash returns the full hex-encoded SHA-256 of content, used both to
// derive ArtifactID and stored verbatim as Artifact.ContentHash /
// Chunk.ContentHash.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ArtifactID derives the art_<12 hex> identifier from a full content hash.
func ArtifactID(contentHash string) string {
	n := 12
	if len(contentHash) < n {
		n = len(contentHash)
	}
	return "art_" + contentHash[:n]
}

// NewRevisionID returns a fresh revision id (raw UUID string).
func NewRevisionID() string { return uuid.NewString() }

// NewEventID returns a fresh evt_<uuid> identifier.
func NewEventID() string { return "evt_" + uuid.NewString() }

// NewEntityID returns a fresh ent_<uuid> identifier.
func NewEntityID() string { return "ent_" + uuid.NewString() }

// NewMentionID returns a fresh mention identifier (raw UUID string).
func NewMentionID() string { return uuid.NewString() }

// NewJobID returns a fresh job identifier (raw UUID string).
func NewJobID() string { return uuid.NewString() }

// DeterministicUUID maps an arbitrary string id to a stable UUIDv5, used
// when a store (Qdrant) only accepts UUID/integer point ids, grounded on
// the teacher's qdrant_vector.go Upsert/Delete id-mapping trick.
func DeterministicUUID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}
