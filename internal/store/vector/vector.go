// Package vector implements C1: named collections of {id, embedding,
// document, metadata} with upsert/query/get/delete, grounded on the
// teacher's internal/persistence/databases qdrant_vector.go and
// interfaces.go VectorStore abstraction, generalized from one collection
// per store instance to named collections within a single store (spec.md
// §6 requires three collections — content, chunks, entities — served by
// one vector backend).
package vector

import "context"

// Record is one point to upsert: an id, its embedding, the source document
// text (stored for retrieval without a round-trip to the relational
// store), and equality-filterable metadata.
type Record struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]string
}

// Result is one ranked match from Query.
type Result struct {
	ID       string
	Score    float64 // similarity score; higher is closer for cosine
	Document string
	Metadata map[string]string
}

// Filter is a conjunction of equality and IN predicates over metadata keys.
// A key listing one value is an equality predicate and a key listing
// several is an IN predicate; Filter is a map[key][]allowed-values so both
// shapes share one type.
type Filter map[string][]string

// Store is the C1 vector store client. Operations operate on a named
// collection; the collection is created lazily on first use with the
// dimension the store was constructed with.
type Store interface {
	// Upsert inserts or updates records by id; idempotent by id.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns at most k results ordered by ascending distance
	// (descending similarity score) matching filter.
	Query(ctx context.Context, collection string, embedding []float32, k int, filter Filter) ([]Result, error)
	// Get returns the records for the given ids, skipping any not found.
	Get(ctx context.Context, collection string, ids []string) ([]Result, error)
	// Delete removes every record in collection matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error
	Close() error
}

// Collection names used throughout the system, per spec.md §6.
const (
	CollectionContent  = "content"
	CollectionChunks   = "chunks"
	CollectionEntities = "entities"
)
