package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryStore is an in-process Store for tests, mirroring the teacher's
// noopVector/memory-backed fakes pattern in internal/persistence/databases.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]Record // collection -> id -> record
}

// NewMemory builds an in-process Store with brute-force cosine search,
// suitable for unit tests that need real nearest-neighbor behavior without a
// live Qdrant.
func NewMemory() Store {
	return &memoryStore{data: map[string]map[string]Record{}}
}

func (m *memoryStore) Upsert(_ context.Context, collection string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.data[collection]
	if !ok {
		col = map[string]Record{}
		m.data[collection] = col
	}
	for _, r := range records {
		col[r.ID] = r
	}
	return nil
}

func (m *memoryStore) Query(_ context.Context, collection string, embedding []float32, k int, filter Filter) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.data[collection]
	type scored struct {
		Result
		score float64
	}
	var candidates []scored
	for _, r := range col {
		if !matches(r.Metadata, filter) {
			continue
		}
		candidates = append(candidates, scored{
			Result: Result{ID: r.ID, Document: r.Document, Metadata: r.Metadata},
			score:  cosine(embedding, r.Embedding),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		c.Result.Score = c.score
		out[i] = c.Result
	}
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, collection string, ids []string) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.data[collection]
	var out []Result
	for _, id := range ids {
		if r, ok := col[id]; ok {
			out = append(out, Result{ID: r.ID, Document: r.Document, Metadata: r.Metadata})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.data[collection]
	for id, r := range col {
		if matches(r.Metadata, filter) {
			delete(col, id)
		}
	}
	return nil
}

func (m *memoryStore) Close() error { return nil }

func matches(metadata map[string]string, filter Filter) bool {
	for key, allowed := range filter {
		v, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
