package retrieve

import (
	"sort"

	"nur/internal/store/vector"
)

// fused is one document after Reciprocal Rank Fusion, before graph
// expansion or entity attachment.
type fused struct {
	ID        string
	Score     float64
	Document  string
	Metadata  map[string]string
	Timestamp string
}

// fuseRRF implements spec §4.11 step 3: score(d) = Σ_i 1/(c+rank_i(d)) over
// the content and chunks collections, with chunks folded into their parent
// artifact (the chunk's best rank is inherited by the parent), grounded on
// the teacher's internal/rag/retrieve/fusion.go FuseRRF ranked-union shape,
// narrowed from the teacher's two-weighted-source (FTS+vector) fusion to
// spec's unweighted multi-collection case (no w_ft/w_vec split — every
// collection contributes its raw 1/(c+rank) term).
func fuseRRF(contentHits, chunkHits []vector.Result, c int) []fused {
	if c <= 0 {
		c = 60
	}
	// Per-collection best rank per document id: a chunk hit's id is folded
	// to its parent artifact_id, keeping the lowest (best) rank among that
	// parent's chunks. The content collection already keys by artifact id.
	contentRank := make(map[string]int)
	chunkRank := make(map[string]int)
	docs := make(map[string]fused)

	for i, h := range contentHits {
		rank := i + 1
		if prior, ok := contentRank[h.ID]; !ok || rank < prior {
			contentRank[h.ID] = rank
		}
		if _, ok := docs[h.ID]; !ok {
			docs[h.ID] = fused{ID: h.ID, Document: h.Document, Metadata: h.Metadata, Timestamp: h.Metadata["timestamp"]}
		}
	}
	for i, h := range chunkHits {
		id := h.ID
		if parent := h.Metadata["artifact_id"]; parent != "" {
			id = parent
		}
		rank := i + 1
		if prior, ok := chunkRank[id]; !ok || rank < prior {
			chunkRank[id] = rank
		}
		if _, ok := docs[id]; !ok {
			docs[id] = fused{ID: id, Document: h.Document, Metadata: h.Metadata, Timestamp: h.Metadata["timestamp"]}
		}
	}

	scores := make(map[string]float64, len(docs))
	for id := range docs {
		var score float64
		if rank, ok := contentRank[id]; ok {
			score += 1.0 / float64(c+rank)
		}
		if rank, ok := chunkRank[id]; ok {
			score += 1.0 / float64(c+rank)
		}
		scores[id] = score
	}

	out := make([]fused, 0, len(scores))
	for id, score := range scores {
		d := docs[id]
		d.Score = score
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
