package embedding

import (
	"context"
	"hash/fnv"
)

// deterministicEmbedder hashes byte 3-grams into a fixed-size vector,
// grounded on the teacher's internal/rag/embedder deterministicEmbedder. It
// lets store/vector and resolve tests exercise cosine-distance behavior
// without a live embedding endpoint.
type deterministicEmbedder struct {
	dim  int
	name string
}

// NewDeterministic builds a test-only Embedder with the given dimension.
func NewDeterministic(dim int) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, name: "deterministic"}
}

func (d *deterministicEmbedder) Name() string   { return d.name }
func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		add(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			add(b[i:i+3], v)
		}
	}
	L2Normalize(v)
	return v
}

func add(gram []byte, v []float32) {
	h := fnv.New64a()
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
