package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nur/internal/store/vector"
)

func TestFuseRRF_SingleCollectionScoreIsOneOverCPlusRank(t *testing.T) {
	content := []vector.Result{
		{ID: "art_a", Score: 0.9},
		{ID: "art_b", Score: 0.8},
	}
	out := fuseRRF(content, nil, 60)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0/61.0, out[0].Score, 1e-9)
	assert.InDelta(t, 1.0/62.0, out[1].Score, 1e-9)
}

func TestFuseRRF_PresentInBothCollectionsSumsContributions(t *testing.T) {
	content := []vector.Result{{ID: "art_a", Score: 0.9}}
	chunks := []vector.Result{{ID: "chunk_1", Score: 0.95, Metadata: map[string]string{"artifact_id": "art_a"}}}
	out := fuseRRF(content, chunks, 60)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0/61.0+1.0/61.0, out[0].Score, 1e-9)
}

func TestFuseRRF_ChunksFoldIntoParentKeepingBestRank(t *testing.T) {
	chunks := []vector.Result{
		{ID: "chunk_1", Score: 0.5, Metadata: map[string]string{"artifact_id": "art_a"}},
		{ID: "chunk_2", Score: 0.99, Metadata: map[string]string{"artifact_id": "art_a"}}, // better score but worse rank position
	}
	out := fuseRRF(nil, chunks, 60)
	require.Len(t, out, 1)
	// Rank is positional (1-based index), not score-derived: chunk_1 is rank 1.
	assert.InDelta(t, 1.0/61.0, out[0].Score, 1e-9)
}

func TestFuseRRF_OrdersByScoreDescending(t *testing.T) {
	content := []vector.Result{
		{ID: "art_a", Score: 0.9},
		{ID: "art_b", Score: 0.8},
		{ID: "art_c", Score: 0.7},
	}
	out := fuseRRF(content, nil, 60)
	require.Len(t, out, 3)
	assert.Equal(t, "art_a", out[0].ID)
	assert.Equal(t, "art_b", out[1].ID)
	assert.Equal(t, "art_c", out[2].ID)
}
