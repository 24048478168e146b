package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertIdempotentAndQuery(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	rec := Record{ID: "art_1", Embedding: []float32{1, 0, 0}, Document: "hello", Metadata: map[string]string{"tenant": "t1"}}
	require.NoError(t, s.Upsert(ctx, "content", []Record{rec}))
	require.NoError(t, s.Upsert(ctx, "content", []Record{rec}))

	res, err := s.Query(ctx, "content", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "art_1", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestMemoryStore_FilterAndDelete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "content", []Record{
		{ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]string{"tenant": "t1"}},
		{ID: "b", Embedding: []float32{1, 0}, Metadata: map[string]string{"tenant": "t2"}},
	}))

	res, err := s.Query(ctx, "content", []float32{1, 0}, 10, Filter{"tenant": {"t1"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)

	require.NoError(t, s.Delete(ctx, "content", Filter{"tenant": {"t1"}}))
	res, err = s.Query(ctx, "content", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}
