package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic_SameInputSameVector(t *testing.T) {
	e := NewDeterministic(32)
	out1, err := e.EmbedBatch(context.Background(), []string{"Alice Doe"})
	require.NoError(t, err)
	out2, err := e.EmbedBatch(context.Background(), []string{"Alice Doe"})
	require.NoError(t, err)
	assert.Equal(t, out1[0], out2[0])
	assert.Len(t, out1[0], 32)
}

func TestDeterministic_DifferentInputDiffers(t *testing.T) {
	e := NewDeterministic(32)
	out, err := e.EmbedBatch(context.Background(), []string{"Alice Doe", "Bob Smith"})
	require.NoError(t, err)
	assert.NotEqual(t, out[0], out[1])
}
