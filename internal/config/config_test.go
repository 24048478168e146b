package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDSN(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("NUR_DATABASE_DSN", "postgres://localhost/nur")
	t.Setenv("NUR_MAX_CHUNK_TOKENS", "500")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/nur", cfg.Database.DSN)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkTokens)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlapTokens)
	assert.Equal(t, 0.85, cfg.Resolution.SameThreshold)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.NotEmpty(t, cfg.Queue.WorkerID)
}
