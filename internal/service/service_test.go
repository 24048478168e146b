package service

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/llm"
	"nur/internal/memory"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

func openTestStore(t *testing.T) *relational.Store {
	t.Helper()
	dsn := os.Getenv("NUR_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("NUR_TEST_DATABASE_DSN not set")
	}
	s, err := relational.Open(context.Background(), config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Chunking = config.ChunkingConfig{MaxChunkTokens: 1000, ChunkOverlapTokens: 100}
	return cfg
}

func TestRemember_DedupsOnSecondCall(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)
	fake := &llm.Fake{}

	svc := New(rel, vec, g, fake, embedder, testConfig())

	req := RememberRequest{Content: "Hello world.\n", Type: memory.ArtifactNote}
	first, err := svc.Remember(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Deduped)
	require.NotEmpty(t, first.JobID)

	second, err := svc.Remember(ctx, req)
	require.NoError(t, err)
	require.True(t, second.Deduped)
	require.Equal(t, first.ArtifactID, second.ArtifactID)
}

func TestForget_RequiresConfirm(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)
	fake := &llm.Fake{}

	svc := New(rel, vec, g, fake, embedder, testConfig())

	_, err := svc.Forget(ctx, "art_doesnotexist", false)
	require.Error(t, err)
	kind, ok := memory.KindOf(err)
	require.True(t, ok)
	require.Equal(t, memory.KindValidation, kind)
}

func TestForget_MissingArtifactReturnsDeletedFalse(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)
	fake := &llm.Fake{}

	svc := New(rel, vec, g, fake, embedder, testConfig())

	res, err := svc.Forget(ctx, "art_doesnotexist", true)
	require.NoError(t, err)
	require.False(t, res.Deleted)
}

func TestForget_CascadesArtifact(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)
	fake := &llm.Fake{}

	svc := New(rel, vec, g, fake, embedder, testConfig())

	req := RememberRequest{Content: "Forget me please.\n", Type: memory.ArtifactNote}
	result, err := svc.Remember(ctx, req)
	require.NoError(t, err)

	forgetRes, err := svc.Forget(ctx, result.ArtifactID, true)
	require.NoError(t, err)
	require.True(t, forgetRes.Deleted)

	again, err := svc.Forget(ctx, result.ArtifactID, true)
	require.NoError(t, err)
	require.False(t, again.Deleted)
}
