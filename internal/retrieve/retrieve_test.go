package retrieve

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/embedding"
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

func TestRetrieve_FusesAndOrdersByScore(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)

	docs, err := embedder.EmbedBatch(ctx, []string{"the launch decision", "unrelated weather report"})
	require.NoError(t, err)

	require.NoError(t, vec.Upsert(ctx, vector.CollectionContent, []vector.Record{
		{ID: "art_launch", Embedding: docs[0], Document: "the launch decision"},
		{ID: "art_weather", Embedding: docs[1], Document: "unrelated weather report"},
	}))

	a := memory.Artifact{
		ArtifactID: "art_launch", Type: memory.ArtifactNote, ContentHash: "h1",
		Sensitivity: memory.SensitivityNormal, VisibilityScope: memory.VisibilityTeam, Timestamp: time.Now(), IngestedAt: time.Now(),
	}
	revisionID := "rev_launch"
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertArtifactAndRevisionTx(ctx, tx, a, revisionID)
	}))
	event := memory.Event{
		EventID: "evt_launch", RevisionID: revisionID, Category: memory.EventDecision,
		Summary: "shipped", Evidence: []memory.Evidence{{Quote: "x", OffsetStart: 0, OffsetEnd: 1}},
		Actors: []string{"ent_alice"}, ExtractedAt: time.Now(), Model: "test", Confidence: 0.9,
	}
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertEventTx(ctx, tx, event)
	}))

	svc := New(embedder, vec, g, rel, config.RetrievalConfig{RRFConstant: 60}, config.GraphTraversalConfig{PossiblySameThreshold: 0.75})

	resp, err := svc.Retrieve(ctx, Request{Query: "the launch decision", K: 5, IncludeEvents: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	require.Equal(t, "art_launch", resp.Items[0].ArtifactID)
	require.Len(t, resp.Items[0].Events, 1)
	require.Equal(t, "evt_launch", resp.Items[0].Events[0].EventID)
}

func TestRetrieve_GraphExpandAttachesRelatedContext(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)

	docs, err := embedder.EmbedBatch(ctx, []string{"the launch decision"})
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(ctx, vector.CollectionContent, []vector.Record{
		{ID: "art_launch2", Embedding: docs[0], Document: "the launch decision"},
	}))

	a := memory.Artifact{
		ArtifactID: "art_launch2", Type: memory.ArtifactNote, ContentHash: "h2",
		Sensitivity: memory.SensitivityNormal, VisibilityScope: memory.VisibilityTeam, Timestamp: time.Now(), IngestedAt: time.Now(),
	}
	revisionID := "rev_launch2"
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertArtifactAndRevisionTx(ctx, tx, a, revisionID)
	}))
	event := memory.Event{
		EventID: "evt_launch2", RevisionID: revisionID, Category: memory.EventDecision,
		Summary: "shipped", Evidence: []memory.Evidence{{Quote: "x", OffsetStart: 0, OffsetEnd: 1}},
		Actors: []string{"ent_alice2"}, ExtractedAt: time.Now(), Model: "test", Confidence: 0.9,
	}
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertEventTx(ctx, tx, event)
	}))

	require.NoError(t, g.UpsertNode(ctx, "evt_launch2", []string{memory.LabelEvent}, map[string]any{"category": "decision"}))
	require.NoError(t, g.UpsertNode(ctx, "ent_alice2", []string{memory.LabelEntity}, map[string]any{"type": "person"}))
	require.NoError(t, g.UpsertEdge(ctx, "ent_alice2", memory.EdgeActedIn, "evt_launch2", nil))

	svc := New(embedder, vec, g, rel, config.RetrievalConfig{RRFConstant: 60}, config.GraphTraversalConfig{PossiblySameThreshold: 0.75, SeedLimit: 10, Budget: 50})

	resp, err := svc.Retrieve(ctx, Request{Query: "the launch decision", K: 5, IncludeEvents: true, GraphExpand: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	require.NotEmpty(t, resp.Items[0].RelatedContext)
}
