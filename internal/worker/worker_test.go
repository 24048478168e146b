package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/extract"
	"nur/internal/llm"
	"nur/internal/memory"
	"nur/internal/queue"
	"nur/internal/resolve"
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

func resolutionCfg() config.ResolutionConfig {
	return config.ResolutionConfig{RecallThreshold: 0.25, SameThreshold: 0.85, UncertainThreshold: 0.60, TopK: 10}
}

func queueCfg() config.QueueConfig {
	return config.QueueConfig{LeaseSeconds: 60, MaxAttempts: 5, RetryBackoffBase: 1, RetryBackoffCap: 60, WorkerPollIntervalMs: 50, WorkerID: "test-worker"}
}

// TestHandleExtractEvents_PersistsEventAndGraph drives one extract_events job
// end to end: revision content comes from the content collection (ingest's
// durable store of full canonical text), extraction and resolution both
// succeed, and the event lands in the relational store with its own
// graph_upsert job enqueued. Running that follow-up job is what materializes
// the event's graph node and edges (C10 is a separate job from C8/C9).
func TestHandleExtractEvents_PersistsEventAndGraph(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)

	content := "Alice decided to ship v2 on 2025-03-01."
	docs, err := embedder.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)

	a := memory.Artifact{
		ArtifactID: "art_job1", Type: memory.ArtifactNote, ContentHash: "hjob1",
		Sensitivity: memory.SensitivityNormal, VisibilityScope: memory.VisibilityTeam,
		Timestamp: time.Now(), IngestedAt: time.Now(),
	}
	revisionID := "rev_job1"
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertArtifactAndRevisionTx(ctx, tx, a, revisionID)
	}))
	require.NoError(t, vec.Upsert(ctx, vector.CollectionContent, []vector.Record{
		{ID: a.ArtifactID, Embedding: docs[0], Document: content},
	}))

	q := queue.New(rel, queueCfg())
	require.NoError(t, q.Enqueue(ctx, "job_extract1", memory.JobExtractEvents, map[string]string{"revision_id": revisionID}))

	fakeExtract := &llm.Fake{Responses: []string{
		`{"events":[{"category":"decision","summary":"shipping v2","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"occurred_at":"2025-03-01","confidence":0.9}]}`,
		`{"events":[{"category":"decision","summary":"Alice decided to ship v2","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"occurred_at":"2025-03-01","confidence":0.9}]}`,
	}}
	extractor := extract.New(fakeExtract, "test-model")

	fakeResolve := &llm.Fake{}
	resolver := resolve.New(embedder, vec, rel, g, fakeResolve, "test-model", resolutionCfg())

	w := New(q, rel, vec, g, extractor, resolver, queueCfg())

	job, err := q.Claim(ctx, memory.JobExtractEvents, "test-worker")
	require.NoError(t, err)

	require.NoError(t, w.handleExtractEvents(ctx, job))

	events, err := rel.ListEventsForArtifact(ctx, a.ArtifactID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].Actors, 1)
	aliceID := events[0].Actors[0]

	// the entity node already exists: resolve.Resolver upserts it synchronously
	// as part of create/merge, independent of the graph_upsert job.
	node, ok, err := g.GetNode(ctx, aliceID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, aliceID, node.ID)

	graphJob, err := q.Claim(ctx, memory.JobGraphUpsert, "test-worker")
	require.NoError(t, err)
	require.NoError(t, w.handleGraphUpsert(ctx, graphJob))

	eventNode, ok, err := g.GetNode(ctx, events[0].EventID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, events[0].EventID, eventNode.ID)

	neighbors, err := g.Neighbors(ctx, aliceID, memory.EdgeActedIn)
	require.NoError(t, err)
	require.Contains(t, neighbors, events[0].EventID)
}

// TestHandleExtractEvents_UnresolvableMentionDropsEventNotJob asserts a
// mention that fails resolution (here, via a malformed LLM confirmation
// response) drops only its enclosing event; the job itself still succeeds.
func TestHandleExtractEvents_UnresolvableMentionDropsEventNotJob(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	embedder := embedding.NewDeterministic(32)

	content := "Bob approved the budget on 2025-04-01."
	docs, err := embedder.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)

	a := memory.Artifact{
		ArtifactID: "art_job2", Type: memory.ArtifactNote, ContentHash: "hjob2",
		Sensitivity: memory.SensitivityNormal, VisibilityScope: memory.VisibilityTeam,
		Timestamp: time.Now(), IngestedAt: time.Now(),
	}
	revisionID := "rev_job2"
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertArtifactAndRevisionTx(ctx, tx, a, revisionID)
	}))
	require.NoError(t, vec.Upsert(ctx, vector.CollectionContent, []vector.Record{
		{ID: a.ArtifactID, Embedding: docs[0], Document: content},
	}))

	// seed an existing "Bob" entity so resolution has a candidate to confirm
	// against, then force its confirm response to be unparseable.
	bobEmbedding, err := embedder.EmbedBatch(ctx, []string{"Bob"})
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(ctx, vector.CollectionEntities, []vector.Record{
		{ID: "ent_bob_seed", Embedding: bobEmbedding[0], Document: "Bob"},
	}))
	require.NoError(t, rel.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.InsertEntityTx(ctx, tx, memory.Entity{
			EntityID: "ent_bob_seed", Type: memory.EntityPerson, CanonicalName: "Bob",
			CreatedAt: time.Now(), LastSeenAt: time.Now(),
		})
	}))

	q := queue.New(rel, queueCfg())
	require.NoError(t, q.Enqueue(ctx, "job_extract2", memory.JobExtractEvents, map[string]string{"revision_id": revisionID}))

	fakeExtract := &llm.Fake{Responses: []string{
		`{"events":[{"category":"decision","summary":"approved budget","evidence":["Bob approved the budget on 2025-04-01."],"mentions":[{"surface_form":"Bob","offset":0,"role":"actor"}],"occurred_at":"2025-04-01","confidence":0.9}]}`,
		`{"events":[{"category":"decision","summary":"Bob approved the budget","evidence":["Bob approved the budget on 2025-04-01."],"mentions":[{"surface_form":"Bob","offset":0,"role":"actor"}],"occurred_at":"2025-04-01","confidence":0.9}]}`,
	}}
	extractor := extract.New(fakeExtract, "test-model")

	fakeResolve := &llm.Fake{Responses: []string{"not json"}}
	resolver := resolve.New(embedder, vec, rel, g, fakeResolve, "test-model", resolutionCfg())

	w := New(q, rel, vec, g, extractor, resolver, queueCfg())

	job, err := q.Claim(ctx, memory.JobExtractEvents, "test-worker")
	require.NoError(t, err)

	require.NoError(t, w.handleExtractEvents(ctx, job))

	events, err := rel.ListEventsForArtifact(ctx, a.ArtifactID)
	require.NoError(t, err)
	require.Empty(t, events)
}
