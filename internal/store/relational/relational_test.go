package relational

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/memory"
)

// openTestStore skips the test unless NUR_TEST_DATABASE_DSN is set, the same
// convention the teacher's internal/auth/store_test.go uses for DATABASE_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("NUR_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("NUR_TEST_DATABASE_DSN not set")
	}
	s, err := Open(context.Background(), config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestArtifactDedupAndForget(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := memory.Artifact{
		ArtifactID:      "art_abc123",
		Type:            memory.ArtifactNote,
		ContentHash:     "hash-abc123",
		Sensitivity:     memory.SensitivityNormal,
		VisibilityScope: memory.VisibilityTeam,
		Timestamp:       time.Now(),
		IngestedAt:      time.Now(),
	}
	revID := "rev_1"

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		return InsertArtifactAndRevisionTx(ctx, tx, a, revID)
	})
	require.NoError(t, err)

	found, ok, err := s.FindArtifactByContentHash(ctx, a.ContentHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ArtifactID, found.ArtifactID)

	counts, err := s.ForgetArtifact(ctx, a.ArtifactID)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Revisions)

	_, ok, err = s.FindArtifactByContentHash(ctx, a.ContentHash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJobClaimAckNackLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := memory.Job{JobID: "job_1", Kind: memory.JobExtractEvents, Payload: []byte(`{}`), MaxAttempts: 2, NotBefore: time.Now()}
	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		return EnqueueJobTx(ctx, tx, job)
	})
	require.NoError(t, err)

	claimed, err := s.ClaimJob(ctx, memory.JobExtractEvents, "worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, memory.JobInFlight, claimed.State)
	require.Equal(t, 1, claimed.Attempts)

	_, err = s.ClaimJob(ctx, memory.JobExtractEvents, "worker-2", time.Minute)
	kind, isMemoryErr := memory.KindOf(err)
	require.True(t, isMemoryErr)
	require.Equal(t, memory.KindNotFound, kind)

	require.NoError(t, s.NackJob(ctx, claimed.JobID, claimed.Attempts, claimed.MaxAttempts, time.Millisecond, "transient failure"))

	got, err := s.GetJob(ctx, claimed.JobID)
	require.NoError(t, err)
	require.Equal(t, memory.JobPending, got.State)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := s.ClaimJob(ctx, memory.JobExtractEvents, "worker-1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, reclaimed.Attempts)

	require.NoError(t, s.NackJob(ctx, reclaimed.JobID, reclaimed.Attempts, reclaimed.MaxAttempts, time.Millisecond, "still failing"))
	dead, err := s.GetJob(ctx, reclaimed.JobID)
	require.NoError(t, err)
	require.Equal(t, memory.JobDead, dead.State)
}

func TestEventAndEntityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := memory.Artifact{ArtifactID: "art_e1", Type: memory.ArtifactNote, ContentHash: "hash-e1",
		Sensitivity: memory.SensitivityNormal, VisibilityScope: memory.VisibilityTeam, Timestamp: time.Now(), IngestedAt: time.Now()}
	revID := "rev_e1"
	require.NoError(t, s.WithTransaction(ctx, func(tx pgx.Tx) error {
		return InsertArtifactAndRevisionTx(ctx, tx, a, revID)
	}))

	entity := memory.Entity{EntityID: "ent_1", Type: memory.EntityPerson, CanonicalName: "Ada Lovelace",
		Aliases: []string{"Ada Lovelace"}, CreatedAt: time.Now(), LastSeenAt: time.Now()}
	require.NoError(t, s.WithTransaction(ctx, func(tx pgx.Tx) error {
		return InsertEntityTx(ctx, tx, entity)
	}))

	ev := memory.Event{
		EventID: "evt_1", RevisionID: revID, Category: memory.EventDecision, Summary: "chose plan A",
		Evidence:    []memory.Evidence{{Quote: "we chose plan A", OffsetStart: 0, OffsetEnd: 16}},
		Actors:      []string{"ent_1"},
		ExtractedAt: time.Now(), Confidence: 0.9,
	}
	require.NoError(t, s.WithTransaction(ctx, func(tx pgx.Tx) error {
		return InsertEventTx(ctx, tx, ev)
	}))

	got, err := s.GetEvent(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, "chose plan A", got.Summary)
	require.Len(t, got.Evidence, 1)
	require.Equal(t, []string{"ent_1"}, got.Actors)

	list, err := s.ListEventsForRevision(ctx, revID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
