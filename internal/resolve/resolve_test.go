package resolve

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/llm"
	"nur/internal/memory"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

func TestEnrichedText_IncludesContextClues(t *testing.T) {
	m := Mention{SurfaceForm: "Alice", ContextClues: map[string]string{"role": "engineer"}}
	got := enrichedText(m)
	assert.Contains(t, got, "Alice")
	assert.Contains(t, got, "role: engineer")
}

func TestEnrichedText_SurfaceFormOnlyWhenNoClues(t *testing.T) {
	m := Mention{SurfaceForm: "Alice"}
	assert.Equal(t, "Alice", enrichedText(m))
}

// openTestStore skips unless NUR_TEST_DATABASE_DSN is set, the same
// convention as internal/store/relational's integration tests.
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

func defaultCfg() config.ResolutionConfig {
	return config.ResolutionConfig{RecallThreshold: 0.25, SameThreshold: 0.85, UncertainThreshold: 0.60, TopK: 10}
}

func TestResolve_NoCandidatesCreatesEntity(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	fake := &llm.Fake{}
	r := New(embedding.NewDeterministic(32), vec, rel, g, fake, "test-model", defaultCfg())

	res, err := r.Resolve(ctx, Mention{SurfaceForm: "Acme Corp", EntityType: memory.EntityOrganization, RevisionID: "rev_1"})
	require.NoError(t, err)
	assert.Equal(t, memory.DecisionCreated, res.Decision)
	assert.NotEmpty(t, res.EntityID)
	assert.Empty(t, fake.Calls) // no candidates found, so the LLM confirm step never runs
}

func TestResolve_SameSurfaceFormMergesOnSecondMention(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	fake := &llm.Fake{Responses: []string{`{"decision":"same","score":0.95}`}}
	r := New(embedding.NewDeterministic(32), vec, rel, g, fake, "test-model", defaultCfg())

	mention := Mention{SurfaceForm: "Bob Smith", EntityType: memory.EntityPerson, RevisionID: "rev_1"}
	first, err := r.Resolve(ctx, mention)
	require.NoError(t, err)
	require.Equal(t, memory.DecisionCreated, first.Decision)

	second, err := r.Resolve(ctx, mention)
	require.NoError(t, err)
	assert.Equal(t, memory.DecisionMerged, second.Decision)
	assert.Equal(t, first.EntityID, second.EntityID)
}

func TestResolve_UncertainCreatesWithPossiblySameEdge(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	fake := &llm.Fake{Responses: []string{`{"decision":"uncertain","score":0.70}`}}
	r := New(embedding.NewDeterministic(32), vec, rel, g, fake, "test-model", defaultCfg())

	mention := Mention{SurfaceForm: "Carol Jones", EntityType: memory.EntityPerson, RevisionID: "rev_1"}
	first, err := r.Resolve(ctx, mention)
	require.NoError(t, err)
	require.Equal(t, memory.DecisionCreated, first.Decision)

	second, err := r.Resolve(ctx, mention)
	require.NoError(t, err)
	assert.Equal(t, memory.DecisionUncertain, second.Decision)
	assert.NotEqual(t, first.EntityID, second.EntityID)

	neighbors, err := g.Neighbors(ctx, second.EntityID, memory.EdgePossiblySame)
	require.NoError(t, err)
	assert.Contains(t, neighbors, first.EntityID)
}

func TestResolve_LLMConfirmationErrorPropagatesAsEntityResolutionKind(t *testing.T) {
	rel := openTestStore(t)
	ctx := context.Background()

	vec := vector.NewMemory()
	g := graph.NewMemory()
	fake := &llm.Fake{Responses: []string{"not json"}}
	r := New(embedding.NewDeterministic(32), vec, rel, g, fake, "test-model", defaultCfg())

	mention := Mention{SurfaceForm: "Dana Lee", EntityType: memory.EntityPerson, RevisionID: "rev_1"}
	_, err := r.Resolve(ctx, mention)
	require.NoError(t, err) // first mention: no candidates yet, create path, no LLM call

	_, err = r.Resolve(ctx, mention)
	require.Error(t, err)
	kind, ok := memory.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, memory.KindEntityResolution, kind)
}
