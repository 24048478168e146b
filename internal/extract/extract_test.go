package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nur/internal/llm"
)

const revisionContent = "Alice decided to ship v2 on 2025-03-01."

func TestExtract_HappyPath(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`{"events":[{"category":"decision","summary":"shipping v2","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"occurred_at":"2025-03-01","confidence":0.9}]}`,
		`{"events":[{"category":"decision","summary":"Alice decided to ship v2","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"occurred_at":"2025-03-01","confidence":0.9}]}`,
	}}
	ex := New(fake, "test-model")

	extracted, dropped, err := ex.Extract(context.Background(), "rev_1", revisionContent)
	require.NoError(t, err)
	require.Empty(t, dropped)
	require.Len(t, extracted, 1)
	assert.Equal(t, "decision", string(extracted[0].Event.Category))
	require.Len(t, extracted[0].Mentions, 1)
	assert.Equal(t, "Alice", extracted[0].Mentions[0].SurfaceForm)
	assert.Equal(t, "actor", extracted[0].Mentions[0].Role)
	require.Len(t, extracted[0].Event.Evidence, 1)
	assert.Equal(t, revisionContent, extracted[0].Event.Evidence[0].Quote)
	require.NotNil(t, extracted[0].Event.OccurredAt)
}

func TestExtract_DropsEventWithFabricatedEvidence(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`{"events":[{"category":"decision","summary":"x","evidence":["not in text"],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"confidence":0.5}]}`,
		`{"events":[{"category":"decision","summary":"x","evidence":["not in text"],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"confidence":0.5}]}`,
	}}
	ex := New(fake, "test-model")

	extracted, dropped, err := ex.Extract(context.Background(), "rev_1", revisionContent)
	require.NoError(t, err)
	assert.Empty(t, extracted)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Reason, "literal substring")
}

func TestExtract_DropsEventWithNoActorOrSubject(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`{"events":[{"category":"decision","summary":"x","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[],"confidence":0.5}]}`,
		`{"events":[{"category":"decision","summary":"x","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[],"confidence":0.5}]}`,
	}}
	ex := New(fake, "test-model")

	extracted, dropped, err := ex.Extract(context.Background(), "rev_1", revisionContent)
	require.NoError(t, err)
	assert.Empty(t, extracted)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Reason, "actor or subject")
}

func TestExtract_DropsEventWithInvalidCategory(t *testing.T) {
	fake := &llm.Fake{Responses: []string{
		`{"events":[{"category":"not-a-category","summary":"x","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"confidence":0.5}]}`,
		`{"events":[{"category":"not-a-category","summary":"x","evidence":["Alice decided to ship v2 on 2025-03-01."],"mentions":[{"surface_form":"Alice","offset":0,"role":"actor"}],"confidence":0.5}]}`,
	}}
	ex := New(fake, "test-model")

	_, dropped, err := ex.Extract(context.Background(), "rev_1", revisionContent)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Reason, "category not in closed set")
}

func TestExtract_EmptyCandidatesShortCircuits(t *testing.T) {
	fake := &llm.Fake{Responses: []string{`{"events":[]}`}}
	ex := New(fake, "test-model")

	extracted, dropped, err := ex.Extract(context.Background(), "rev_1", revisionContent)
	require.NoError(t, err)
	assert.Empty(t, extracted)
	assert.Empty(t, dropped)
	assert.Len(t, fake.Calls, 1) // canonicalize is never called
}
