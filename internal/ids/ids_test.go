package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactID_Deterministic(t *testing.T) {
	h1 := ContentHash("Hello world.\n")
	h2 := ContentHash("Hello world.\n")
	assert.Equal(t, h1, h2)
	assert.Equal(t, ArtifactID(h1), ArtifactID(h2))
	assert.True(t, strings.HasPrefix(ArtifactID(h1), "art_"))
	assert.Len(t, ArtifactID(h1), len("art_")+12)
}

func TestArtifactID_DifferentContentDiffers(t *testing.T) {
	assert.NotEqual(t, ArtifactID(ContentHash("a")), ArtifactID(ContentHash("b")))
}

func TestDeterministicUUID_Stable(t *testing.T) {
	assert.Equal(t, DeterministicUUID("chunk:art_abc:0"), DeterministicUUID("chunk:art_abc:0"))
}

func TestIDPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewEventID(), "evt_"))
	assert.True(t, strings.HasPrefix(NewEntityID(), "ent_"))
}
