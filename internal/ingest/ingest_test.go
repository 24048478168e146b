package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_NormalizesLineEndingsAndTrailingWhitespace(t *testing.T) {
	in := "Hello world.  \r\nSecond line.\t\r\n"
	got := canonicalize(in)
	assert.Equal(t, "Hello world.\nSecond line.\n", got)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	in := "Hello world.\n"
	once := canonicalize(in)
	twice := canonicalize(once)
	assert.Equal(t, once, twice)
}

func TestCanonicalize_DifferentLineEndingsSameResult(t *testing.T) {
	unix := canonicalize("Hello world.\n")
	windows := canonicalize("Hello world.\r\n")
	mac := canonicalize("Hello world.\r")
	assert.Equal(t, unix, windows)
	assert.Equal(t, unix, mac)
}
