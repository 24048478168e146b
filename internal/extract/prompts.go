package extract

import (
	"fmt"
	"strings"

	"nur/internal/memory"
)

// extractPrompt builds Prompt A: candidate events with verbatim evidence and
// entity mentions, from raw revision content.
func extractPrompt(content string) string {
	categories := make([]string, len(memory.EventCategories))
	for i, c := range memory.EventCategories {
		categories[i] = string(c)
	}
	return fmt.Sprintf(`You extract structured events from text. Categories (closed set): %s.

For each distinct event, give: category, a one-sentence summary, one or more
evidence quotes that are verbatim substrings of the text below, entity
mentions with surface_form/offset/role (role is "actor" or "subject"), an
optional ISO-8601 occurred_at, and a confidence in [0,1].

Respond with JSON only, matching: {"events":[{"category":"","summary":"","evidence":[""],"mentions":[{"surface_form":"","offset":0,"role":""}],"occurred_at":"","confidence":0}]}

Text:
%s`, strings.Join(categories, ", "), content)
}

// canonicalizePrompt builds Prompt B: normalize and de-duplicate Prompt A's
// candidates within the revision.
func canonicalizePrompt(candidatesJSON string) string {
	return fmt.Sprintf(`Normalize summaries and merge near-duplicate events from
the candidate list below (same category and overlapping evidence describe one
event). Keep every distinct event. Respond with JSON only, the same shape as
the input: {"events":[...]}.

Candidates:
%s`, candidatesJSON)
}
