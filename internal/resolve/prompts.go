package resolve

import (
	"fmt"

	"nur/internal/memory"
)

// confirmPrompt asks the model to confirm or reject one candidate as the
// same real-world entity as the mention, per spec §4.9's LLM-confirmation
// step.
func confirmPrompt(m Mention, candidate memory.Entity) string {
	return fmt.Sprintf(`Decide whether the mention below refers to the same
real-world entity as the candidate. Respond with JSON only:
{"decision":"same|different|uncertain","score":0}

Mention: %q
Mention context: %v

Candidate canonical name: %q
Candidate known aliases: %v
Candidate context clues: %v`,
		m.SurfaceForm, m.ContextClues,
		candidate.CanonicalName, candidate.Aliases, candidate.ContextClues)
}
