// Package memory defines the core data model shared by every subsystem:
// artifacts and their revisions, chunks, extracted events and entities, the
// evidence trail linking mentions to entities, and the job rows that drive
// asynchronous extraction.
package memory

import "time"

// ArtifactType is the closed set of artifact kinds.
type ArtifactType string

const (
	ArtifactDocument       ArtifactType = "document"
	ArtifactMessage        ArtifactType = "message"
	ArtifactNote           ArtifactType = "note"
	ArtifactDecisionRecord ArtifactType = "decision-record"
)

// Sensitivity is the closed set of artifact sensitivity levels.
type Sensitivity string

const (
	SensitivityNormal          Sensitivity = "normal"
	SensitivitySensitive       Sensitivity = "sensitive"
	SensitivityHighlySensitive Sensitivity = "highly_sensitive"
)

// VisibilityScope is the closed set of artifact visibility scopes.
type VisibilityScope string

const (
	VisibilityMe   VisibilityScope = "me"
	VisibilityTeam VisibilityScope = "team"
	VisibilityOrg  VisibilityScope = "org"
)

// Artifact is immutable once written; artifact_id is a pure function of
// canonicalized content, so re-ingesting identical content never duplicates.
type Artifact struct {
	ArtifactID          string
	Type                ArtifactType
	SourceSystem        string
	SourceID            string
	SourceURL           string
	Timestamp           time.Time
	Title               string
	Author              string
	Participants        []string
	ContentHash         string
	TokenCount          int
	IsChunked           bool
	NumChunks           int
	Sensitivity         Sensitivity
	VisibilityScope     VisibilityScope
	RetentionPolicy     string
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	IngestedAt          time.Time
}

// Revision is one ingestion of an artifact's content; only revisions are
// subject to extraction.
type Revision struct {
	RevisionID string
	ArtifactID string
	CreatedAt  time.Time
}

// Chunk is a bounded, half-open slice of a revision used for vector
// indexing. chunk_index is dense and 0-based within one artifact.
type Chunk struct {
	ChunkID     string
	ArtifactID  string
	ChunkIndex  int
	Content     string
	StartChar   int
	EndChar     int
	TokenCount  int
	ContentHash string
}

// EventCategory is the closed set of event categories.
type EventCategory string

const (
	EventDecision    EventCategory = "decision"
	EventCommitment  EventCategory = "commitment"
	EventQuestion    EventCategory = "question"
	EventAnswer      EventCategory = "answer"
	EventObservation EventCategory = "observation"
	EventPlan        EventCategory = "plan"
	EventRisk        EventCategory = "risk"
	EventReference   EventCategory = "reference"
)

// EventCategories is the closed set, usable for validation and prompting.
var EventCategories = []EventCategory{
	EventDecision, EventCommitment, EventQuestion, EventAnswer,
	EventObservation, EventPlan, EventRisk, EventReference,
}

// IsValidEventCategory reports whether c is in the closed set.
func IsValidEventCategory(c EventCategory) bool {
	for _, v := range EventCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Evidence is a verbatim quote drawn from a revision's content, with the
// half-open char offsets at which it occurs.
type Evidence struct {
	Quote       string
	OffsetStart int
	OffsetEnd   int
}

// Event is a validated fact extracted from a revision.
type Event struct {
	EventID     string
	RevisionID  string
	Category    EventCategory
	Summary     string
	Evidence    []Evidence
	Actors      []string // entity_id
	Subjects    []string // entity_id
	OccurredAt  *time.Time
	ExtractedAt time.Time
	Model       string
	Confidence  float64
}

// EntityType is the closed set of entity kinds.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityProject      EntityType = "project"
	EntityProduct      EntityType = "product"
	EntityLocation     EntityType = "location"
	EntityConcept      EntityType = "concept"
	EntityOther        EntityType = "other"
)

// Entity is a canonical identity produced by entity resolution.
// canonical_name is always a member of aliases. Embedding is append-only:
// it is set on create and never changed by a later merge.
type Entity struct {
	EntityID      string
	Type          EntityType
	CanonicalName string
	Aliases       []string
	ContextClues  map[string]string
	Embedding     []float32
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

// HasAlias reports whether name is already a known alias.
func (e *Entity) HasAlias(name string) bool {
	for _, a := range e.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// ResolverDecision is the closed set of entity-resolution outcomes.
type ResolverDecision string

const (
	DecisionCreated  ResolverDecision = "created"
	DecisionMerged   ResolverDecision = "merged"
	DecisionUncertain ResolverDecision = "uncertain"
)

// EntityMention is the immutable evidence trail left by entity resolution.
type EntityMention struct {
	MentionID  string
	EntityID   string
	RevisionID string
	SurfaceForm string
	Offset     int
	Decision   ResolverDecision
	Score      float64
	Model      string
}

// Graph edge type names, used verbatim as relationship labels.
const (
	EdgeActedIn     = "ACTED_IN"
	EdgeAbout       = "ABOUT"
	EdgePossiblySame = "POSSIBLY_SAME"
)

// Graph node labels.
const (
	LabelEntity = "Entity"
	LabelEvent  = "Event"
)

// JobKind is the closed set of queue job kinds.
type JobKind string

const (
	JobExtractEvents JobKind = "extract_events"
	JobGraphUpsert   JobKind = "graph_upsert"
)

// JobState is the closed set of job lifecycle states.
type JobState string

const (
	JobPending   JobState = "pending"
	JobInFlight  JobState = "in_flight"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobDead      JobState = "dead"
)

// Job is one row in the extraction/graph-upsert queue.
type Job struct {
	JobID       string
	Kind        JobKind
	Payload     []byte // JSON
	State       JobState
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
	LeaseUntil  time.Time
	WorkerID    string
	LastError   string
}

// JobEvent is one append-only audit row recording a state transition.
type JobEvent struct {
	JobID     string
	Timestamp time.Time
	FromState JobState
	ToState   JobState
	Note      string
}
