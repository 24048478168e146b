// Package service composes C1-C12 behind the handler-facing operations
// named in spec.md §6: remember, recall, forget, status, event_search,
// event_get, event_list_for_revision, job_status. Grounded on the teacher's
// internal/rag/service/service.go — the Service-struct-plus-functional-
// Option constructor shape, the Clock/Logger seams — generalized
// from RAG ingest/retrieve to this spec's remember/recall/forget contract.
package service

import (
	"context"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/extract"
	"nur/internal/ingest"
	"nur/internal/llm"
	"nur/internal/memory"
	"nur/internal/queue"
	"nur/internal/resolve"
	"nur/internal/retrieve"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

// Service is the single facade cmd/nur-server's transport layer calls into.
type Service struct {
	relational *relational.Store
	vector     vector.Store
	graph      graph.Store
	ingestor   *ingest.Ingestor
	retriever  *retrieve.Service
	queue      *queue.Queue

	log     Logger
	clock   Clock
	privacy PrivacyFilter
}

// retrieveItem is PrivacyFilter's element type, aliased so options.go
// doesn't need to import the retrieve package directly.
type retrieveItem = retrieve.Item

// Option configures a Service during construction.
type Option func(*Service)

// WithLogger overrides the default Logger.
func WithLogger(l Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the default Clock, used by tests to pin timestamps.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// New builds a Service from already-open store handles and the resolved
// configuration. New does not use the provider argument: the extraction and
// resolution pipelines that call the LLM are built separately by
// NewExtractor and NewResolver.
func New(rel *relational.Store, vec vector.Store, g graph.Store, provider llm.Provider, embedder embedding.Embedder, cfg config.Config, opts ...Option) *Service {
	ingestor := ingest.New(rel, vec, embedder, cfg.Chunking)
	retriever := retrieve.New(embedder, vec, g, rel, cfg.Retrieval, cfg.GraphTraversal)
	q := queue.New(rel, cfg.Queue)

	s := &Service{
		relational: rel,
		vector:     vec,
		graph:      g,
		ingestor:   ingestor,
		retriever:  retriever,
		queue:      q,
		log:        defaultLogger{},
		clock:      SystemClock{},
		privacy:    identityPrivacyFilter{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewExtractor builds the C8 extractor bound to cfg's event model. Exposed
// so cmd/nur-worker can build the same extractor/resolver pair the service
// would, without duplicating the LLM-provider wiring.
func NewExtractor(provider llm.Provider, cfg config.Config) *extract.Extractor {
	return extract.New(provider, cfg.LLM.EventModel)
}

// NewResolver builds the C9 resolver bound to cfg's entity model.
func NewResolver(embedder embedding.Embedder, vec vector.Store, rel *relational.Store, g graph.Store, provider llm.Provider, cfg config.Config) *resolve.Resolver {
	return resolve.New(embedder, vec, rel, g, provider, cfg.LLM.EntityModel, cfg.Resolution)
}

// RememberRequest is remember()'s request shape.
type RememberRequest = ingest.Request

// RememberResult is remember()'s response shape, including the enqueued
// job id so a caller can poll job_status.
type RememberResult struct {
	ArtifactID string
	Deduped    bool
	JobID      string
}

// Remember runs C6. A deduped re-ingest never enqueues a job (there is
// nothing new to extract), so JobID is empty in that case.
func (s *Service) Remember(ctx context.Context, req RememberRequest) (RememberResult, error) {
	resp, err := s.ingestor.Remember(ctx, req)
	if err != nil {
		return RememberResult{}, err
	}
	if resp.Deduped {
		return RememberResult{ArtifactID: resp.ArtifactID, Deduped: true}, nil
	}
	return RememberResult{ArtifactID: resp.ArtifactID, JobID: resp.JobID}, nil
}

// RecallRequest is recall()'s request shape.
type RecallRequest = retrieve.Request

// Recall runs C11, then passes results through the (identity, by default)
// privacy filter per spec.md §1/§4.11 step 7.
func (s *Service) Recall(ctx context.Context, req RecallRequest) (retrieve.Response, error) {
	resp, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		return retrieve.Response{}, err
	}
	resp.Items = s.privacy.Apply(resp.Items)
	return resp, nil
}

// GetArtifact looks up a single artifact by id, bypassing the RRF pipeline.
// This backs recall's id? parameter (spec.md §6): a direct lookup rather
// than a similarity search.
func (s *Service) GetArtifact(ctx context.Context, artifactID string) (memory.Artifact, error) {
	return s.relational.FindArtifactByID(ctx, artifactID)
}

// ForgetResult is forget()'s response shape.
type ForgetResult struct {
	Deleted       bool
	CascadeCounts relational.ForgetCounts
}

// Forget deletes an artifact and every row that cascades from it (chunks,
// events of its revisions, mentions) plus its vector records in the content
// and chunks collections. Entities are never deleted here (spec.md Open
// Question (d)). confirm must be true; forgetting a missing id returns
// {deleted:false} with no error, matching spec §5's idempotent-forget rule.
func (s *Service) Forget(ctx context.Context, artifactID string, confirm bool) (ForgetResult, error) {
	if !confirm {
		return ForgetResult{}, memory.NewValidationError("forget requires confirm=true", nil)
	}
	counts, err := s.relational.ForgetArtifact(ctx, artifactID)
	if k, ok := memory.KindOf(err); ok && k == memory.KindNotFound {
		return ForgetResult{Deleted: false}, nil
	}
	if err != nil {
		return ForgetResult{}, err
	}
	artifactFilter := vector.Filter{"artifact_id": []string{artifactID}}
	if err := s.vector.Delete(ctx, vector.CollectionContent, artifactFilter); err != nil {
		return ForgetResult{}, err
	}
	if err := s.vector.Delete(ctx, vector.CollectionChunks, artifactFilter); err != nil {
		return ForgetResult{}, err
	}
	return ForgetResult{Deleted: true, CascadeCounts: counts}, nil
}

// StatusResult is status()'s response shape.
type StatusResult struct {
	Services map[string]string
	Counts   map[string]int
	Jobs     map[string]int
}

// Status reports per-store reachability and job-state counts. A store ping
// failure is recorded rather than returned, since status must answer even
// when a dependency is unhealthy.
func (s *Service) Status(ctx context.Context) StatusResult {
	services := map[string]string{}
	if err := s.relational.Ping(ctx); err != nil {
		services["relational"] = "down: " + err.Error()
	} else {
		services["relational"] = "up"
	}
	jobCounts, err := s.relational.CountJobsByState(ctx)
	if err != nil {
		s.log.Error("count jobs by state", map[string]any{"error": err.Error()})
		jobCounts = map[string]int{}
	}
	return StatusResult{Services: services, Counts: map[string]int{}, Jobs: jobCounts}
}

// EventSearch runs event_search.
func (s *Service) EventSearch(ctx context.Context, query string, limit int) ([]memory.Event, error) {
	return s.relational.SearchEvents(ctx, query, limit)
}

// EventGet runs event_get.
func (s *Service) EventGet(ctx context.Context, eventID string) (memory.Event, error) {
	return s.relational.GetEvent(ctx, eventID)
}

// EventListForRevision runs event_list_for_revision.
func (s *Service) EventListForRevision(ctx context.Context, revisionID string) ([]memory.Event, error) {
	return s.relational.ListEventsForRevision(ctx, revisionID)
}

// JobStatusResult is job_status()'s response shape.
type JobStatusResult struct {
	State     memory.JobState
	Attempts  int
	LastError string
}

// JobStatus runs job_status.
func (s *Service) JobStatus(ctx context.Context, jobID string) (JobStatusResult, error) {
	j, err := s.relational.GetJob(ctx, jobID)
	if err != nil {
		return JobStatusResult{}, err
	}
	return JobStatusResult{State: j.State, Attempts: j.Attempts, LastError: j.LastError}, nil
}

