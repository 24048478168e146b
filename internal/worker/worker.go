// Package worker implements C12: the single-process job loop that pulls
// extract_events jobs, orchestrates C8 (extraction) → C9 (entity
// resolution) → C10 (graph upsert), and commits atomically. Grounded on
// original_source's worker/__main__.py (the claim/dispatch/ack/nack loop
// and its 0/1/130 process exit-code convention) and the teacher's
// cmd/orchestrator/main.go signal.NotifyContext graceful-shutdown pattern.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"nur/internal/config"
	"nur/internal/extract"
	"nur/internal/ids"
	"nur/internal/memory"
	"nur/internal/queue"
	"nur/internal/resolve"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

// Worker runs the single-loop claim/dispatch/ack/nack cycle of spec §4.12.
type Worker struct {
	queue      *queue.Queue
	relational *relational.Store
	vector     vector.Store
	graph      graph.Store
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	workerID   string
	poll       time.Duration
}

// New builds a Worker.
func New(q *queue.Queue, rel *relational.Store, vec vector.Store, g graph.Store, ex *extract.Extractor, rs *resolve.Resolver, cfg config.QueueConfig) *Worker {
	poll := time.Duration(cfg.WorkerPollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + time.Now().Format("150405")
	}
	return &Worker{queue: q, relational: rel, vector: vec, graph: g, extractor: ex, resolver: rs, workerID: workerID, poll: poll}
}

// Run loops until ctx is cancelled. Each poll tick first requeues in_flight
// jobs whose lease has lapsed, then claims a job, dispatches it by kind, and
// acks on success or nacks with the error message on failure. Graceful shutdown
// (ctx cancellation) stops claiming new jobs and returns once any in-flight
// job finishes; it does not abandon work mid-flight.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.queue.ReclaimExpiredLeases(ctx); err != nil {
				log.Warn().Err(err).Msg("reclaim expired leases")
			}
			w.claimAndDispatch(ctx)
		}
	}
}

// jobKinds is the dispatch order claimAndDispatch tries each poll tick.
// extract_events is tried first so a revision becomes queryable as soon as
// possible; graph_upsert (which never blocks event visibility, see
// handleExtractEvents) is tried second.
var jobKinds = []memory.JobKind{memory.JobExtractEvents, memory.JobGraphUpsert}

func (w *Worker) claimAndDispatch(ctx context.Context) {
	var job memory.Job
	var err error
	claimed := false
	for _, kind := range jobKinds {
		job, err = w.queue.Claim(ctx, kind, w.workerID)
		if err == nil {
			claimed = true
			break
		}
		if k, ok := memory.KindOf(err); !ok || k != memory.KindNotFound {
			log.Error().Err(err).Msg("claim job")
			return
		}
	}
	if !claimed {
		return
	}

	// A claimed job runs to completion even if ctx is cancelled meanwhile.
	jobCtx := context.WithoutCancel(ctx)
	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	g, gctx := errgroup.WithContext(heartbeatCtx)
	g.Go(func() error {
		w.heartbeat(gctx, job.JobID)
		return nil
	})

	dispatchErr := w.dispatch(jobCtx, job)
	stopHeartbeat()
	_ = g.Wait()

	if dispatchErr != nil {
		log.Error().Err(dispatchErr).Str("job_id", job.JobID).Msg("job failed")
		if err := w.queue.Nack(jobCtx, job, dispatchErr); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("nack job")
		}
		return
	}
	if err := w.queue.Ack(jobCtx, job.JobID); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("ack job")
	}
}

// heartbeat renews job's lease every 20s until ctx is cancelled, so a
// long-running extraction doesn't get its lease reclaimed out from under it.
func (w *Worker) heartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.RenewLease(ctx, jobID); err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Msg("renew lease")
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job memory.Job) error {
	switch job.Kind {
	case memory.JobExtractEvents:
		return w.handleExtractEvents(ctx, job)
	case memory.JobGraphUpsert:
		return w.handleGraphUpsert(ctx, job)
	default:
		return memory.NewValidationError("unknown job kind: "+string(job.Kind), nil)
	}
}

type extractEventsPayload struct {
	RevisionID string `json:"revision_id"`
}

// handleExtractEvents orchestrates C8 → C9 for one revision: extract
// candidate events and resolve every actor/subject mention to an entity id.
// Entity graph nodes (and any POSSIBLY_SAME edge) are already materialized
// by resolve.Resolver as part of resolution. Each surviving event is
// persisted and, in the same transaction, enqueues its own graph_upsert job
// (§4.10/§5: "the graph upsert is a separate job from event extraction so
// event visibility is not gated on graph health") rather than upserting the
// event node and its edges inline.
func (w *Worker) handleExtractEvents(ctx context.Context, job memory.Job) error {
	var payload extractEventsPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return memory.NewValidationError("parse extract_events payload", err)
	}

	revision, err := w.relational.GetRevision(ctx, payload.RevisionID)
	if err != nil {
		return err
	}
	contentHits, err := w.vector.Get(ctx, vector.CollectionContent, []string{revision.ArtifactID})
	if err != nil {
		return memory.NewStorageError("fetch revision content", err)
	}
	if len(contentHits) == 0 {
		return memory.NewNotFoundError("revision content not found", nil)
	}
	content := contentHits[0].Document

	extracted, dropped, err := w.extractor.Extract(ctx, payload.RevisionID, content)
	if err != nil {
		return err // already memory.KindExtraction
	}
	for _, d := range dropped {
		log.Info().Str("summary", d.Summary).Str("reason", d.Reason).Msg("event dropped by validation gate")
	}

	for _, item := range extracted {
		event := item.Event
		var actors, subjects []string
		dropEvent := false

		for _, m := range item.Mentions {
			res, err := w.resolver.Resolve(ctx, resolve.Mention{
				SurfaceForm: m.SurfaceForm,
				Offset:      m.Offset,
				RevisionID:  payload.RevisionID,
				EntityType:  memory.EntityOther,
			})
			if err != nil {
				log.Warn().Err(err).Str("surface_form", m.SurfaceForm).Msg("mention unresolved, dropping enclosing event")
				dropEvent = true
				break
			}
			if m.Role == "actor" {
				actors = append(actors, res.EntityID)
			} else {
				subjects = append(subjects, res.EntityID)
			}
		}
		if dropEvent {
			continue
		}
		event.Actors = actors
		event.Subjects = subjects

		graphJobBody, err := json.Marshal(graphUpsertPayload{EventID: event.EventID})
		if err != nil {
			return memory.NewValidationError("marshal graph_upsert payload", err)
		}
		graphJob := memory.Job{
			JobID:       ids.NewJobID(),
			Kind:        memory.JobGraphUpsert,
			Payload:     graphJobBody,
			MaxAttempts: w.queue.MaxAttempts(),
			NotBefore:   time.Now(),
		}
		if err := w.relational.WithTransaction(ctx, func(tx pgx.Tx) error {
			if err := relational.InsertEventTx(ctx, tx, event); err != nil {
				return err
			}
			return relational.EnqueueJobTx(ctx, tx, graphJob)
		}); err != nil {
			return err
		}
	}
	return nil
}

type graphUpsertPayload struct {
	EventID string `json:"event_id"`
}

// handleGraphUpsert is C10's actual write path: materialize an
// already-persisted event's node and its ACTED_IN/ABOUT edges to its
// (already-resolved, already-graph-present) entities. handleExtractEvents
// enqueues one of these per surviving event instead of upserting the graph
// inline, so a transient graph-store failure only delays graph visibility
// and retries independently of event persistence.
func (w *Worker) handleGraphUpsert(ctx context.Context, job memory.Job) error {
	var payload graphUpsertPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return memory.NewValidationError("parse graph_upsert payload", err)
	}
	event, err := w.relational.GetEvent(ctx, payload.EventID)
	if err != nil {
		return err
	}
	entities, err := w.relational.ListEntitiesByIDs(ctx, append(append([]string{}, event.Actors...), event.Subjects...))
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := w.graph.UpsertNode(ctx, e.EntityID, []string{memory.LabelEntity}, map[string]any{"type": string(e.Type)}); err != nil {
			return memory.NewStorageError("upsert entity node", err)
		}
	}
	if err := w.graph.UpsertNode(ctx, event.EventID, []string{memory.LabelEvent}, map[string]any{"category": string(event.Category)}); err != nil {
		return memory.NewStorageError("upsert event node", err)
	}
	for _, id := range event.Actors {
		if err := w.graph.UpsertEdge(ctx, id, memory.EdgeActedIn, event.EventID, nil); err != nil {
			return memory.NewStorageError("upsert acted_in edge", err)
		}
	}
	for _, id := range event.Subjects {
		if err := w.graph.UpsertEdge(ctx, event.EventID, memory.EdgeAbout, id, nil); err != nil {
			return memory.NewStorageError("upsert about edge", err)
		}
	}
	return nil
}
