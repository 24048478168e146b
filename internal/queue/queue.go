// Package queue implements the worker-facing half of C7: job construction,
// the backoff(attempts) formula spec §4.7 pins, and a thin facade over
// store/relational's claim/ack/nack so C12's loop doesn't depend on the
// relational package directly.
package queue

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/config"
	"nur/internal/memory"
	"nur/internal/store/relational"
)

// Queue wraps a relational.Store with the job-lifecycle operations C12
// drives: claim, ack, nack, and janitor-style lease reclamation.
type Queue struct {
	store *relational.Store
	cfg   config.QueueConfig
}

// New builds a Queue over store using cfg for lease/backoff/attempt
// defaults.
func New(store *relational.Store, cfg config.QueueConfig) *Queue {
	return &Queue{store: store, cfg: cfg}
}

// Enqueue inserts a pending job for kind, carrying payload as its JSON body.
// Callers that need outbox atomicity (C6's revision write) use
// relational.EnqueueJobTx directly inside their own transaction instead.
func (q *Queue) Enqueue(ctx context.Context, jobID string, kind memory.JobKind, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return memory.NewValidationError("marshal job payload", err)
	}
	job := memory.Job{
		JobID:       jobID,
		Kind:        kind,
		Payload:     body,
		MaxAttempts: q.maxAttempts(),
		NotBefore:   time.Now(),
	}
	return q.store.WithTransaction(ctx, func(tx pgx.Tx) error {
		return relational.EnqueueJobTx(ctx, tx, job)
	})
}

// Claim leases the oldest claimable job of kind to workerID for the
// configured lease duration.
func (q *Queue) Claim(ctx context.Context, kind memory.JobKind, workerID string) (memory.Job, error) {
	return q.store.ClaimJob(ctx, kind, workerID, q.leaseDuration())
}

// Ack marks jobID succeeded.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	return q.store.AckJob(ctx, jobID)
}

// Nack records a failed attempt, moving the job to dead once max_attempts is
// exhausted, otherwise rescheduling it with full-jitter exponential backoff.
func (q *Queue) Nack(ctx context.Context, job memory.Job, cause error) error {
	return q.store.NackJob(ctx, job.JobID, job.Attempts, job.MaxAttempts, Backoff(job.Attempts, q.cfg), cause.Error())
}

// RenewLease extends jobID's lease by the configured lease duration; called
// by C12's heartbeat goroutine every 20s while a job is in flight.
func (q *Queue) RenewLease(ctx context.Context, jobID string) error {
	return q.store.RenewLease(ctx, jobID, q.leaseDuration())
}

// ReclaimExpiredLeases requeues in_flight jobs whose lease has lapsed; run
// by C12's poll loop on every tick before it claims.
func (q *Queue) ReclaimExpiredLeases(ctx context.Context) (int, error) {
	return q.store.ReclaimExpiredLeases(ctx)
}

func (q *Queue) leaseDuration() time.Duration {
	if q.cfg.LeaseSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(q.cfg.LeaseSeconds) * time.Second
}

func (q *Queue) maxAttempts() int {
	return q.MaxAttempts()
}

// MaxAttempts returns the configured max retry attempts for newly enqueued
// jobs, used by callers (e.g. the worker) that build a memory.Job directly
// instead of going through Enqueue.
func (q *Queue) MaxAttempts() int {
	if q.cfg.MaxAttempts <= 0 {
		return 5
	}
	return q.cfg.MaxAttempts
}

// Backoff computes min(cap, base*2^(attempts-1)) with full jitter, the exact
// formula spec §4.7 names for nack's not_before advance.
func Backoff(attempts int, cfg config.QueueConfig) time.Duration {
	base := cfg.RetryBackoffBase
	if base <= 0 {
		base = 1
	}
	capSeconds := cfg.RetryBackoffCap
	if capSeconds <= 0 {
		capSeconds = 60
	}
	if attempts < 1 {
		attempts = 1
	}
	d := base * float64(int64(1)<<uint(attempts-1))
	if d > capSeconds {
		d = capSeconds
	}
	jittered := rand.Float64() * d
	return time.Duration(jittered * float64(time.Second))
}
