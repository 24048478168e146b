package relational

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"nur/internal/memory"
)

// EnqueueJobTx inserts a new pending job row. Called inside the same
// transaction as the artifact/event write that produced it, giving the
// outbox pattern its atomicity: the job and the work it describes are
// either both durable or neither is.
func EnqueueJobTx(ctx context.Context, tx pgx.Tx, j memory.Job) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO job (job_id, kind, payload, state, attempts, max_attempts, not_before)
		VALUES ($1,$2,$3,$4,0,$5,$6)`,
		j.JobID, j.Kind, j.Payload, memory.JobPending, j.MaxAttempts, j.NotBefore)
	if err != nil {
		return memory.NewStorageError("enqueue job", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_event (job_id, from_state, to_state, note) VALUES ($1,'',$2,'enqueued')`,
		j.JobID, memory.JobPending)
	if err != nil {
		return memory.NewStorageError("insert job_event", err)
	}
	return nil
}

// ClaimJob atomically claims the oldest claimable job of the given kind
// (state pending and not_before due), leasing it to workerID for
// leaseDuration. It uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never claim the same row twice, the same exactly-once-claim
// primitive the teacher's job-dispatch code builds transactional safety on.
// Returns memory.NotFoundError if no job is claimable right now.
func (s *Store) ClaimJob(ctx context.Context, kind memory.JobKind, workerID string, leaseDuration time.Duration) (memory.Job, error) {
	var j memory.Job
	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT job_id, kind, payload, state, attempts, max_attempts, not_before, lease_until, worker_id, last_error
			FROM job
			WHERE kind = $1 AND state = $2 AND not_before <= now()
			ORDER BY not_before
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, kind, memory.JobPending)

		var leaseUntil, notBefore *time.Time
		var workerIDCol, lastError *string
		err := row.Scan(&j.JobID, &j.Kind, &j.Payload, &j.State, &j.Attempts, &j.MaxAttempts, &notBefore, &leaseUntil, &workerIDCol, &lastError)
		if errors.Is(err, pgx.ErrNoRows) {
			return memory.NewNotFoundError("no claimable job", err)
		}
		if err != nil {
			return memory.NewStorageError("claim job scan", err)
		}
		if notBefore != nil {
			j.NotBefore = *notBefore
		}

		until := time.Now().Add(leaseDuration)
		_, err = tx.Exec(ctx, `
			UPDATE job SET state = $1, attempts = attempts + 1, lease_until = $2, worker_id = $3
			WHERE job_id = $4`, memory.JobInFlight, until, workerID, j.JobID)
		if err != nil {
			return memory.NewStorageError("claim job update", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO job_event (job_id, from_state, to_state, note) VALUES ($1,$2,$3,$4)`,
			j.JobID, memory.JobPending, memory.JobInFlight, "claimed by "+workerID)
		if err != nil {
			return memory.NewStorageError("insert job_event", err)
		}

		j.State = memory.JobInFlight
		j.Attempts++
		j.LeaseUntil = until
		j.WorkerID = workerID
		return nil
	})
	if err != nil {
		return memory.Job{}, err
	}
	return j, nil
}

// AckJob marks jobID succeeded.
func (s *Store) AckJob(ctx context.Context, jobID string) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE job SET state = $1, lease_until = NULL WHERE job_id = $2`, memory.JobSucceeded, jobID)
		if err != nil {
			return memory.NewStorageError("ack job", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO job_event (job_id, from_state, to_state, note) VALUES ($1,$2,$3,'')`,
			jobID, memory.JobInFlight, memory.JobSucceeded)
		if err != nil {
			return memory.NewStorageError("insert job_event", err)
		}
		return nil
	})
}

// NackJob records a failed attempt. If the job has reached max_attempts it
// is moved to dead (dead-letter); otherwise it is returned to pending with
// not_before pushed out by backoff, to be retried later.
func (s *Store) NackJob(ctx context.Context, jobID string, attempts, maxAttempts int, backoff time.Duration, lastError string) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		next := memory.JobPending
		notBefore := time.Now().Add(backoff)
		if attempts >= maxAttempts {
			next = memory.JobDead
		}
		_, err := tx.Exec(ctx, `
			UPDATE job SET state = $1, not_before = $2, lease_until = NULL, last_error = $3
			WHERE job_id = $4`, next, notBefore, lastError, jobID)
		if err != nil {
			return memory.NewStorageError("nack job", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO job_event (job_id, from_state, to_state, note) VALUES ($1,$2,$3,$4)`,
			jobID, memory.JobInFlight, next, lastError)
		if err != nil {
			return memory.NewStorageError("insert job_event", err)
		}
		return nil
	})
}

// RenewLease pushes jobID's lease_until forward by leaseDuration, used by a
// worker's heartbeat to keep a long-running in-flight job from being
// reclaimed out from under it.
func (s *Store) RenewLease(ctx context.Context, jobID string, leaseDuration time.Duration) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE job SET lease_until = $1 WHERE job_id = $2 AND state = $3`,
		time.Now().Add(leaseDuration), jobID, memory.JobInFlight)
	if err != nil {
		return memory.NewStorageError("renew lease", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.NewNotFoundError("job not in flight", nil)
	}
	return nil
}

// ReclaimExpiredLeases returns in_flight jobs whose lease has expired to
// pending, so a crashed worker's claim doesn't strand the job forever. Run
// by the worker's poll loop on every tick before it claims. Returns the
// number of rows reclaimed.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE job SET state = $1, worker_id = NULL, lease_until = NULL
		WHERE state = $2 AND lease_until IS NOT NULL AND lease_until < now()`,
		memory.JobPending, memory.JobInFlight)
	if err != nil {
		return 0, memory.NewStorageError("reclaim expired leases", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetJob returns one job row by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (memory.Job, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT job_id, kind, payload, state, attempts, max_attempts, not_before, lease_until, worker_id, last_error
		FROM job WHERE job_id = $1`, jobID)

	var j memory.Job
	var leaseUntil, notBefore *time.Time
	var workerID, lastError *string
	err := row.Scan(&j.JobID, &j.Kind, &j.Payload, &j.State, &j.Attempts, &j.MaxAttempts, &notBefore, &leaseUntil, &workerID, &lastError)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Job{}, memory.NewNotFoundError("job not found", err)
	}
	if err != nil {
		return memory.Job{}, memory.NewStorageError("scan job", err)
	}
	if notBefore != nil {
		j.NotBefore = *notBefore
	}
	if leaseUntil != nil {
		j.LeaseUntil = *leaseUntil
	}
	if workerID != nil {
		j.WorkerID = *workerID
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	return j, nil
}
