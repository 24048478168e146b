// Package relational implements C2: a pooled Postgres connection, schema
// bootstrap for every table named in spec.md §6, and a with_transaction
// helper used by the ingestor's outbox pattern (§4.6/§9). Grounded on the
// teacher's internal/persistence/databases/pool.go (pgxpool construction)
// and internal/auth/store.go's explicit Begin/defer-Rollback/Commit
// transaction pattern.
package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nur/internal/config"
	"nur/internal/memory"
)

// Store wraps a pgxpool.Pool and provides the schema + transaction helper
// every other package in the relational tier builds on.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to cfg.DSN, bootstraps the schema, and returns a ready
// Store. Schema creation is idempotent (CREATE TABLE IF NOT EXISTS), the
// same approach the teacher's chat_store_postgres.go Init uses.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, memory.NewConfigurationError("parse database dsn", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	} else {
		pcfg.MaxConns = 8
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		pcfg.MaxConnLifetime = time.Hour
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, memory.NewStorageError("open database pool", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, memory.NewStorageError("ping database", err)
	}

	s := &Store{Pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.Pool.Close() }

// Ping reports whether the pool can still reach Postgres, used by status().
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Pool.Ping(ctx); err != nil {
		return memory.NewStorageError("ping database", err)
	}
	return nil
}

// CountJobsByState returns the number of job rows in each state, used by
// status() to report queue health (pending backlog, in-flight count, dead
// count) without the caller needing to know the job table's schema.
func (s *Store) CountJobsByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT state, count(*) FROM job GROUP BY state`)
	if err != nil {
		return nil, memory.NewStorageError("count jobs by state", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, memory.NewStorageError("scan job state count", err)
		}
		counts[state] = n
	}
	return counts, nil
}

// WithTransaction runs fn inside a single transaction, committing on
// success and rolling back on error or panic, matching the teacher's
// internal/auth/store.go SetUserRoles pattern. It is the single primitive
// the outbox pattern is built on: ingest writes the revision row and the
// extract_events job row through the same call.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return memory.NewStorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return memory.NewStorageError("commit transaction", err)
	}
	return nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS artifact (
			artifact_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source_system TEXT,
			source_id TEXT,
			source_url TEXT,
			ts TIMESTAMPTZ,
			title TEXT,
			author TEXT,
			participants TEXT[] NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL,
			token_count INT NOT NULL DEFAULT 0,
			is_chunked BOOLEAN NOT NULL DEFAULT FALSE,
			num_chunks INT NOT NULL DEFAULT 0,
			sensitivity TEXT NOT NULL DEFAULT 'normal',
			visibility_scope TEXT NOT NULL DEFAULT 'team',
			retention_policy TEXT,
			embedding_provider TEXT,
			embedding_model TEXT,
			embedding_dimensions INT,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS revision (
			revision_id TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL REFERENCES artifact(artifact_id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS revision_artifact ON revision(artifact_id)`,
		`CREATE TABLE IF NOT EXISTS chunk_meta (
			chunk_id TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL REFERENCES artifact(artifact_id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			start_char INT NOT NULL,
			end_char INT NOT NULL,
			token_count INT NOT NULL,
			content_hash TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chunk_meta_artifact ON chunk_meta(artifact_id, chunk_index)`,
		`CREATE TABLE IF NOT EXISTS event (
			event_id TEXT PRIMARY KEY,
			revision_id TEXT NOT NULL REFERENCES revision(revision_id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			summary TEXT NOT NULL,
			occurred_at TIMESTAMPTZ,
			extracted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			model TEXT,
			confidence DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS event_revision ON event(revision_id)`,
		`CREATE TABLE IF NOT EXISTS event_evidence (
			event_id TEXT NOT NULL REFERENCES event(event_id) ON DELETE CASCADE,
			idx INT NOT NULL,
			quote TEXT NOT NULL,
			offset_start INT NOT NULL,
			offset_end INT NOT NULL,
			PRIMARY KEY (event_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS event_entity (
			event_id TEXT NOT NULL REFERENCES event(event_id) ON DELETE CASCADE,
			entity_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (event_id, entity_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS entity (
			entity_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			aliases TEXT[] NOT NULL DEFAULT '{}',
			context_clues JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS entity_mention (
			mention_id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL REFERENCES entity(entity_id),
			revision_id TEXT NOT NULL REFERENCES revision(revision_id) ON DELETE CASCADE,
			surface_form TEXT NOT NULL,
			offset_start INT NOT NULL,
			decision TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			model TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS entity_mention_revision ON entity_mention(revision_id)`,
		`CREATE TABLE IF NOT EXISTS job (
			job_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			state TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL,
			not_before TIMESTAMPTZ NOT NULL DEFAULT now(),
			lease_until TIMESTAMPTZ,
			worker_id TEXT,
			last_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS job_claimable ON job(state, not_before)`,
		`CREATE TABLE IF NOT EXISTS job_event (
			job_id TEXT NOT NULL REFERENCES job(job_id) ON DELETE CASCADE,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			note TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return memory.NewStorageError(fmt.Sprintf("bootstrap schema: %s", stmt), err)
		}
	}
	return nil
}
