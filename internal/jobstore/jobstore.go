// Package jobstore persists indexing jobs: a durable state machine
// record with progress counters, timing, and failure details, suitable
// for being driven by an external durable-execution engine (retries,
// heartbeats). Grounded on the donor's crawl-job repository, retargeted
// at the indexing_jobs table and this service's job semantics.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/docsearch/internal/apperr"
	"github.com/knoguchi/docsearch/internal/db"
)

// Status is a closed enumeration of job states. Stored as text at the
// boundary, never compared as a free-form string in application logic.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one of the terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// Scope selects which identity field on a job or access grant applies.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeTeam Scope = "team"
)

// Identity is the opaque (user or team, scope) pair the core receives
// from the caller. The core never manufactures these values.
type Identity struct {
	UserID string
	TeamID string
	Scope  Scope
}

// Counters holds the monotonic progress counters.
type Counters struct {
	PagesDiscovered int
	PagesProcessed  int
	PagesIndexed    int
	TotalChunks     int
}

// Job is a single indexing job record.
type Job struct {
	JobID      string
	IndexName  string
	SourceURL  string
	Status     Status
	Identity   Identity
	StartedAt  time.Time
	CompletedAt *time.Time
	Counters    Counters
	ErrorMessage string
	ErrorDetails map[string]any
	Metadata     map[string]any
}

// DurationSeconds returns the completed duration, or 0 if the job has
// not reached a terminal state.
func (j Job) DurationSeconds() float64 {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt).Seconds()
}

// Store persists indexing jobs in Postgres.
type Store struct {
	db *db.DB
}

// New constructs a Store.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// EnsureSchema creates the indexing_jobs table if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS indexing_jobs (
			job_id TEXT PRIMARY KEY,
			index_name TEXT NOT NULL,
			source_url TEXT NOT NULL,
			status TEXT NOT NULL,
			user_id TEXT,
			team_id TEXT,
			scope TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			pages_discovered INT NOT NULL DEFAULT 0,
			pages_processed INT NOT NULL DEFAULT 0,
			pages_indexed INT NOT NULL DEFAULT 0,
			total_chunks INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			error_details JSONB NOT NULL DEFAULT '{}'::jsonb,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		)
	`)
	return err
}

// Create inserts a new job row in the started state.
func (s *Store) Create(ctx context.Context, job Job) error {
	metaJSON, err := json.Marshal(orEmpty(job.Metadata))
	if err != nil {
		return fmt.Errorf("jobstore: marshal metadata: %w", err)
	}
	detailsJSON, err := json.Marshal(orEmpty(job.ErrorDetails))
	if err != nil {
		return fmt.Errorf("jobstore: marshal error details: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO indexing_jobs (job_id, index_name, source_url, status, user_id, team_id, scope,
			started_at, pages_discovered, pages_processed, pages_indexed, total_chunks,
			error_message, error_details, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, job.JobID, job.IndexName, job.SourceURL, StatusStarted,
		nullable(job.Identity.UserID), nullable(job.Identity.TeamID), job.Identity.Scope,
		job.StartedAt, job.Counters.PagesDiscovered, job.Counters.PagesProcessed,
		job.Counters.PagesIndexed, job.Counters.TotalChunks,
		job.ErrorMessage, detailsJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("jobstore: create: %w", err)
	}
	return nil
}

// UpdateStatus transitions a job's status and/or counters. Updates to
// an already-terminal job are no-ops (first writer wins); on a
// terminal transition, completed_at and duration are fixed at now().
// The terminal-state guard runs inside the UPDATE's WHERE clause so two
// concurrent terminal updates for the same job can't both pass a
// check-then-write race — only the first to commit applies.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status Status, counters Counters, errMsg string, errDetails map[string]any) error {
	detailsJSON, err := json.Marshal(orEmpty(errDetails))
	if err != nil {
		return fmt.Errorf("jobstore: marshal error details: %w", err)
	}

	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE indexing_jobs
		SET status = $2, pages_discovered = $3, pages_processed = $4, pages_indexed = $5,
		    total_chunks = $6, error_message = $7, error_details = $8, completed_at = COALESCE($9, completed_at)
		WHERE job_id = $1
		  AND status NOT IN ('completed', 'failed', 'timeout', 'cancelled')
	`, jobID, status, counters.PagesDiscovered, counters.PagesProcessed, counters.PagesIndexed,
		counters.TotalChunks, errMsg, detailsJSON, completedAt)
	if err != nil {
		return fmt.Errorf("jobstore: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the job is already terminal (stickiness no-op) or it
		// doesn't exist; distinguish so callers still see ErrNotFound.
		if _, err := s.Get(ctx, jobID); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (Job, error) {
	var j Job
	var userID, teamID *string
	var completedAt *time.Time
	var detailsJSON, metaJSON []byte

	err := s.db.Pool.QueryRow(ctx, `
		SELECT job_id, index_name, source_url, status, user_id, team_id, scope,
		       started_at, completed_at, pages_discovered, pages_processed, pages_indexed,
		       total_chunks, error_message, error_details, metadata
		FROM indexing_jobs WHERE job_id = $1
	`, jobID).Scan(&j.JobID, &j.IndexName, &j.SourceURL, &j.Status, &userID, &teamID, &j.Identity.Scope,
		&j.StartedAt, &completedAt, &j.Counters.PagesDiscovered, &j.Counters.PagesProcessed,
		&j.Counters.PagesIndexed, &j.Counters.TotalChunks, &j.ErrorMessage, &detailsJSON, &metaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, apperr.ErrNotFound
		}
		return Job{}, fmt.Errorf("jobstore: get: %w", err)
	}

	j.CompletedAt = completedAt
	if userID != nil {
		j.Identity.UserID = *userID
	}
	if teamID != nil {
		j.Identity.TeamID = *teamID
	}
	if err := json.Unmarshal(detailsJSON, &j.ErrorDetails); err != nil {
		return Job{}, fmt.Errorf("jobstore: unmarshal error details: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &j.Metadata); err != nil {
		return Job{}, fmt.Errorf("jobstore: unmarshal metadata: %w", err)
	}
	return j, nil
}

// ListByIdentity returns up to limit (capped at 50) jobs initiated by
// identity, most recent first.
func (s *Store) ListByIdentity(ctx context.Context, identity Identity, limit int) ([]Job, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	var field string
	var value string
	if identity.Scope == ScopeTeam {
		field, value = "team_id", identity.TeamID
	} else {
		field, value = "user_id", identity.UserID
	}

	rows, err := s.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT job_id, index_name, source_url, status, user_id, team_id, scope,
		       started_at, completed_at, pages_discovered, pages_processed, pages_indexed,
		       total_chunks, error_message, error_details, metadata
		FROM indexing_jobs WHERE %s = $1
		ORDER BY started_at DESC LIMIT $2
	`, field), value, limit)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var userID, teamID *string
		var completedAt *time.Time
		var detailsJSON, metaJSON []byte

		if err := rows.Scan(&j.JobID, &j.IndexName, &j.SourceURL, &j.Status, &userID, &teamID, &j.Identity.Scope,
			&j.StartedAt, &completedAt, &j.Counters.PagesDiscovered, &j.Counters.PagesProcessed,
			&j.Counters.PagesIndexed, &j.Counters.TotalChunks, &j.ErrorMessage, &detailsJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("jobstore: scan: %w", err)
		}
		j.CompletedAt = completedAt
		if userID != nil {
			j.Identity.UserID = *userID
		}
		if teamID != nil {
			j.Identity.TeamID = *teamID
		}
		json.Unmarshal(detailsJSON, &j.ErrorDetails)
		json.Unmarshal(metaJSON, &j.Metadata)
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
