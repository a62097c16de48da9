package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DistributedLimiter coordinates admission across processes using a
// Postgres advisory lock plus a singleton counter row. It composes with
// a local Limiter rather than replacing it: orchestrator flushes first
// acquire the advisory lock here, then the local Limiter, matching
// "distributed mode simply composes a second acquire step".
type DistributedLimiter struct {
	pool     *pgxpool.Pool
	lockKey  int64
	limits   Limits
	now      func() time.Time
}

// NewDistributed constructs a DistributedLimiter. lockKey identifies
// both the advisory lock and the counter row; processes configured
// with the same key share one set of windows.
func NewDistributed(pool *pgxpool.Pool, lockKey int64, limits Limits) *DistributedLimiter {
	return &DistributedLimiter{pool: pool, lockKey: lockKey, limits: limits, now: time.Now}
}

// EnsureSchema creates the singleton counter row table if it does not
// already exist.
func (d *DistributedLimiter) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS docs_embed_rate_window (
			lock_key BIGINT PRIMARY KEY,
			minute_start TIMESTAMPTZ NOT NULL,
			minute_requests INT NOT NULL DEFAULT 0,
			minute_tokens INT NOT NULL DEFAULT 0,
			day_start TIMESTAMPTZ NOT NULL,
			day_tokens INT NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Acquire takes the advisory lock, rolls the shared window state,
// admits or computes the next eligible time, and releases the lock
// before sleeping (never holding it across a wait).
func (d *DistributedLimiter) Acquire(ctx context.Context, requests, tokens int) error {
	for {
		admitted, wait, err := d.tryAdmit(ctx, requests, tokens)
		if err != nil {
			return err
		}
		if admitted {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// tryAdmit acquires the advisory lock for the duration of a single
// read-modify-write of the counter row, then releases it regardless of
// outcome.
func (d *DistributedLimiter) tryAdmit(ctx context.Context, requests, tokens int) (admitted bool, wait time.Duration, err error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, d.lockKey); err != nil {
		return false, 0, fmt.Errorf("ratelimit: advisory lock: %w", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, d.lockKey)

	now := d.now()
	minuteStart := now.Truncate(time.Minute)
	dayStart := now.Truncate(24 * time.Hour)

	var row struct {
		minuteStart     time.Time
		minuteRequests  int
		minuteTokens    int
		dayStart        time.Time
		dayTokens       int
	}
	scanErr := conn.QueryRow(ctx, `
		SELECT minute_start, minute_requests, minute_tokens, day_start, day_tokens
		FROM docs_embed_rate_window WHERE lock_key = $1
	`, d.lockKey).Scan(&row.minuteStart, &row.minuteRequests, &row.minuteTokens, &row.dayStart, &row.dayTokens)

	if scanErr != nil {
		// No row yet: seed it at the current window.
		row.minuteStart, row.dayStart = minuteStart, dayStart
		if _, err := conn.Exec(ctx, `
			INSERT INTO docs_embed_rate_window (lock_key, minute_start, minute_requests, minute_tokens, day_start, day_tokens)
			VALUES ($1, $2, 0, 0, $3, 0)
			ON CONFLICT (lock_key) DO NOTHING
		`, d.lockKey, minuteStart, dayStart); err != nil {
			return false, 0, fmt.Errorf("ratelimit: seed counter row: %w", err)
		}
	}

	if minuteStart.After(row.minuteStart) {
		row.minuteStart, row.minuteRequests, row.minuteTokens = minuteStart, 0, 0
	}
	if dayStart.After(row.dayStart) {
		row.dayStart, row.dayTokens = dayStart, 0
	}

	fits := true
	if d.limits.RequestsPerMinute > 0 && row.minuteRequests+requests > d.limits.RequestsPerMinute {
		fits = false
	}
	if d.limits.TokensPerMinute > 0 && row.minuteTokens+tokens > d.limits.TokensPerMinute {
		fits = false
	}
	dayFull := d.limits.TokensPerDay > 0 && row.dayTokens+tokens > d.limits.TokensPerDay
	if dayFull {
		fits = false
	}

	if !fits {
		w := row.minuteStart.Add(time.Minute).Sub(now)
		if dayFull {
			if dw := row.dayStart.Add(24 * time.Hour).Sub(now); dw > w {
				w = dw
			}
		}
		if w <= 0 {
			w = time.Millisecond
		}
		return false, w, nil
	}

	row.minuteRequests += requests
	row.minuteTokens += tokens
	row.dayTokens += tokens

	if _, err := conn.Exec(ctx, `
		UPDATE docs_embed_rate_window
		SET minute_start = $2, minute_requests = $3, minute_tokens = $4, day_start = $5, day_tokens = $6
		WHERE lock_key = $1
	`, d.lockKey, row.minuteStart, row.minuteRequests, row.minuteTokens, row.dayStart, row.dayTokens); err != nil {
		return false, 0, fmt.Errorf("ratelimit: update counter row: %w", err)
	}

	return true, 0, nil
}
