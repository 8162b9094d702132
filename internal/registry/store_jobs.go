package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, kind, document_id, payload_json, state, attempts, error_message, last_heartbeat, created_at, updated_at`

// Enqueue inserts a pending job for a document. The payload is an opaque
// JSON blob owned by the handler for the kind.
func (s *Store) Enqueue(ctx context.Context, kind string, documentID int64, payload string) (*Job, error) {
	if kind == "" {
		return nil, errors.New("job kind is required")
	}
	if payload == "" {
		payload = "{}"
	}
	now := timestamp()
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(
			ctx,
			`INSERT INTO jobs (kind, document_id, payload_json, state, attempts, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?)`,
			kind, documentID, payload, JobPending, now, now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id, nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNextJob picks the oldest pending job and flips it to running. The
// select-then-conditional-update loop tolerates other workers winning the
// same row; it retries on the next candidate until the table is drained.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := s.db.QueryRowContext(
			ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE state = ? ORDER BY id LIMIT 1`,
			JobPending,
		)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select pending job: %w", err)
		}
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET state = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND state = ?`,
			JobRunning, timestamp(), timestamp(), job.ID, JobPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job %d: %w", job.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}
		return s.GetJob(ctx, job.ID)
	}
}

// FinishJob records the outcome of a running job.
func (s *Store) FinishJob(ctx context.Context, id int64, state JobState, message string) error {
	if state != JobDone && state != JobFailed && state != JobPending {
		return fmt.Errorf("cannot finish job into state %s", state)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET state = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND state = ?`,
		state, nullableString(message), timestamp(), id, JobRunning,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %d is not running", ErrConflict, id)
	}
	return nil
}

// JobHeartbeat refreshes the liveness marker for a running job.
func (s *Store) JobHeartbeat(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND state = ?`,
		timestamp(), timestamp(), id, JobRunning,
	)
	if err != nil {
		return fmt.Errorf("job heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleJobs returns running jobs with a heartbeat older than cutoff to
// pending so another worker can pick them up. Returns the reclaimed ids.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs WHERE state = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		JobRunning, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}
	defer rows.Close()
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale jobs: %w", err)
	}

	var reclaimed []int64
	for _, id := range stale {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET state = ?, last_heartbeat = NULL, updated_at = ?
             WHERE id = ? AND state = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			JobPending, timestamp(), id, JobRunning, cutoff.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, fmt.Errorf("reclaim job %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, nil
}

// JobsForDocument lists every job recorded for a document, oldest first.
func (s *Store) JobsForDocument(ctx context.Context, documentID int64) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE document_id = ? ORDER BY id`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// JobStats counts jobs per state for health reporting.
func (s *Store) JobStats(ctx context.Context) (map[JobState]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[JobState]int)
	for rows.Next() {
		var state JobState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job          Job
		errMsg       sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	err := row.Scan(
		&job.ID, &job.Kind, &job.DocumentID, &job.Payload, &job.State,
		&job.Attempts, &errMsg, &heartbeatRaw, &createdRaw, &updatedRaw,
	)
	if err != nil {
		return nil, err
	}
	job.ErrorMessage = errMsg.String
	if heartbeatRaw.Valid {
		hb, err := parseTimeString(heartbeatRaw.String)
		if err != nil {
			return nil, err
		}
		job.LastHeartbeat = &hb
	}
	if job.CreatedAt, err = parseTimeString(createdRaw); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTimeString(updatedRaw); err != nil {
		return nil, err
	}
	return &job, nil
}
