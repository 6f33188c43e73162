package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/feedeater/feedeater/pkg/store"
)

// JobStore persists jobs and job_runs in Postgres.
type JobStore struct {
	store *store.Store
}

// NewJobStore creates the Postgres-backed run store.
func NewJobStore(st *store.Store) *JobStore {
	return &JobStore{store: st}
}

// SyncJobs upserts a row per definition and prunes rows whose job is no
// longer registered.
func (js *JobStore) SyncJobs(ctx context.Context, defs []Definition) error {
	return js.store.WithTx(ctx, func(tx pgx.Tx) error {
		keys := make([]string, 0, len(defs))
		for _, d := range defs {
			keys = append(keys, d.Module+":"+d.Name)
			_, err := tx.Exec(ctx,
				`INSERT INTO jobs (module, name, queue, schedule, trigger_class)
				 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
				 ON CONFLICT (module, name) DO UPDATE SET
				     queue         = EXCLUDED.queue,
				     schedule      = EXCLUDED.schedule,
				     trigger_class = EXCLUDED.trigger_class`,
				d.Module, d.Name, d.Queue, d.Schedule, d.TriggerClass)
			if err != nil {
				return fmt.Errorf("failed to upsert job %s/%s: %w", d.Module, d.Name, err)
			}
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM jobs WHERE module || ':' || name <> ALL($1)`, keys); err != nil {
			return fmt.Errorf("failed to prune removed jobs: %w", err)
		}
		return nil
	})
}

// MarkOrphans fails over runs left queued or running by a previous
// process. The fleet is a single process, so anything non-terminal at
// boot is dead.
func (js *JobStore) MarkOrphans(ctx context.Context) (int64, error) {
	tag, err := js.store.Exec(ctx,
		`UPDATE job_runs
		 SET status = $1, error = 'orphaned by restart', ended_at = now()
		 WHERE status IN ($2, $3)`,
		StatusError, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark orphaned runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateRun inserts a queued run and stamps the job row.
func (js *JobStore) CreateRun(ctx context.Context, run Run) error {
	return js.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO job_runs (id, module, job, queue, trigger, status, enqueued_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID, run.Module, run.Job, run.Queue, run.Trigger, StatusQueued, run.EnqueuedAt); err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET last_run_created_at = $1 WHERE module = $2 AND name = $3`,
			run.EnqueuedAt, run.Module, run.Job); err != nil {
			return fmt.Errorf("failed to stamp job row: %w", err)
		}
		return nil
	})
}

// MarkRunning transitions a run to running and mirrors the job row.
func (js *JobStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return js.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE job_runs SET status = $1, started_at = $2 WHERE id = $3`,
			StatusRunning, at, id); err != nil {
			return fmt.Errorf("failed to mark run running: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET last_status = $1, last_run_at = $2
			 WHERE (module, name) = (SELECT module, job FROM job_runs WHERE id = $3)`,
			StatusRunning, at, id); err != nil {
			return fmt.Errorf("failed to mirror running state: %w", err)
		}
		return nil
	})
}

// MarkFinished records the terminal state of a run and mirrors it onto
// the job row. last_error survives later successes so the most recent
// failure stays inspectable.
func (js *JobStore) MarkFinished(ctx context.Context, fin Finished) error {
	var metrics []byte
	if len(fin.Metrics) > 0 {
		var err error
		if metrics, err = json.Marshal(fin.Metrics); err != nil {
			return fmt.Errorf("failed to marshal run metrics: %w", err)
		}
	}

	return js.store.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE job_runs SET status = $1, ended_at = $2, error = NULLIF($3, ''), metrics = $4
			 WHERE id = $5`,
			fin.Status, fin.EndedAt, fin.Error, metrics, fin.RunID); err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}

		if fin.Status == StatusSuccess {
			_, err := tx.Exec(ctx,
				`UPDATE jobs SET last_status = $1, last_success_at = $2, last_metrics = $3
				 WHERE module = $4 AND name = $5`,
				fin.Status, fin.EndedAt, metrics, fin.Module, fin.Job)
			if err != nil {
				return fmt.Errorf("failed to mirror success: %w", err)
			}
			return nil
		}

		_, err := tx.Exec(ctx,
			`UPDATE jobs SET last_status = $1, last_error_at = $2, last_error = NULLIF($3, ''), last_metrics = $4
			 WHERE module = $5 AND name = $6`,
			fin.Status, fin.EndedAt, fin.Error, metrics, fin.Module, fin.Job)
		if err != nil {
			return fmt.Errorf("failed to mirror failure: %w", err)
		}
		return nil
	})
}

// JobStatuses returns the operational view of every registered job.
func (js *JobStore) JobStatuses(ctx context.Context) ([]JobStatus, error) {
	rows, err := js.store.Query(ctx,
		`SELECT module, name, queue, schedule, trigger_class, last_status,
		        last_run_at, last_success_at, last_error_at, last_error,
		        last_metrics, last_run_created_at
		 FROM jobs ORDER BY module, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job statuses: %w", err)
	}
	defer rows.Close()

	var statuses []JobStatus
	for rows.Next() {
		var (
			s        JobStatus
			schedule *string
			class    *string
			lastErr  *string
			metrics  []byte
		)
		if err := rows.Scan(&s.Module, &s.Name, &s.Queue, &schedule, &class, &s.LastStatus,
			&s.LastRunAt, &s.LastSuccessAt, &s.LastErrorAt, &lastErr,
			&metrics, &s.LastRunCreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job status: %w", err)
		}
		if schedule != nil {
			s.Schedule = *schedule
		}
		if class != nil {
			s.TriggerClass = *class
		}
		if lastErr != nil {
			s.LastError = *lastErr
		}
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &s.LastMetrics); err != nil {
				return nil, fmt.Errorf("failed to decode job metrics: %w", err)
			}
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
