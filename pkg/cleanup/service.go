// Package cleanup provides data retention sweeps over persisted fleet
// state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/feedeater/feedeater/pkg/config"
	"github.com/feedeater/feedeater/pkg/store"
)

// Service periodically enforces retention policies:
//   - Deletes bus history rows past their maximum age
//   - Deletes finished job runs past their maximum age, keeping the
//     most recent runs of every job regardless of age
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	store  *store.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, st *store.Store) *Service {
	return &Service{
		config: cfg,
		store:  st,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"message_age", s.config.MessageAge,
		"run_age", s.config.RunAge,
		"runs_kept_per_job", s.config.RunsKeptPerJob,
		"interval", s.config.SweepInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.sweepMessages(ctx)
	s.sweepRuns(ctx)
}

func (s *Service) sweepMessages(ctx context.Context) {
	count, err := s.DeleteOldMessages(ctx, time.Now().Add(-s.config.MessageAge))
	if err != nil {
		slog.Error("Retention: bus history sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old bus messages", "count", count)
	}
}

func (s *Service) sweepRuns(ctx context.Context) {
	count, err := s.DeleteOldRuns(ctx, time.Now().Add(-s.config.RunAge), s.config.RunsKeptPerJob)
	if err != nil {
		slog.Error("Retention: job run sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old job runs", "count", count)
	}
}

// DeleteOldMessages removes bus history rows received before cutoff.
func (s *Service) DeleteOldMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.store.Exec(ctx,
		`DELETE FROM bus_messages WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOldRuns removes finished job runs enqueued before cutoff,
// keeping the keep most recent runs of every job. Queued and running
// rows are never touched.
func (s *Service) DeleteOldRuns(ctx context.Context, cutoff time.Time, keep int) (int64, error) {
	tag, err := s.store.Exec(ctx,
		`DELETE FROM job_runs
		 WHERE id IN (
		     SELECT id FROM (
		         SELECT id, status, enqueued_at,
		                row_number() OVER (PARTITION BY module, job ORDER BY enqueued_at DESC) AS rn
		         FROM job_runs
		     ) ranked
		     WHERE ranked.rn > $2
		       AND ranked.enqueued_at < $1
		       AND ranked.status IN ('success', 'error')
		 )`, cutoff, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
