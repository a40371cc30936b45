// Package runs turns resolution runs into persisted jobs.
//
// A run is enqueued, claimed under a per-supplier-scope lease, executed and
// finished with its report. The worker mode polls the queue; runs whose
// lease outlives RUN_LEASE_TTL are marked abandoned so the scope frees up.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
	"github.com/lueurxax/catalog-resolver/internal/platform/schedule"
	"github.com/lueurxax/catalog-resolver/internal/platform/worker"
	"github.com/lueurxax/catalog-resolver/internal/process/resolver"
)

const (
	defaultLeaseTTL     = 2 * time.Hour
	defaultPollInterval = 10 * time.Second
	staleCheckDivisor   = 4

	workerName = "resolution-runs"

	logKeyRunID  = "run_id"
	logKeyStatus = "status"
)

// Executor performs one resolution pass.
type Executor interface {
	Run(ctx context.Context, opts resolver.RunOptions) (domain.RunReport, error)
}

// Config tunes the run queue.
type Config struct {
	LeaseTTL     time.Duration
	PollInterval time.Duration

	// Schedule enqueues an all-supplier run at each daily slot while the
	// worker is up. Slots missed while it was down are not replayed.
	Schedule       schedule.Daily
	ScheduledLimit int
}

// Service manages run jobs.
type Service struct {
	repo      ports.RunRepository
	exec      Executor
	notifier  ports.Notifier
	publisher ports.EventPublisher
	cfg       Config
	logger    *zerolog.Logger

	now       func() time.Time
	lastCheck time.Time
}

// New creates a run Service. notifier and publisher may be nil.
func New(repo ports.RunRepository, exec Executor, notifier ports.Notifier, publisher ports.EventPublisher, cfg Config, logger *zerolog.Logger) *Service {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Service{
		repo:      repo,
		exec:      exec,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue records a queued run. A nil supplier scopes the run to every supplier.
func (s *Service) Enqueue(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	if limit < 0 {
		return domain.RunRecord{}, fmt.Errorf("%w: negative limit", coreerrors.ErrInvalidInput)
	}

	rec, err := s.repo.CreateRun(ctx, supplierID, limit)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("enqueue run: %w", err)
	}

	s.logger.Info().Str(logKeyRunID, rec.ID).Int("limit", limit).Msg("run enqueued")

	return rec, nil
}

// Get returns a run record.
func (s *Service) Get(ctx context.Context, id string) (domain.RunRecord, error) {
	rec, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}

	return rec, nil
}

// Latest returns the newest run of a supplier scope.
func (s *Service) Latest(ctx context.Context, supplierID *int64) (domain.RunRecord, error) {
	rec, err := s.repo.LatestRun(ctx, supplierID)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}

	return rec, nil
}

// RunNow enqueues a run and executes it synchronously.
func (s *Service) RunNow(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	rec, err := s.Enqueue(ctx, supplierID, limit)
	if err != nil {
		return domain.RunRecord{}, err
	}

	return s.Execute(ctx, rec.ID)
}

// Execute claims a queued run, performs it and stores its outcome. It
// returns ErrRunInProgress when another run holds the scope's lease.
func (s *Service) Execute(ctx context.Context, id string) (domain.RunRecord, error) {
	if _, err := s.repo.AbandonStaleRuns(ctx, s.cfg.LeaseTTL); err != nil {
		s.logger.Warn().Err(err).Msg("failed to abandon stale runs")
	}

	rec, err := s.repo.ClaimRun(ctx, id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("claim run %s: %w", id, err)
	}

	return s.execute(ctx, rec)
}

// ProcessNext executes the oldest queued run, if any, and reports whether
// one ran. An empty queue and a busy scope are not errors.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	rec, err := s.repo.ClaimNextRun(ctx)

	switch {
	case errors.Is(err, coreerrors.ErrRunNotFound):
		return false, nil
	case errors.Is(err, coreerrors.ErrRunInProgress):
		s.logger.Debug().Msg("next run waits for a running one in its scope")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim next run: %w", err)
	}

	_, err = s.execute(ctx, rec)

	return true, err
}

// Work polls the queue until ctx is canceled.
func (s *Service) Work(ctx context.Context) error {
	tasks := []worker.PeriodicTask{
		{
			Name:     "abandon-stale-runs",
			Interval: s.cfg.LeaseTTL / staleCheckDivisor,
			Run:      s.abandonStale,
		},
	}

	if !s.cfg.Schedule.IsEmpty() {
		s.lastCheck = s.now()
		tasks = append(tasks, worker.PeriodicTask{
			Name:     "scheduled-runs",
			Interval: s.cfg.PollInterval,
			Run:      s.enqueueScheduled,
		})

		s.logger.Info().Strs("slots", s.cfg.Schedule.Slots()).Msg("scheduled runs enabled")
	}

	return worker.Loop(ctx, worker.Config{
		Name:          workerName,
		PollInterval:  s.cfg.PollInterval,
		Process:       s.ProcessNext,
		PeriodicTasks: tasks,
		Logger:        s.logger,
	})
}

// enqueueScheduled queues one run when at least one slot passed since the
// previous check.
func (s *Service) enqueueScheduled(ctx context.Context) {
	now := s.now()
	slots := s.cfg.Schedule.Between(s.lastCheck, now)
	s.lastCheck = now

	if len(slots) == 0 {
		return
	}

	if _, err := s.Enqueue(ctx, nil, s.cfg.ScheduledLimit); err != nil {
		s.logger.Error().Err(err).Time("slot", slots[len(slots)-1]).Msg("failed to enqueue scheduled run")
	}
}

func (s *Service) abandonStale(ctx context.Context) {
	n, err := s.repo.AbandonStaleRuns(ctx, s.cfg.LeaseTTL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to abandon stale runs")
		return
	}

	if n > 0 {
		s.logger.Warn().Int64("runs", n).Msg("abandoned runs with expired lease")
	}
}

func (s *Service) execute(ctx context.Context, rec domain.RunRecord) (domain.RunRecord, error) {
	logger := s.logger.With().Str(logKeyRunID, rec.ID).Logger()
	logger.Info().Msg("run started")

	report, runErr := s.exec.Run(ctx, resolver.RunOptions{
		RunID:      rec.ID,
		SupplierID: rec.SupplierID,
		Limit:      rec.Limit,
	})

	status := domain.RunCompleted
	errText := ""

	if runErr != nil {
		status = domain.RunFailed
		errText = runErr.Error()
	}

	// The run's own context may be canceled; the outcome is still recorded.
	finishCtx := context.WithoutCancel(ctx)

	if err := s.repo.FinishRun(finishCtx, rec.ID, status, &report, errText); err != nil {
		return domain.RunRecord{}, fmt.Errorf("finish run %s: %w", rec.ID, err)
	}

	finished, err := s.repo.GetRun(finishCtx, rec.ID)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("reload run %s: %w", rec.ID, err)
	}

	logger.Info().Str(logKeyStatus, string(status)).Msg("run finished")

	s.announce(finishCtx, finished, &logger)

	if runErr != nil {
		return finished, fmt.Errorf("run %s: %w", rec.ID, runErr)
	}

	return finished, nil
}

// announce is best-effort: delivery failures never change the run outcome.
func (s *Service) announce(ctx context.Context, rec domain.RunRecord, logger *zerolog.Logger) {
	if s.publisher != nil && rec.Report != nil {
		if err := s.publisher.PublishRunFinished(ctx, *rec.Report); err != nil {
			logger.Warn().Err(err).Msg("failed to publish run report")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRunFinished(ctx, rec); err != nil {
			logger.Warn().Err(err).Msg("failed to notify run report")
		}
	}
}
