// Package worker runs poll-based job loops with periodic housekeeping.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// ProcessFunc handles at most one job. It reports whether a job was found so
// the loop can drain a backlog without sleeping between jobs.
type ProcessFunc func(ctx context.Context) (bool, error)

// PeriodicTask runs at most once per Interval, between jobs.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Config configures the worker loop.
type Config struct {
	Name string

	// PollInterval is the pause after an iteration that found no job.
	PollInterval time.Duration

	Process       ProcessFunc
	PeriodicTasks []PeriodicTask

	// OnError decides whether the loop survives a Process error. When nil
	// errors are logged and the loop continues.
	OnError func(err error) bool

	Logger *zerolog.Logger
}

// PanicError wraps a value recovered from a panicking ProcessFunc.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("process panicked: %v", e.Value)
}

// Loop runs cfg.Process until ctx is canceled or OnError stops it.
// Periodic tasks run first, then on their interval.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")
	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	lastRun := make([]time.Time, len(cfg.PeriodicTasks))

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker loop %s: %w", cfg.Name, err)
		}

		runDueTasks(ctx, cfg.PeriodicTasks, lastRun, logger)

		worked, err := step(ctx, cfg.Process)
		if err != nil && ctx.Err() == nil {
			if cfg.OnError != nil && !cfg.OnError(err) {
				return fmt.Errorf("worker loop %s: %w", cfg.Name, err)
			}

			logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
		}

		if worked && err == nil {
			continue
		}

		if err := Wait(ctx, cfg.PollInterval); err != nil {
			return fmt.Errorf("worker loop %s: %w", cfg.Name, err)
		}
	}
}

func runDueTasks(ctx context.Context, tasks []PeriodicTask, lastRun []time.Time, logger *zerolog.Logger) {
	now := time.Now()

	for i, task := range tasks {
		if task.Interval <= 0 || task.Run == nil || now.Sub(lastRun[i]) < task.Interval {
			continue
		}

		logger.Debug().Str(logFieldTask, task.Name).Msg("running periodic task")
		task.Run(ctx)
		lastRun[i] = now
	}
}

// step keeps a panicking job from taking the worker down.
func step(ctx context.Context, process ProcessFunc) (worked bool, err error) {
	if process == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			worked, err = true, PanicError{Value: r}
		}
	}()

	return process(ctx)
}

// Wait blocks until d elapses or ctx is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
