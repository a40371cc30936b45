// Package app wires dependencies and runs the operational modes.
//
//   - Run mode: one synchronous resolution run, report returned to the caller
//   - Enqueue mode: queue a run for the worker
//   - Worker mode: poll queued runs and execute them
//   - Status mode: latest run of a scope
//   - Review mode: apply a human decision to a review entry
//   - Reviews, labels and usage modes: read-only listings
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/llm"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
	"github.com/lueurxax/catalog-resolver/internal/platform/config"
	"github.com/lueurxax/catalog-resolver/internal/platform/events"
	"github.com/lueurxax/catalog-resolver/internal/platform/notify"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
	"github.com/lueurxax/catalog-resolver/internal/process/decision"
	"github.com/lueurxax/catalog-resolver/internal/process/extraction"
	"github.com/lueurxax/catalog-resolver/internal/process/labelcache"
	"github.com/lueurxax/catalog-resolver/internal/process/resolver"
	"github.com/lueurxax/catalog-resolver/internal/process/review"
	"github.com/lueurxax/catalog-resolver/internal/process/runs"
	"github.com/lueurxax/catalog-resolver/internal/process/vocabulary"
	db "github.com/lueurxax/catalog-resolver/internal/storage"
)

// Review actions accepted by ApplyReview.
const (
	ActionValidate = "validate"
	ActionReject   = "reject"
	ActionCreate   = "create"
	ActionOverride = "override"
)

const (
	logFieldRunID  = "run_id"
	logFieldAction = "action"
)

var errUnknownAction = errors.New("unknown review action")

// ReviewRequest is one human decision.
type ReviewRequest struct {
	Action     string
	ReviewID   string
	ProductID  int64
	SupplierID int64
	Label      string
}

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	rdb     *redis.Client
	closers []func()
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// Close releases the clients opened while wiring.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.closers = nil
}

// StartHealthServer starts the health check and metrics server. Redis joins
// the readiness checks once the label cache front is connected.
func (a *App) StartHealthServer(ctx context.Context) error {
	checks := map[string]observability.Pinger{"postgres": a.database}

	if rdb := a.rdb; rdb != nil {
		checks["redis"] = observability.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	srv := observability.NewServer(checks, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunOnce executes one resolution run synchronously.
func (a *App) RunOnce(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	svc, err := a.newRunService(ctx)
	if err != nil {
		return domain.RunRecord{}, err
	}

	rec, err := svc.RunNow(ctx, supplierID, limit)
	if err != nil {
		return rec, fmt.Errorf("run: %w", err)
	}

	a.logger.Info().Str(logFieldRunID, rec.ID).Str("status", string(rec.Status)).Msg("run finished")

	return rec, nil
}

// Enqueue queues a run for the worker without needing the oracle.
func (a *App) Enqueue(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	svc := runs.New(a.database, nil, nil, nil, a.runsConfig(), a.logger)

	rec, err := svc.Enqueue(ctx, supplierID, limit)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("enqueue: %w", err)
	}

	return rec, nil
}

// Status returns the latest run of a scope.
func (a *App) Status(ctx context.Context, supplierID *int64) (domain.RunRecord, error) {
	svc := runs.New(a.database, nil, nil, nil, a.runsConfig(), a.logger)

	return svc.Latest(ctx, supplierID)
}

// RunWorker polls queued runs until ctx is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("Starting worker mode")

	svc, err := a.newRunService(ctx)
	if err != nil {
		return err
	}

	go func() {
		if err := a.StartHealthServer(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := svc.Work(ctx); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}

	return nil
}

// ApplyReview applies one human decision.
func (a *App) ApplyReview(ctx context.Context, req ReviewRequest) (any, error) {
	cache, err := a.newLabelCache(ctx)
	if err != nil {
		return nil, err
	}

	svc := review.New(a.database, cache, a.logger)
	a.logger.Info().Str(logFieldAction, req.Action).Str("review_id", req.ReviewID).Msg("applying review decision")

	switch req.Action {
	case ActionValidate:
		return svc.Validate(ctx, req.ReviewID, req.ProductID)
	case ActionReject:
		return svc.Reject(ctx, req.ReviewID)
	case ActionCreate:
		return svc.CreateFromRejected(ctx, req.ReviewID)
	case ActionOverride:
		return svc.Override(ctx, req.SupplierID, req.Label, req.ProductID)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, req.Action)
	}
}

// ListReviews returns review entries in one status.
func (a *App) ListReviews(ctx context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error) {
	return review.New(a.database, nil, a.logger).List(ctx, status, limit)
}

// Usage returns oracle usage over the last days, today included.
func (a *App) Usage(ctx context.Context, days int) (*db.LLMUsageSummary, error) {
	if days < 1 {
		days = 1
	}

	since := time.Now().UTC().AddDate(0, 0, 1-days)

	summary, err := a.database.GetLLMUsageSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("usage: %w", err)
	}

	return summary, nil
}

// Labels lists the label cache of one supplier.
func (a *App) Labels(ctx context.Context, supplierID int64) ([]domain.LabelCacheEntry, error) {
	if supplierID <= 0 {
		return nil, fmt.Errorf("%w: labels needs --supplier", coreerrors.ErrInvalidInput)
	}

	cache, err := a.newLabelCache(ctx)
	if err != nil {
		return nil, err
	}

	return cache.ListBySupplier(ctx, supplierID)
}

func (a *App) runsConfig() runs.Config {
	slots, err := a.cfg.RunScheduleCfg()
	if err != nil {
		a.logger.Warn().Err(err).Msg("scheduled runs disabled")
	}

	return runs.Config{
		LeaseTTL:       a.cfg.RunLeaseTTL,
		PollInterval:   a.cfg.WorkerPollInterval,
		Schedule:       slots,
		ScheduledLimit: a.cfg.RunScheduledLimit,
	}
}

func (a *App) newRunService(ctx context.Context) (*runs.Service, error) {
	notifier := a.newNotifier()

	oracle, err := a.newOracle(ctx, notifier)
	if err != nil {
		return nil, err
	}

	cache, err := a.newLabelCache(ctx)
	if err != nil {
		return nil, err
	}

	publisher := a.newPublisher()
	ext := a.cfg.ExtractionCfg()
	match := a.cfg.MatchingCfg()

	extractor := extraction.New(oracle, extraction.Config{
		BatchSize:   ext.BatchSize,
		MaxRetries:  ext.MaxRetries,
		BackoffBase: ext.BackoffBase,
	}, a.logger)

	res := resolver.New(
		a.database,
		vocabulary.NewBuilder(a.database, a.logger),
		extractor,
		cache,
		publisher,
		resolver.Config{
			Gate:        decision.NewGate(match.AutoThreshold, match.ReviewThreshold),
			TopN:        match.TopN,
			Concurrency: ext.Concurrency,
		},
		a.logger,
	)

	return runs.New(a.database, res, notifier, publisher, a.runsConfig(), a.logger), nil
}

// newOracle seeds the budget from today's persisted usage so restarts keep counting.
func (a *App) newOracle(ctx context.Context, notifier ports.Notifier) (llm.Oracle, error) {
	budget := llm.NewBudgetTracker(a.cfg.LLMDailyTokenBudget, a.logger)

	used, err := a.database.DailyTokenUsage(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to load today's token usage, budget starts at zero")
	} else {
		budget.Seed(used)
	}

	if tg, ok := notifier.(*notify.Telegram); ok {
		budget.SetAlertCallback(func(alert llm.BudgetAlert) {
			//nolint:contextcheck // alert fires from a detached goroutine
			if err := tg.NotifyBudgetAlert(context.Background(), alert); err != nil {
				a.logger.Warn().Err(err).Msg("failed to send budget alert")
			}
		})
	}

	oracle, err := llm.New(a.cfg, llm.NewUsageRecorder(budget, a.database, a.logger), a.logger)
	if err != nil {
		return nil, fmt.Errorf("extraction oracle: %w", err)
	}

	return oracle, nil
}

func (a *App) newLabelCache(ctx context.Context) (*labelcache.Cache, error) {
	redisCfg := a.cfg.RedisCfg()
	if redisCfg.Addr == "" {
		return labelcache.New(a.database, nil, a.logger), nil
	}

	rdb, err := labelcache.Dial(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("label cache front: %w", err)
	}

	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	return labelcache.New(a.database, labelcache.NewRedisFront(rdb, redisCfg.TTL), a.logger), nil
}

func (a *App) newPublisher() ports.EventPublisher {
	if len(a.cfg.KafkaBrokers) == 0 {
		return events.Noop{}
	}

	producer := events.NewProducer(events.ProducerConfig{
		Brokers:     a.cfg.KafkaBrokers,
		ReviewTopic: a.cfg.ReviewTopic,
		RunTopic:    a.cfg.RunTopic,
	}, a.logger)

	a.closers = append(a.closers, func() {
		if err := producer.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to flush events")
		}
	})

	return producer
}

func (a *App) newNotifier() ports.Notifier {
	if a.cfg.BotToken == "" || a.cfg.AdminChatID == 0 {
		return notify.Noop{}
	}

	tg, err := notify.NewTelegram(a.cfg.BotToken, a.cfg.AdminChatID, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("telegram notifications disabled")
		return notify.Noop{}
	}

	return tg
}

// IsBusy reports whether err means another run holds the scope.
func IsBusy(err error) bool {
	return errors.Is(err, coreerrors.ErrRunInProgress)
}
