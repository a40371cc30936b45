// Package resolver runs one resolution pass over the unresolved supplier
// listings.
//
// A run groups listings by (supplier, normalized label), serves every label
// the cache already knows, extracts attributes for the rest in parallel
// batches, and commits one decision per label strictly in batch order:
// auto-match, queue for review, or create a product.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
	"github.com/lueurxax/catalog-resolver/internal/process/decision"
	"github.com/lueurxax/catalog-resolver/internal/process/extraction"
	"github.com/lueurxax/catalog-resolver/internal/process/labelcache"
	"github.com/lueurxax/catalog-resolver/internal/process/matching"
	db "github.com/lueurxax/catalog-resolver/internal/storage"
)

const (
	defaultConcurrency = 2
	defaultPageSize    = 1000
	maxErrorMessages   = 50

	logKeyRunID    = "run_id"
	logKeySupplier = "supplier_id"
	logKeyLabel    = "label"
	logKeyOutcome  = "outcome"
	logKeyScore    = "score"
)

// Repository is the storage surface a run needs.
type Repository interface {
	ports.ListingRepository
	ports.ProductRepository
	ports.ResolutionRepository
	CreateReview(ctx context.Context, entry domain.ReviewEntry) (id string, created bool, err error)
	ListOpenReviewKeys(ctx context.Context, supplierID *int64) (map[domain.LabelKey]bool, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// VocabularyBuilder snapshots the referential vocabularies.
type VocabularyBuilder interface {
	Build(ctx context.Context) (*domain.Vocabulary, error)
}

// Extractor turns label batches into attribute records.
type Extractor interface {
	ExtractBatch(ctx context.Context, labels []string, vocab *domain.Vocabulary) (extraction.BatchResult, error)
	BatchSize() int
}

// Config tunes a run.
type Config struct {
	Gate        decision.Gate
	TopN        int
	Concurrency int
	PageSize    int
}

// RunOptions scope one run.
type RunOptions struct {
	RunID      string
	SupplierID *int64
	// Limit caps the number of unique labels sent to extraction. Zero means no cap.
	Limit int
}

// Resolver executes resolution runs.
type Resolver struct {
	repo      Repository
	vocab     VocabularyBuilder
	extractor Extractor
	cache     *labelcache.Cache
	publisher ports.EventPublisher
	cfg       Config
	logger    *zerolog.Logger
}

// New creates a Resolver. publisher may be nil.
func New(repo Repository, vocab VocabularyBuilder, extractor Extractor, cache *labelcache.Cache, publisher ports.EventPublisher, cfg Config, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.Gate == (decision.Gate{}) {
		cfg.Gate = decision.DefaultGate()
	}

	if cfg.TopN <= 0 {
		cfg.TopN = matching.DefaultTopN
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	return &Resolver{
		repo:      repo,
		vocab:     vocab,
		extractor: extractor,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run resolves the unresolved listings in scope and returns the run report.
// An authentication failure or cancellation stops the run; decisions already
// committed stay committed and the partial report is returned with the error.
func (r *Resolver) Run(ctx context.Context, opts RunOptions) (domain.RunReport, error) {
	start := time.Now()
	report := domain.RunReport{RunID: opts.RunID, SupplierID: opts.SupplierID}

	logger := r.logger.With().Str(logKeyRunID, opts.RunID).Logger()
	if opts.SupplierID != nil {
		logger = logger.With().Int64(logKeySupplier, *opts.SupplierID).Logger()
	}

	err := r.run(ctx, opts, &report, &logger)

	report.Duration = time.Since(start)
	observability.ResolverRunDuration.Observe(report.Duration.Seconds())
	observability.ResolverBacklog.Set(float64(report.Remaining))

	status := string(domain.RunCompleted)
	if err != nil {
		status = string(domain.RunFailed)
	}

	observability.ResolverRuns.WithLabelValues(status).Inc()

	logger.Info().
		Int("labels", report.TotalLabels).
		Int("cache_hits", report.CacheHits).
		Int("extraction_calls", report.ExtractionCalls).
		Int("auto_matched", report.AutoMatched).
		Int("queued_for_review", report.QueuedForReview).
		Int("auto_created", report.AutoCreated).
		Int("errors", report.Errors).
		Int("remaining", report.Remaining).
		Dur("duration", report.Duration).
		Msg("resolution run finished")

	return report, err
}

func (r *Resolver) run(ctx context.Context, opts RunOptions, report *domain.RunReport, logger *zerolog.Logger) error {
	listings, err := r.collectListings(ctx, opts.SupplierID)
	if err != nil {
		return err
	}

	groups := groupListings(listings, report)
	report.TotalLabels = len(groups)

	misses, err := r.serveFromCache(ctx, opts.SupplierID, groups, report, logger)
	if err != nil {
		return err
	}

	if opts.Limit > 0 && len(misses) > opts.Limit {
		report.Remaining = len(misses) - opts.Limit
		misses = misses[:opts.Limit]
	}

	if len(misses) == 0 {
		return nil
	}

	vocab, err := r.vocab.Build(ctx)
	if err != nil {
		return fmt.Errorf("build vocabulary: %w", err)
	}

	products, err := r.repo.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	state := &runState{
		vocab:  vocab,
		index:  matching.NewIndex(products),
		report: report,
		logger: logger,
	}
	state.ranker = matching.NewRanker(state.index, vocab, r.cfg.TopN)

	return r.extractAndDecide(ctx, misses, state)
}

// collectListings pages through every unresolved listing in scope.
func (r *Resolver) collectListings(ctx context.Context, supplierID *int64) ([]domain.Listing, error) {
	var (
		all     []domain.Listing
		afterID int64
	)

	for {
		page, err := r.repo.ListUnresolvedListings(ctx, domain.ListingFilter{
			SupplierID: supplierID,
			AfterID:    afterID,
			Limit:      r.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list unresolved listings: %w", err)
		}

		all = append(all, page...)

		if len(page) < r.cfg.PageSize {
			return all, nil
		}

		afterID = page[len(page)-1].ID
	}
}

func addError(report *domain.RunReport, msg string) {
	report.Errors++

	if len(report.ErrorMessages) < maxErrorMessages {
		report.ErrorMessages = append(report.ErrorMessages, msg)
	}
}
