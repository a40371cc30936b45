// Package ports provides domain-centric interfaces for external dependencies.
// Business logic depends on these, the storage package implements them, and
// the mocks subpackage provides in-memory doubles for tests.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// ListingRepository reads supplier listings and links them to products.
type ListingRepository interface {
	ListUnresolvedListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)
	ListLinkedListings(ctx context.Context, productID int64, filter domain.ListingFilter) ([]domain.Listing, error)
	LinkListings(ctx context.Context, listingIDs []int64, productID int64) (int64, error)
}

// ProductRepository reads the referential product table.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// ResolutionRepository commits label decisions atomically.
type ResolutionRepository interface {
	CommitResolution(ctx context.Context, r domain.Resolution) (domain.CommitResult, error)
}

// ReviewRepository stores the human review queue.
type ReviewRepository interface {
	CreateReview(ctx context.Context, entry domain.ReviewEntry) (id string, created bool, err error)
	GetReview(ctx context.Context, id string) (domain.ReviewEntry, error)
	ListReviews(ctx context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error)
	ListOpenReviewKeys(ctx context.Context, supplierID *int64) (map[domain.LabelKey]bool, error)
	DecideReview(ctx context.Context, d domain.ReviewDecision) (domain.ReviewEntry, domain.CommitResult, error)
}

// RunRepository stores run jobs and their lease.
type RunRepository interface {
	CreateRun(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error)
	GetRun(ctx context.Context, id string) (domain.RunRecord, error)
	LatestRun(ctx context.Context, supplierID *int64) (domain.RunRecord, error)
	ClaimRun(ctx context.Context, id string) (domain.RunRecord, error)
	ClaimNextRun(ctx context.Context) (domain.RunRecord, error)
	FinishRun(ctx context.Context, id string, status domain.RunStatus, report *domain.RunReport, errText string) error
	AbandonStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LabelCacheRepository is the persistent label cache.
type LabelCacheRepository interface {
	LookupLabel(ctx context.Context, supplierID int64, normalizedLabel string) (*domain.LabelCacheEntry, error)
	UpsertLabel(ctx context.Context, entry domain.LabelCacheEntry) error
	ListLabelsBySupplier(ctx context.Context, supplierID int64) ([]domain.LabelCacheEntry, error)
}

// CatalogRepository is everything a resolution run reads and writes.
type CatalogRepository interface {
	ListingRepository
	ProductRepository
	ResolutionRepository
	ReviewRepository
	LabelCacheRepository
}

// EventPublisher emits domain events to downstream consumers.
type EventPublisher interface {
	PublishReviewQueued(ctx context.Context, entry domain.ReviewEntry) error
	PublishRunFinished(ctx context.Context, report domain.RunReport) error
}

// Notifier delivers human-readable run summaries to operators.
type Notifier interface {
	NotifyRunFinished(ctx context.Context, run domain.RunRecord) error
}
