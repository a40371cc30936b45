// Package review applies human decisions to queued labels.
//
// A review moves pending -> validated | rejected, and rejected -> created.
// Validating or creating commits a manual resolution in the same
// transaction as the status change; manual cache entries are never
// replaced by later automatic runs.
package review

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
	"github.com/lueurxax/catalog-resolver/internal/process/labelcache"
	"github.com/lueurxax/catalog-resolver/internal/process/normalize"
	db "github.com/lueurxax/catalog-resolver/internal/storage"
)

const (
	listingPageSize = 1000

	logKeyReview  = "review_id"
	logKeyProduct = "product_id"
	logKeyStatus  = "status"
)

// Repository is the storage surface of the review workflow.
type Repository interface {
	ports.ListingRepository
	ports.ResolutionRepository
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	GetReview(ctx context.Context, id string) (domain.ReviewEntry, error)
	ListReviews(ctx context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error)
	DecideReview(ctx context.Context, d domain.ReviewDecision) (domain.ReviewEntry, domain.CommitResult, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Service runs review decisions.
type Service struct {
	repo   Repository
	cache  *labelcache.Cache
	logger *zerolog.Logger
}

// New creates a review Service.
func New(repo Repository, cache *labelcache.Cache, logger *zerolog.Logger) *Service {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns reviews in a status, oldest first.
func (s *Service) List(ctx context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error) {
	entries, err := s.repo.ListReviews(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	return entries, nil
}

// Validate confirms a pending review against productID.
func (s *Service) Validate(ctx context.Context, reviewID string, productID int64) (domain.ReviewEntry, error) {
	entry, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return domain.ReviewEntry{}, err
	}

	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return entry, fmt.Errorf("validate review %s: %w", reviewID, err)
	}

	ids, err := s.labelListings(ctx, entry)
	if err != nil {
		return entry, err
	}

	return s.decide(ctx, domain.ReviewDecision{
		ReviewID: reviewID,
		To:       domain.ReviewValidated,
		Resolution: &domain.Resolution{
			SupplierID:      entry.SupplierID,
			NormalizedLabel: entry.NormalizedLabel,
			ListingIDs:      ids,
			ProductID:       &productID,
			Score:           candidateScore(entry.Candidates, productID),
			Source:          domain.SourceManual,
			Attributes:      &entry.Attributes,
		},
	})
}

// Reject marks a pending review as having no matching product.
func (s *Service) Reject(ctx context.Context, reviewID string) (domain.ReviewEntry, error) {
	return s.decide(ctx, domain.ReviewDecision{ReviewID: reviewID, To: domain.ReviewRejected})
}

// CreateFromRejected mints a product from the stored attributes of a
// rejected review and links the label to it.
func (s *Service) CreateFromRejected(ctx context.Context, reviewID string) (domain.ReviewEntry, error) {
	entry, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return domain.ReviewEntry{}, err
	}

	if entry.Status != domain.ReviewRejected {
		return entry, fmt.Errorf("%w: %s -> %s", coreerrors.ErrInvalidTransition, entry.Status, domain.ReviewCreated)
	}

	if !entry.Attributes.Usable() {
		return entry, fmt.Errorf("%w: review %s has no brand to create a product from", coreerrors.ErrInvalidInput, reviewID)
	}

	ids, err := s.labelListings(ctx, entry)
	if err != nil {
		return entry, err
	}

	product := domain.ProductFromAttributes(&entry.Attributes)

	return s.decide(ctx, domain.ReviewDecision{
		ReviewID: reviewID,
		To:       domain.ReviewCreated,
		Resolution: &domain.Resolution{
			SupplierID:      entry.SupplierID,
			NormalizedLabel: entry.NormalizedLabel,
			ListingIDs:      ids,
			NewProduct:      &product,
			Source:          domain.SourceManual,
			Attributes:      &entry.Attributes,
		},
	})
}

// Override pins a supplier label to a product regardless of any earlier
// resolution. Listings an earlier resolution linked to another product
// move to the new one.
func (s *Service) Override(ctx context.Context, supplierID int64, label string, productID int64) (domain.CommitResult, error) {
	norm := normalize.Label(label)
	if norm == "" {
		return domain.CommitResult{}, fmt.Errorf("%w: empty label", coreerrors.ErrInvalidInput)
	}

	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return domain.CommitResult{}, fmt.Errorf("override %q: %w", norm, err)
	}

	ids, err := s.listingsFor(ctx, supplierID, norm)
	if err != nil {
		return domain.CommitResult{}, err
	}

	relink, err := s.previouslyLinked(ctx, supplierID, norm, productID)
	if err != nil {
		return domain.CommitResult{}, err
	}

	res, err := s.repo.CommitResolution(ctx, domain.Resolution{
		SupplierID:      supplierID,
		NormalizedLabel: norm,
		ListingIDs:      ids,
		ProductID:       &productID,
		Source:          domain.SourceManual,
		RelinkIDs:       relink,
	})
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("override %q: %w", norm, err)
	}

	s.cache.Forget(ctx, domain.LabelKey{SupplierID: supplierID, NormalizedLabel: norm})

	s.logger.Info().
		Int64(logKeyProduct, productID).
		Str("label", norm).
		Int64("linked", res.Linked).
		Msg("label overridden")

	return res, nil
}

func (s *Service) decide(ctx context.Context, d domain.ReviewDecision) (domain.ReviewEntry, error) {
	entry, res, err := s.repo.DecideReview(ctx, d)
	if err != nil {
		return entry, fmt.Errorf("review %s: %w", d.ReviewID, err)
	}

	if d.Resolution != nil {
		s.cache.Forget(ctx, d.Resolution.Key())
	}

	observability.ReviewDecisions.WithLabelValues(string(d.To)).Inc()

	event := s.logger.Info().Str(logKeyReview, d.ReviewID).Str(logKeyStatus, string(d.To))
	if res.ProductID != nil {
		event = event.Int64(logKeyProduct, *res.ProductID).Int64("linked", res.Linked)
	}

	event.Msg("review decided")

	return entry, nil
}

// labelListings returns the unresolved listings of a review's label,
// always including the listing the review was opened for.
func (s *Service) labelListings(ctx context.Context, entry domain.ReviewEntry) ([]int64, error) {
	ids, err := s.listingsFor(ctx, entry.SupplierID, entry.NormalizedLabel)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if id == entry.ListingID {
			return ids, nil
		}
	}

	return append(ids, entry.ListingID), nil
}

func (s *Service) listingsFor(ctx context.Context, supplierID int64, norm string) ([]int64, error) {
	return s.collectLabel(ctx, supplierID, norm, s.repo.ListUnresolvedListings)
}

// previouslyLinked returns the label's listings linked to the product its
// cache entry resolves to, when that product is not productID.
func (s *Service) previouslyLinked(ctx context.Context, supplierID int64, norm string, productID int64) ([]int64, error) {
	entry, err := s.cache.Lookup(ctx, supplierID, norm)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", norm, err)
	}

	if !entry.Resolved() || *entry.ProductID == productID {
		return nil, nil
	}

	previous := *entry.ProductID

	return s.collectLabel(ctx, supplierID, norm, func(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
		return s.repo.ListLinkedListings(ctx, previous, filter)
	})
}

type listingPager func(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)

// collectLabel pages through a supplier's listings and keeps those whose
// label normalizes to norm.
func (s *Service) collectLabel(ctx context.Context, supplierID int64, norm string, list listingPager) ([]int64, error) {
	var (
		ids     []int64
		afterID int64
	)

	for {
		page, err := list(ctx, domain.ListingFilter{
			SupplierID: &supplierID,
			AfterID:    afterID,
			Limit:      listingPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list label listings: %w", err)
		}

		for _, l := range page {
			if normalize.Label(l.Label) == norm {
				ids = append(ids, l.ID)
			}
		}

		if len(page) < listingPageSize {
			return ids, nil
		}

		afterID = page[len(page)-1].ID
	}
}

func candidateScore(candidates []domain.MatchCandidate, productID int64) int {
	for _, c := range candidates {
		if c.ProductID == productID {
			return c.Score
		}
	}

	return 0
}
