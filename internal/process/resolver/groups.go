package resolver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
	"github.com/lueurxax/catalog-resolver/internal/process/normalize"
)

// labelGroup is every unresolved listing sharing one (supplier, normalized label).
type labelGroup struct {
	key        domain.LabelKey
	rawLabel   string
	listingIDs []int64
}

// groupListings groups listings in first-seen order. Listings whose label
// normalizes to nothing are skipped.
func groupListings(listings []domain.Listing, report *domain.RunReport) []*labelGroup {
	byKey := make(map[domain.LabelKey]*labelGroup)
	groups := make([]*labelGroup, 0)

	for _, l := range listings {
		norm := normalize.Label(l.Label)
		if norm == "" {
			report.Skipped++
			continue
		}

		key := domain.LabelKey{SupplierID: l.SupplierID, NormalizedLabel: norm}

		g, ok := byKey[key]
		if !ok {
			g = &labelGroup{key: key, rawLabel: l.Label}
			byKey[key] = g
			groups = append(groups, g)
		}

		g.listingIDs = append(g.listingIDs, l.ID)
	}

	return groups
}

// serveFromCache links listings of cached labels and returns the groups
// that still need extraction. Labels with an open review wait for a human.
func (r *Resolver) serveFromCache(ctx context.Context, supplierID *int64, groups []*labelGroup, report *domain.RunReport, logger *zerolog.Logger) ([]*labelGroup, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	open, err := r.repo.ListOpenReviewKeys(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list open reviews: %w", err)
	}

	misses := make([]*labelGroup, 0, len(groups))

	for _, g := range groups {
		if open[g.key] {
			report.AwaitingReview++
			continue
		}

		entry, err := r.cache.Lookup(ctx, g.key.SupplierID, g.key.NormalizedLabel)
		if err != nil {
			return nil, err
		}

		switch {
		case entry.Resolved():
			report.CacheHits++
			observability.ResolverLabels.WithLabelValues(outcomeCacheHit).Inc()

			if _, err := r.repo.LinkListings(ctx, g.listingIDs, *entry.ProductID); err != nil {
				addError(report, fmt.Sprintf("link cached label %q: %v", g.key.NormalizedLabel, err))
				logger.Error().Err(err).Str(logKeyLabel, g.key.NormalizedLabel).Msg("failed to link cached label")
			}
		case entry != nil:
			report.CacheHits++
			report.UnresolvedHits++
			observability.ResolverLabels.WithLabelValues(outcomeCacheUnresolved).Inc()
		default:
			misses = append(misses, g)
		}
	}

	return misses, nil
}
