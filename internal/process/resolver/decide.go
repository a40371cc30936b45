package resolver

import (
	"context"
	"fmt"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
	"github.com/lueurxax/catalog-resolver/internal/process/decision"
)

// Label outcome values of the ResolverLabels metric.
const (
	outcomeCacheHit        = "cache_hit"
	outcomeCacheUnresolved = "cache_unresolved"
	outcomeAutoMatch       = "auto_match"
	outcomeReview          = "review"
	outcomeCreate          = "create"
	outcomeUnresolved      = "unresolved"
	outcomeError           = "error"
)

// decide scores one extracted record and commits the gate's outcome.
func (r *Resolver) decide(ctx context.Context, grp *labelGroup, attrs *domain.Attributes, st *runState) {
	if !attrs.Usable() {
		r.commitUnresolved(ctx, grp, attrs, st)
		return
	}

	candidates := st.ranker.Rank(attrs)

	top := 0
	if len(candidates) > 0 {
		top = candidates[0].Score
	}

	observability.MatchTopScore.Observe(float64(top))

	outcome := r.cfg.Gate.Decide(top, len(candidates) > 0)

	st.logger.Debug().
		Str(logKeyLabel, grp.key.NormalizedLabel).
		Str(logKeyOutcome, string(outcome)).
		Int(logKeyScore, top).
		Msg("label decided")

	switch outcome {
	case decision.AutoMatch:
		r.commitMatch(ctx, grp, attrs, candidates[0], st)
	case decision.Review:
		r.queueReview(ctx, grp, attrs, candidates, st)
	default:
		r.commitCreate(ctx, grp, attrs, top, st)
	}
}

func (r *Resolver) commitMatch(ctx context.Context, grp *labelGroup, attrs *domain.Attributes, best domain.MatchCandidate, st *runState) {
	productID := best.ProductID

	if _, err := r.commit(ctx, grp, domain.Resolution{
		ProductID:  &productID,
		Score:      best.Score,
		Source:     domain.SourceAuto,
		Attributes: attrs,
	}, st); err != nil {
		return
	}

	st.report.AutoMatched++
	observability.ResolverLabels.WithLabelValues(outcomeAutoMatch).Inc()
}

func (r *Resolver) commitCreate(ctx context.Context, grp *labelGroup, attrs *domain.Attributes, score int, st *runState) {
	product := domain.ProductFromAttributes(attrs)

	res, err := r.commit(ctx, grp, domain.Resolution{
		NewProduct: &product,
		Score:      score,
		Source:     domain.SourceAuto,
		Attributes: attrs,
	}, st)
	if err != nil {
		return
	}

	if !res.Created {
		// Another writer resolved the label first; its product was used.
		st.report.AutoMatched++
		observability.ResolverLabels.WithLabelValues(outcomeAutoMatch).Inc()

		return
	}

	product.ID = *res.ProductID
	st.index.Add(product)

	st.report.AutoCreated++
	observability.ResolverLabels.WithLabelValues(outcomeCreate).Inc()
}

func (r *Resolver) commitUnresolved(ctx context.Context, grp *labelGroup, attrs *domain.Attributes, st *runState) {
	if _, err := r.commit(ctx, grp, domain.Resolution{
		Source:     domain.SourceExtractionFallback,
		Attributes: attrs,
	}, st); err != nil {
		return
	}

	st.report.Unresolved++
	observability.ResolverLabels.WithLabelValues(outcomeUnresolved).Inc()
}

// commit fills the label fields of res, writes it and drops the key from
// the cache front. Failures are counted and the run continues.
func (r *Resolver) commit(ctx context.Context, grp *labelGroup, res domain.Resolution, st *runState) (domain.CommitResult, error) {
	res.SupplierID = grp.key.SupplierID
	res.NormalizedLabel = grp.key.NormalizedLabel
	res.ListingIDs = grp.listingIDs

	out, err := r.repo.CommitResolution(ctx, res)
	if err != nil {
		addError(st.report, fmt.Sprintf("commit %q: %v", grp.key.NormalizedLabel, err))
		observability.ResolverLabels.WithLabelValues(outcomeError).Inc()
		st.logger.Error().Err(err).Str(logKeyLabel, grp.key.NormalizedLabel).Msg("failed to commit resolution")

		return domain.CommitResult{}, err
	}

	r.cache.Forget(ctx, grp.key)

	return out, nil
}

func (r *Resolver) queueReview(ctx context.Context, grp *labelGroup, attrs *domain.Attributes, candidates []domain.MatchCandidate, st *runState) {
	entry := domain.ReviewEntry{
		SupplierID:      grp.key.SupplierID,
		ListingID:       grp.listingIDs[0],
		SourceLabel:     grp.rawLabel,
		NormalizedLabel: grp.key.NormalizedLabel,
		Attributes:      *attrs,
		Candidates:      candidates,
		Status:          domain.ReviewPending,
	}

	id, created, err := r.repo.CreateReview(ctx, entry)
	if err != nil {
		addError(st.report, fmt.Sprintf("queue review %q: %v", grp.key.NormalizedLabel, err))
		observability.ResolverLabels.WithLabelValues(outcomeError).Inc()
		st.logger.Error().Err(err).Str(logKeyLabel, grp.key.NormalizedLabel).Msg("failed to queue review")

		return
	}

	st.report.QueuedForReview++
	observability.ResolverLabels.WithLabelValues(outcomeReview).Inc()

	if !created || r.publisher == nil {
		return
	}

	entry.ID = id
	if err := r.publisher.PublishReviewQueued(ctx, entry); err != nil {
		st.logger.Warn().Err(err).Str(logKeyLabel, grp.key.NormalizedLabel).Msg("failed to publish review event")
	}
}
