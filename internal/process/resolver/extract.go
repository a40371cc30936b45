package resolver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/process/extraction"
	"github.com/lueurxax/catalog-resolver/internal/process/matching"
)

// runState is what record decisions share within one run.
type runState struct {
	vocab  *domain.Vocabulary
	index  *matching.Index
	ranker *matching.Ranker
	report *domain.RunReport
	logger *zerolog.Logger
}

type batchOutcome struct {
	result extraction.BatchResult
	err    error
}

// extractAndDecide extracts batches concurrently and applies their
// decisions one batch at a time in input order, so a product created for
// an earlier label is a candidate for every later one.
func (r *Resolver) extractAndDecide(ctx context.Context, misses []*labelGroup, st *runState) error {
	batches := chunk(misses, r.extractor.BatchSize())

	extractCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]chan batchOutcome, len(batches))
	for i := range outcomes {
		outcomes[i] = make(chan batchOutcome, 1)
	}

	var g errgroup.Group

	g.SetLimit(r.cfg.Concurrency)

	launched := make(chan struct{})

	go func() {
		defer close(launched)

		for i, batch := range batches {
			if err := extractCtx.Err(); err != nil {
				outcomes[i] <- batchOutcome{err: err}
				continue
			}

			labels := make([]string, len(batch))
			for j, grp := range batch {
				labels[j] = grp.rawLabel
			}

			g.Go(func() error {
				res, err := r.extractor.ExtractBatch(extractCtx, labels, st.vocab)
				outcomes[i] <- batchOutcome{result: res, err: err}

				return nil
			})
		}
	}()

	var fatal error

	for i, batch := range batches {
		out := <-outcomes[i]

		if fatal != nil {
			st.report.Remaining += len(batch)
			continue
		}

		r.applyBatch(ctx, batch, out.result, st)

		if out.err != nil {
			fatal = out.err
			cancel()

			st.report.Remaining += unattempted(batch, out.result)
		}
	}

	<-launched
	_ = g.Wait() //nolint:errcheck // workers report through outcomes, never through the group

	if fatal != nil {
		return fmt.Errorf("extraction stopped: %w", fatal)
	}

	return nil
}

// applyBatch accounts one batch and decides every record it produced.
func (r *Resolver) applyBatch(ctx context.Context, batch []*labelGroup, res extraction.BatchResult, st *runState) {
	st.report.ExtractionCalls += res.Calls
	st.report.PromptTokens += res.Usage.PromptTokens
	st.report.CompletionTokens += res.Usage.CompletionTokens
	st.report.CostUSD += res.Usage.CostUSD

	for _, f := range res.Failures {
		if len(st.report.ErrorMessages) < maxErrorMessages {
			st.report.ErrorMessages = append(st.report.ErrorMessages, describeFailure(batch, f))
		}
	}

	for i, grp := range batch {
		if i >= len(res.Records) {
			break
		}

		rec := res.Records[i]
		if rec == nil {
			if failed(res.Failures, i) {
				st.report.Errors++
			}

			continue
		}

		r.decide(ctx, grp, rec, st)
	}
}

// unattempted counts labels of a stopped batch that neither got a record
// nor a recorded failure.
func unattempted(batch []*labelGroup, res extraction.BatchResult) int {
	n := 0

	for i := range batch {
		if i < len(res.Records) && res.Records[i] != nil {
			continue
		}

		if failed(res.Failures, i) {
			continue
		}

		n++
	}

	return n
}

func failed(failures []extraction.SpanFailure, i int) bool {
	for _, f := range failures {
		if i >= f.Start && i < f.End {
			return true
		}
	}

	return false
}

func describeFailure(batch []*labelGroup, f extraction.SpanFailure) string {
	if f.Start < len(batch) {
		return fmt.Sprintf("extraction failed from %q: %v", batch[f.Start].key.NormalizedLabel, f)
	}

	return f.Error()
}

func chunk(groups []*labelGroup, size int) [][]*labelGroup {
	if size <= 0 {
		size = len(groups)
	}

	out := make([][]*labelGroup, 0, (len(groups)+size-1)/size)

	for start := 0; start < len(groups); start += size {
		out = append(out, groups[start:min(start+size, len(groups))])
	}

	return out
}
