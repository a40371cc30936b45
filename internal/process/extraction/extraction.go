// Package extraction drives the attribute oracle over batches of labels.
//
// A batch is processed as a worklist of spans. A span whose response is
// malformed is retried once and then split in halves; transport failures are
// retried with exponential backoff; an authentication failure stops the
// batch. Records that cannot be extracted come back as nil so the caller can
// keep the rest of the batch.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/llm"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
)

const (
	defaultBatchSize   = 25
	defaultMaxRetries  = 4
	defaultBackoffBase = 2 * time.Second
	maxBackoff         = 60 * time.Second

	resultSuccess   = "success"
	resultMalformed = "malformed"
	resultTransient = "transient"
	resultFatal     = "fatal"

	logKeySpanStart = "span_start"
	logKeySpanEnd   = "span_end"
)

// Config tunes batching and retries.
type Config struct {
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
}

// SpanFailure records a label range [Start, End) that produced no records.
type SpanFailure struct {
	Start int
	End   int
	Err   error
}

func (f SpanFailure) Error() string {
	return fmt.Sprintf("labels %d..%d: %v", f.Start, f.End-1, f.Err)
}

// BatchResult holds one entry per input label, nil when extraction failed.
type BatchResult struct {
	Records  []*domain.Attributes
	Usage    llm.Usage
	Calls    int
	Failures []SpanFailure
}

// Client extracts attributes for label batches.
type Client struct {
	oracle llm.Oracle
	cfg    Config
	logger *zerolog.Logger
}

// New creates an extraction client. Zero config values take defaults.
func New(oracle llm.Oracle, cfg Config, logger *zerolog.Logger) *Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	return &Client{oracle: oracle, cfg: cfg, logger: logger}
}

// BatchSize returns the configured number of labels per batch.
func (c *Client) BatchSize() int {
	return c.cfg.BatchSize
}

// Split cuts labels into consecutive batches of at most BatchSize.
func (c *Client) Split(labels []string) [][]string {
	batches := make([][]string, 0, (len(labels)+c.cfg.BatchSize-1)/c.cfg.BatchSize)

	for start := 0; start < len(labels); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(labels))
		batches = append(batches, labels[start:end])
	}

	return batches
}

type span struct {
	start, end int
	retried    bool
}

// ExtractBatch extracts one record per label. The returned error is non-nil
// only for failures that must stop the run: authentication and caller
// cancellation. Partial results are returned alongside it.
func (c *Client) ExtractBatch(ctx context.Context, labels []string, vocab *domain.Vocabulary) (BatchResult, error) {
	start := time.Now()
	defer func() {
		observability.ExtractionBatchDuration.Observe(time.Since(start).Seconds())
	}()

	result := BatchResult{Records: make([]*domain.Attributes, len(labels))}
	if len(labels) == 0 {
		return result, nil
	}

	stack := []span{{start: 0, end: len(labels)}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		records, err := c.callSpan(ctx, labels[s.start:s.end], vocab, &result)

		switch {
		case err == nil:
			for i := range records {
				rec := postProcess(records[i], labels[s.start+i], vocab)
				result.Records[s.start+i] = &rec
			}
		case isFatal(ctx, err):
			observability.ExtractionCalls.WithLabelValues(resultFatal).Inc()
			return result, err
		case errors.Is(err, coreerrors.ErrMalformedResponse):
			stack = c.handleMalformed(stack, s, err, &result)
		default:
			c.fail(s, err, &result)
		}
	}

	return result, nil
}

func (c *Client) handleMalformed(stack []span, s span, err error, result *BatchResult) []span {
	switch {
	case !s.retried:
		s.retried = true
		return append(stack, s)
	case s.end-s.start > 1:
		mid := s.start + (s.end-s.start)/2
		observability.ExtractionSplits.Inc()
		c.logger.Debug().
			Int(logKeySpanStart, s.start).
			Int(logKeySpanEnd, s.end).
			Msg("splitting span after malformed responses")

		return append(stack, span{start: mid, end: s.end}, span{start: s.start, end: mid})
	default:
		c.fail(s, err, result)
		return stack
	}
}

func (c *Client) fail(s span, err error, result *BatchResult) {
	result.Failures = append(result.Failures, SpanFailure{Start: s.start, End: s.end, Err: err})
	c.logger.Warn().
		Err(err).
		Int(logKeySpanStart, s.start).
		Int(logKeySpanEnd, s.end).
		Msg("extraction span failed")
}

// callSpan calls the oracle for one span, retrying transport failures.
func (c *Client) callSpan(ctx context.Context, labels []string, vocab *domain.Vocabulary, result *BatchResult) ([]domain.Attributes, error) {
	var records []domain.Attributes

	backoff := retry.WithCappedDuration(maxBackoff, retry.NewExponential(c.cfg.BackoffBase))
	backoff = retry.WithMaxRetries(uint64(c.cfg.MaxRetries), backoff) //nolint:gosec // MaxRetries is non-negative

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result.Calls++

		res, err := c.oracle.ExtractAttributes(ctx, labels, vocab)
		result.Usage.Add(res.Usage)

		if err != nil {
			if isTransient(err) {
				observability.ExtractionCalls.WithLabelValues(resultTransient).Inc()
				return retry.RetryableError(err)
			}

			if errors.Is(err, coreerrors.ErrMalformedResponse) {
				observability.ExtractionCalls.WithLabelValues(resultMalformed).Inc()
			}

			return err
		}

		observability.ExtractionCalls.WithLabelValues(resultSuccess).Inc()
		records = res.Records

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(records) != len(labels) {
		return nil, fmt.Errorf("%w: %d records for %d labels", coreerrors.ErrMalformedResponse, len(records), len(labels))
	}

	return records, nil
}

func isTransient(err error) bool {
	return errors.Is(err, coreerrors.ErrRateLimited) || errors.Is(err, coreerrors.ErrConnectivity)
}

// isFatal reports failures that stop the batch. A request timeout inside the
// oracle is a connectivity failure; only the caller's own context counts here.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, coreerrors.ErrAuthentication) || ctx.Err() != nil
}

// postProcess snaps extracted values onto the vocabulary. A manufacturer
// code present in the label overrides the model family.
func postProcess(rec domain.Attributes, label string, vocab *domain.Vocabulary) domain.Attributes {
	if vocab == nil {
		return rec
	}

	if rec.Brand != "" {
		rec.Brand = vocab.CanonicalBrand(rec.Brand)
	}

	if rec.Color != "" {
		rec.Color = vocab.CanonicalColor(rec.Color)
	}

	for _, token := range strings.FieldsFunc(label, isCodeSeparator) {
		if name, ok := vocab.CommercialName(token); ok {
			rec.ModelFamily = name
			break
		}
	}

	return rec
}

func isCodeSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '/', ',', ';', '(', ')', '[', ']':
		return true
	}

	return false
}
