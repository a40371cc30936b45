package mocks

import (
	"context"
	"sync"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// Publisher records published events in memory.
type Publisher struct {
	mu      sync.Mutex
	reviews []domain.ReviewEntry
	reports []domain.RunReport

	// PublishReviewQueuedFn allows overriding PublishReviewQueued behavior.
	PublishReviewQueuedFn func(ctx context.Context, entry domain.ReviewEntry) error
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishReviewQueued records a queued review.
func (p *Publisher) PublishReviewQueued(ctx context.Context, entry domain.ReviewEntry) error {
	if p.PublishReviewQueuedFn != nil {
		return p.PublishReviewQueuedFn(ctx, entry)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reviews = append(p.reviews, entry)

	return nil
}

// PublishRunFinished records a run report.
func (p *Publisher) PublishRunFinished(_ context.Context, report domain.RunReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reports = append(p.reports, report)

	return nil
}

// QueuedReviews returns the recorded review events.
func (p *Publisher) QueuedReviews() []domain.ReviewEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]domain.ReviewEntry(nil), p.reviews...)
}

// RunReports returns the recorded run reports.
func (p *Publisher) RunReports() []domain.RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]domain.RunReport(nil), p.reports...)
}

// Notifier records run notifications in memory.
type Notifier struct {
	mu   sync.Mutex
	runs []domain.RunRecord
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// NotifyRunFinished records the run.
func (n *Notifier) NotifyRunFinished(_ context.Context, run domain.RunRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.runs = append(n.runs, run)

	return nil
}

// Runs returns the recorded notifications.
func (n *Notifier) Runs() []domain.RunRecord {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]domain.RunRecord(nil), n.runs...)
}
