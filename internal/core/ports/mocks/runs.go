package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

// RunStore is a thread-safe in-memory implementation of ports.RunRepository.
// At most one run per supplier scope may be running, as in storage.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]domain.RunRecord
	seq  int

	// Now allows tests to control timestamps.
	Now func() time.Time

	// FinishRunFn allows overriding FinishRun behavior.
	FinishRunFn func(ctx context.Context, id string, status domain.RunStatus, report *domain.RunReport, errText string) error
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]domain.RunRecord),
		Now:  time.Now,
	}
}

// CreateRun enqueues a run.
func (s *RunStore) CreateRun(_ context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := domain.RunRecord{
		ID:         fmt.Sprintf("run-%04d", s.seq),
		SupplierID: supplierID,
		Limit:      limit,
		Status:     domain.RunQueued,
		CreatedAt:  s.Now(),
	}
	s.runs[rec.ID] = rec

	return rec, nil
}

// GetRun returns one run.
func (s *RunStore) GetRun(_ context.Context, id string) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok {
		return domain.RunRecord{}, coreerrors.ErrRunNotFound
	}

	return rec, nil
}

// LatestRun returns the newest run of a supplier scope.
func (s *RunStore) LatestRun(_ context.Context, supplierID *int64) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest domain.RunRecord
		found  bool
	)

	for _, rec := range s.sortedLocked() {
		if scope(rec.SupplierID) != scope(supplierID) || (rec.SupplierID == nil) != (supplierID == nil) {
			continue
		}

		latest, found = rec, true
	}

	if !found {
		return domain.RunRecord{}, coreerrors.ErrRunNotFound
	}

	return latest, nil
}

// ClaimRun moves a queued run to running.
func (s *RunStore) ClaimRun(_ context.Context, id string) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok || rec.Status != domain.RunQueued {
		return domain.RunRecord{}, coreerrors.ErrRunNotFound
	}

	return s.claimLocked(rec)
}

// ClaimNextRun moves the oldest queued run to running.
func (s *RunStore) ClaimNextRun(_ context.Context) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.sortedLocked() {
		if rec.Status == domain.RunQueued {
			return s.claimLocked(rec)
		}
	}

	return domain.RunRecord{}, coreerrors.ErrRunNotFound
}

func (s *RunStore) claimLocked(rec domain.RunRecord) (domain.RunRecord, error) {
	for _, other := range s.runs {
		if other.Status == domain.RunRunning && scope(other.SupplierID) == scope(rec.SupplierID) {
			return domain.RunRecord{}, coreerrors.ErrRunInProgress
		}
	}

	now := s.Now()
	rec.Status = domain.RunRunning
	rec.StartedAt = &now
	s.runs[rec.ID] = rec

	return rec, nil
}

// FinishRun stores the terminal state of a running run.
func (s *RunStore) FinishRun(ctx context.Context, id string, status domain.RunStatus, report *domain.RunReport, errText string) error {
	if s.FinishRunFn != nil {
		return s.FinishRunFn(ctx, id, status, report, errText)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok || rec.Status != domain.RunRunning {
		return coreerrors.ErrRunNotFound
	}

	now := s.Now()
	rec.Status = status
	rec.Report = report
	rec.Error = errText
	rec.FinishedAt = &now
	s.runs[id] = rec

	return nil
}

// AbandonStaleRuns abandons runs running for longer than olderThan.
func (s *RunStore) AbandonStaleRuns(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	now := s.Now()

	for id, rec := range s.runs {
		if rec.Status != domain.RunRunning || rec.StartedAt == nil || now.Sub(*rec.StartedAt) <= olderThan {
			continue
		}

		rec.Status = domain.RunAbandoned
		rec.Error = "lease expired"
		rec.FinishedAt = &now
		s.runs[id] = rec
		n++
	}

	return n, nil
}

func (s *RunStore) sortedLocked() []domain.RunRecord {
	out := make([]domain.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func scope(supplierID *int64) int64 {
	if supplierID == nil {
		return 0
	}

	return *supplierID
}
