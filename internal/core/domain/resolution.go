package domain

import (
	"time"
)

// ResolutionSource tells how a label cache entry was produced.
type ResolutionSource string

const (
	SourceAuto               ResolutionSource = "auto"
	SourceManual             ResolutionSource = "manual"
	SourceExtractionFallback ResolutionSource = "extraction_fallback"
)

// LabelCacheEntry memoizes the resolution of one (supplier, normalized label) key.
// A nil ProductID means the label was extracted but never matched.
type LabelCacheEntry struct {
	SupplierID      int64
	NormalizedLabel string
	ProductID       *int64
	Score           int
	Source          ResolutionSource
	Attributes      *Attributes
	LastUsedAt      time.Time
	CreatedAt       time.Time
}

// Resolved reports whether the entry points at a referential product.
func (e *LabelCacheEntry) Resolved() bool {
	return e != nil && e.ProductID != nil
}

// ReviewStatus is the state of a pending review entry.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewValidated ReviewStatus = "validated"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewCreated   ReviewStatus = "created"
)

var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:  {ReviewValidated, ReviewRejected},
	ReviewRejected: {ReviewCreated},
}

// CanTransition reports whether a review may move from s to next.
func (s ReviewStatus) CanTransition(next ReviewStatus) bool {
	for _, allowed := range reviewTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// ReviewEntry is a label queued for a human decision, with its ranked candidates.
type ReviewEntry struct {
	ID              string
	SupplierID      int64
	ListingID       int64
	SourceLabel     string
	NormalizedLabel string
	Attributes      Attributes
	Candidates      []MatchCandidate
	Status          ReviewStatus
	ProductID       *int64
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

// RunReport holds the counters of one orchestration run.
type RunReport struct {
	RunID            string        `json:"run_id,omitempty"`
	SupplierID       *int64        `json:"supplier_id,omitempty"`
	TotalLabels      int           `json:"total_labels"`
	CacheHits        int           `json:"cache_hits"`
	UnresolvedHits   int           `json:"unresolved_cache_hits"`
	AwaitingReview   int           `json:"awaiting_review"`
	ExtractionCalls  int           `json:"extraction_calls"`
	AutoMatched      int           `json:"auto_matched"`
	QueuedForReview  int           `json:"queued_for_review"`
	AutoCreated      int           `json:"auto_created"`
	Unresolved       int           `json:"unresolved"`
	Skipped          int           `json:"skipped"`
	Errors           int           `json:"errors"`
	ErrorMessages    []string      `json:"error_messages,omitempty"`
	Remaining        int           `json:"remaining"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration_ns"`
}

// RunStatus is the lifecycle state of a run job.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAbandoned RunStatus = "abandoned"
)

// Terminal reports whether the run will not change state again.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunAbandoned
}

// RunRecord is the persisted job record of one orchestration run.
type RunRecord struct {
	ID         string
	SupplierID *int64
	Limit      int
	Status     RunStatus
	Report     *RunReport
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// LabelKey identifies the unit of resolution: one normalized label of one supplier.
type LabelKey struct {
	SupplierID      int64
	NormalizedLabel string
}

// Resolution is one decision to commit for a label. Exactly one of ProductID
// and NewProduct is set for a resolved label; both are nil for a label that
// stays unresolved.
type Resolution struct {
	SupplierID      int64
	NormalizedLabel string
	ListingIDs      []int64
	ProductID       *int64
	NewProduct      *Product
	Score           int
	Source          ResolutionSource
	Attributes      *Attributes
	// RelinkIDs are listings still linked to the label's previous product.
	// A manual commit moves them to the new product.
	RelinkIDs []int64
}

// Key returns the cache key of the resolution.
func (r Resolution) Key() LabelKey {
	return LabelKey{SupplierID: r.SupplierID, NormalizedLabel: r.NormalizedLabel}
}

// CommitResult reports what committing a Resolution wrote.
type CommitResult struct {
	ProductID *int64
	Created   bool
	Linked    int64
	// Superseded is set when an existing cache entry won over the proposed
	// resolution; listings were linked to that entry's product if it had one.
	Superseded bool
}

// ReviewDecision moves a review to a new status and, when Resolution is
// set, commits the resolution in the same transaction.
type ReviewDecision struct {
	ReviewID   string
	To         ReviewStatus
	Resolution *Resolution
}

// ListingFilter narrows a listing scan.
type ListingFilter struct {
	SupplierID *int64
	AfterID    int64
	Limit      int
}
