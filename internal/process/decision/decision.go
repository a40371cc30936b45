// Package decision maps the best candidate score of a label to an outcome.
package decision

// Outcome is the result of the decision gate.
type Outcome string

// Outcomes.
const (
	AutoMatch Outcome = "auto_match"
	Review    Outcome = "review"
	Create    Outcome = "create"
)

// Default thresholds.
const (
	DefaultAutoThreshold   = 90
	DefaultReviewThreshold = 50
)

// Gate holds the score thresholds.
type Gate struct {
	Auto   int
	Review int
}

// DefaultGate returns a gate with the default thresholds.
func DefaultGate() Gate {
	return Gate{Auto: DefaultAutoThreshold, Review: DefaultReviewThreshold}
}

// NewGate returns a gate. A negative threshold means unset and takes the
// default; zero is a valid threshold.
func NewGate(auto, review int) Gate {
	if auto < 0 {
		auto = DefaultAutoThreshold
	}

	if review < 0 {
		review = DefaultReviewThreshold
	}

	return Gate{Auto: auto, Review: review}
}

// Decide picks the outcome for the top candidate score. Without candidates
// a new product is created.
func (g Gate) Decide(topScore int, hasCandidates bool) Outcome {
	switch {
	case !hasCandidates:
		return Create
	case topScore >= g.Auto:
		return AutoMatch
	case topScore >= g.Review:
		return Review
	default:
		return Create
	}
}
