package model

import "time"

// ReviewStatus is the lifecycle state of a review record.
type ReviewStatus string

const (
	StatusQueued     ReviewStatus = "queued"
	StatusProcessing ReviewStatus = "processing"
	StatusRepairing  ReviewStatus = "repairing"
	StatusCompleted  ReviewStatus = "completed"
	StatusError      ReviewStatus = "error"
)

// Terminal reports whether the status ends the review lifecycle.
func (s ReviewStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is a single finding extracted from generated review text.
// LineNumbers are chunk-relative until the aggregator offsets them into
// the original file's coordinate space.
type Issue struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Severity         Severity `json:"severity"`
	Description      string   `json:"description"`
	Impact           string   `json:"impact,omitempty"`
	LineNumbers      []int    `json:"line_numbers"`
	ProposedSolution string   `json:"proposed_solution,omitempty"`
	Approved         bool     `json:"approved"`
	SeniorComments   string   `json:"senior_comments,omitempty"`
}

// Suggestion is a concrete code change proposed by the review.
// Accepted is tri-state: nil until a human reviewer decides; the
// pipeline itself never sets it.
type Suggestion struct {
	ID            string `json:"id"`
	LineNumber    int    `json:"line_number"`
	OriginalCode  string `json:"original_code"`
	SuggestedCode string `json:"suggested_code"`
	Explanation   string `json:"explanation"`
	Accepted      *bool  `json:"accepted"`
}

type QualityScore struct {
	Overall    int            `json:"overall"`
	Categories CategoryScores `json:"categories"`
}

type CategoryScores struct {
	Readability     int `json:"readability"`
	Maintainability int `json:"maintainability"`
	Simplicity      int `json:"simplicity"`
	Consistency     int `json:"consistency"`
}

// ParsedReview is the structured result extracted from generated text.
type ParsedReview struct {
	Summary     string        `json:"summary"`
	Issues      []Issue       `json:"issues,omitempty"`
	Suggestions []Suggestion  `json:"suggestions,omitempty"`
	CleanCode   string        `json:"clean_code"`
	Score       *QualityScore `json:"score,omitempty"`
}

// ReviewRecord tracks one review's lifecycle. Owned exclusively by the
// review store; Chunks holds raw text fragments in arrival order.
type ReviewRecord struct {
	ID             string        `json:"id"`
	Status         ReviewStatus  `json:"status"`
	Chunks         []string      `json:"chunks"`
	ParsedResponse *ParsedReview `json:"parsed_response,omitempty"`
	Error          string        `json:"error,omitempty"`
	Language       string        `json:"language,omitempty"`
	Filename       string        `json:"filename,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// RawText returns the accumulated generated text across all fragments.
func (r *ReviewRecord) RawText() string {
	var total int
	for _, c := range r.Chunks {
		total += len(c)
	}
	buf := make([]byte, 0, total)
	for _, c := range r.Chunks {
		buf = append(buf, c...)
	}
	return string(buf)
}
