package queue

import "fmt"

// ReviewTask is one unit of pipeline work: review the carried code and
// write results into the identified record. The code travels with the
// task so the worker never depends on the record outliving the queue.
type ReviewTask struct {
	ReviewID string
	Code     string
	Language string
	Filename string
	Phase    string
	TraceID  string
	Attempt  int
}

// Event labels for the per-review event stream, in causal order.
const (
	EventMetadata = "metadata"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// ReviewStreamName is the Redis stream carrying one review's events,
// consumed by the SSE endpoint.
func ReviewStreamName(reviewID string) string {
	return fmt.Sprintf("review-stream:%s", reviewID)
}
