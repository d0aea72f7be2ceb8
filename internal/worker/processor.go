package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/common/logger"
	"reviewloop.app/reviewd/core/config"
	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/queue"
	"reviewloop.app/reviewd/internal/review"
	"reviewloop.app/reviewd/internal/store"
)

// fragmentFlushBytes coalesces streamed deltas before each store append,
// so a token-by-token stream does not turn into one CAS round trip per
// token.
const fragmentFlushBytes = 256

// EventSink receives review lifecycle events. Satisfied by
// queue.EventPublisher.
type EventSink interface {
	Publish(ctx context.Context, reviewID, event, data string) error
}

// Processor runs the review pipeline for one task: chunk, fan out,
// aggregate, parse, and record the outcome.
type Processor struct {
	store       store.ReviewStore
	events      EventSink
	client      llm.Client
	coordinator *review.Coordinator
	repairer    *review.Repairer
	cfg         config.ReviewConfig
}

func NewProcessor(st store.ReviewStore, events EventSink, client llm.Client, cfg config.ReviewConfig) *Processor {
	return &Processor{
		store:       st,
		events:      events,
		client:      client,
		coordinator: review.NewCoordinator(client, cfg.MaxConcurrency),
		repairer:    review.NewRepairer(nil),
		cfg:         cfg,
	}
}

// Process executes one review task. A returned error means the task is
// retryable by the worker; terminal outcomes are written to the store and
// return nil.
func (p *Processor) Process(ctx context.Context, task queue.ReviewTask) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReviewID:  logger.Ptr(task.ReviewID),
		Component: "reviewd.worker.processor",
	})

	rec, err := p.store.Get(ctx, task.ReviewID)
	if errors.Is(err, store.ErrReviewNotFound) {
		// Record expired or was deleted while queued; nothing to do.
		slog.WarnContext(ctx, "review record gone, dropping task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading review record: %w", err)
	}

	if rec.Status.Terminal() {
		slog.InfoContext(ctx, "review already finished, dropping task", "status", rec.Status)
		return nil
	}
	if rec.Status == model.StatusQueued {
		if err := p.store.SetStatus(ctx, task.ReviewID, model.StatusProcessing, ""); err != nil {
			return fmt.Errorf("marking review processing: %w", err)
		}
	}

	p.publish(ctx, task.ReviewID, queue.EventMetadata, map[string]any{
		"review_id": task.ReviewID,
		"language":  task.Language,
		"filename":  task.Filename,
	})

	phase := review.PhaseDetection
	threshold := p.cfg.ChunkThreshold
	if task.Phase == string(review.PhaseImplementation) {
		phase = review.PhaseImplementation
		threshold = p.cfg.ImplementationChunkThreshold
	}

	chunks := review.NewChunker(threshold).Split(task.Code, task.Language)
	slog.InfoContext(ctx, "review chunked",
		"chunks", len(chunks),
		"lines", review.CountLines(task.Code),
		"phase", phase)

	if len(chunks) == 1 {
		return p.processWhole(ctx, task, phase)
	}
	return p.processChunked(ctx, task, chunks, phase)
}

// processWhole reviews small input as a single streamed request, appending
// fragments to the record as they arrive.
func (p *Processor) processWhole(ctx context.Context, task queue.ReviewTask, phase review.Phase) error {
	systemPrompt := review.DetectionSystemPrompt(task.Language)
	if phase == review.PhaseImplementation {
		systemPrompt = review.ImplementationSystemPrompt(task.Language)
	}

	var buffered strings.Builder
	flush := func() {
		if buffered.Len() == 0 {
			return
		}
		p.appendFragment(ctx, task.ReviewID, buffered.String())
		buffered.Reset()
	}

	resp, err := p.client.ChatStream(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   review.WholeFileUserPrompt(task.Code, task.Language),
	}, func(delta string) {
		buffered.WriteString(delta)
		if buffered.Len() >= fragmentFlushBytes {
			flush()
		}
	})
	flush()
	if err != nil {
		return fmt.Errorf("review request: %w", err)
	}

	parsed := review.Parse(resp.Content)
	if !parsed.Success {
		slog.InfoContext(ctx, "response parse failed, attempting recovery", "error", parsed.Err)
		parsed = p.repairer.Recover(resp.Content)
	}
	if !parsed.Success {
		// Not fatal: the raw text is preserved and the caller can invoke
		// the repair endpoint.
		return p.finish(ctx, task.ReviewID, nil, fmt.Sprintf("parse failed: %v", parsed.Err))
	}

	score := review.ComputeQualityScore(parsed.Result.Issues, review.CountLines(task.Code))
	parsed.Result.Score = &score
	return p.finish(ctx, task.ReviewID, parsed.Result, "")
}

// processChunked fans chunks out to the service and merges the surviving
// results. A chunk's own failure never aborts its siblings; the review
// fails only when every chunk does.
func (p *Processor) processChunked(ctx context.Context, task queue.ReviewTask, chunks []review.Chunk, phase review.Phase) error {
	results := p.coordinator.Run(ctx, chunks, task.Language, phase, func(progress review.Progress) {
		if progress.RawText != "" {
			p.appendFragment(ctx, task.ReviewID, progress.RawText)
		}
		slog.InfoContext(ctx, "chunk completed",
			"chunk_id", progress.ChunkID,
			"percent", progress.Percent,
			"completed", progress.Completed,
			"total", progress.Total,
			"failed", progress.Err != nil)
	})

	succeeded := 0
	for _, res := range results {
		if res.Err == nil && res.Parsed != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return fmt.Errorf("all %d chunks failed", len(chunks))
	}

	agg, err := review.Aggregate(results, chunks, task.Code)
	if err != nil {
		return fmt.Errorf("aggregating chunk results: %w", err)
	}

	return p.finish(ctx, task.ReviewID, &model.ParsedReview{
		Summary:     agg.Summary,
		Issues:      agg.Issues,
		Suggestions: agg.Suggestions,
		CleanCode:   agg.CleanCode,
		Score:       &agg.Score,
	}, "")
}

// finish records the terminal outcome. parseErr set with a nil result
// means the review completed but its text never parsed; the raw fragments
// stay available for repair.
func (p *Processor) finish(ctx context.Context, reviewID string, parsed *model.ParsedReview, parseErr string) error {
	if parsed != nil {
		if err := p.store.SetParsedResult(ctx, reviewID, parsed); err != nil {
			return fmt.Errorf("storing parsed result: %w", err)
		}
	}

	if err := p.store.SetStatus(ctx, reviewID, model.StatusCompleted, parseErr); err != nil {
		return fmt.Errorf("marking review completed: %w", err)
	}

	p.publish(ctx, reviewID, queue.EventComplete, map[string]any{
		"review_id":   reviewID,
		"status":      model.StatusCompleted,
		"parse_error": parseErr,
	})

	slog.InfoContext(ctx, "review completed", "parse_error", parseErr != "")
	return nil
}

// Fail marks a review as terminally failed. Called by the worker when a
// task exhausts its attempts.
func (p *Processor) Fail(ctx context.Context, reviewID, cause string) {
	if err := p.store.SetStatus(ctx, reviewID, model.StatusError, cause); err != nil {
		slog.ErrorContext(ctx, "failed to mark review errored", "error", err, "review_id", reviewID)
	}
	p.publish(ctx, reviewID, queue.EventError, map[string]any{
		"review_id": reviewID,
		"error":     cause,
	})
}

func (p *Processor) appendFragment(ctx context.Context, reviewID, fragment string) {
	if err := p.store.AppendRawText(ctx, reviewID, fragment); err != nil {
		slog.WarnContext(ctx, "failed to append fragment", "error", err)
	}
	p.publish(ctx, reviewID, queue.EventChunk, fragment)
}

func (p *Processor) publish(ctx context.Context, reviewID, event string, data any) {
	payload, ok := data.(string)
	if !ok {
		bytes, err := json.Marshal(data)
		if err != nil {
			slog.WarnContext(ctx, "failed to marshal event payload", "error", err, "event", event)
			return
		}
		payload = string(bytes)
	}

	if err := p.events.Publish(ctx, reviewID, event, payload); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "error", err, "event", event)
	}
}
