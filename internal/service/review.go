package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reviewloop.app/reviewd/common/id"
	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/common/logger"
	"reviewloop.app/reviewd/core/config"
	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/queue"
	"reviewloop.app/reviewd/internal/review"
	"reviewloop.app/reviewd/internal/store"
)

var (
	ErrEmptyCode    = errors.New("code must not be empty")
	ErrCodeTooLarge = errors.New("code exceeds the maximum review size")
)

// SubmitInput carries a review submission.
type SubmitInput struct {
	Code     string
	Language string
	Filename string
	Phase    string
}

// ChunkFragment is one raw-response fragment with its position in the
// record's fragment list.
type ChunkFragment struct {
	Index int
	Text  string
}

// ChunkPage is a cursor page of fragments accumulated since the caller's
// last poll.
type ChunkPage struct {
	Status      model.ReviewStatus
	Fragments   []ChunkFragment
	NextChunkID int
	IsComplete  bool
	Error       string
}

// RepairOutcome is the result of a repair attempt over raw review text.
type RepairOutcome struct {
	Result *model.ParsedReview
	Err    error
}

// ReviewService owns the review lifecycle exposed over HTTP: submission,
// status, incremental fragment reads, repair, and deletion.
type ReviewService interface {
	Submit(ctx context.Context, in SubmitInput) (string, error)
	Status(ctx context.Context, reviewID string) (*model.ReviewRecord, error)
	ChunksSince(ctx context.Context, reviewID string, lastChunkID int) (*ChunkPage, error)
	Repair(ctx context.Context, rawText, language, reviewID string) RepairOutcome
	Delete(ctx context.Context, reviewID string) error
}

type reviewService struct {
	store    store.ReviewStore
	producer queue.Producer
	repairer *review.Repairer
	cfg      config.ReviewConfig
}

func NewReviewService(st store.ReviewStore, producer queue.Producer, client llm.Client, cfg config.ReviewConfig) ReviewService {
	return &reviewService{
		store:    st,
		producer: producer,
		repairer: review.NewRepairer(client),
		cfg:      cfg,
	}
}

func (s *reviewService) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if in.Code == "" {
		return "", ErrEmptyCode
	}
	if len(in.Code) > s.cfg.MaxCodeBytes {
		return "", ErrCodeTooLarge
	}
	if in.Language == "" {
		in.Language = "plaintext"
	}

	reviewID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReviewID:  logger.Ptr(reviewID),
		Component: "reviewd.service.review",
	})

	if _, err := s.store.Create(ctx, reviewID, in.Language, in.Filename); err != nil {
		return "", fmt.Errorf("creating review record: %w", err)
	}

	err := s.producer.Enqueue(ctx, queue.ReviewTask{
		ReviewID: reviewID,
		Code:     in.Code,
		Language: in.Language,
		Filename: in.Filename,
		Phase:    in.Phase,
	})
	if err != nil {
		// Offer the record anyway; the caller sees a stuck "queued" review
		// that expires with the TTL.
		slog.ErrorContext(ctx, "failed to enqueue review task", "error", err)
		return "", fmt.Errorf("enqueueing review: %w", err)
	}

	slog.InfoContext(ctx, "review submitted",
		"language", in.Language,
		"bytes", len(in.Code),
		"lines", review.CountLines(in.Code))
	return reviewID, nil
}

func (s *reviewService) Status(ctx context.Context, reviewID string) (*model.ReviewRecord, error) {
	return s.store.Get(ctx, reviewID)
}

// ChunksSince returns the fragments with index greater than lastChunkID.
// Callers start at -1 and feed NextChunkID back on the following poll.
// Cursors below -1 are treated as -1.
func (s *reviewService) ChunksSince(ctx context.Context, reviewID string, lastChunkID int) (*ChunkPage, error) {
	if lastChunkID < -1 {
		lastChunkID = -1
	}

	rec, err := s.store.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	page := &ChunkPage{
		Status:      rec.Status,
		NextChunkID: lastChunkID,
		IsComplete:  rec.Status.Terminal(),
		Error:       rec.Error,
	}
	for i := lastChunkID + 1; i < len(rec.Chunks); i++ {
		page.Fragments = append(page.Fragments, ChunkFragment{Index: i, Text: rec.Chunks[i]})
		page.NextChunkID = i
	}
	return page, nil
}

// Repair runs the recovery ladder over raw text: structural recovery
// first, an LLM reformat pass only if that fails. When reviewID names a
// live record the outcome is written back to it.
func (s *reviewService) Repair(ctx context.Context, rawText, language, reviewID string) RepairOutcome {
	if reviewID != "" {
		ctx = logger.WithLogFields(ctx, logger.LogFields{ReviewID: logger.Ptr(reviewID)})
		if err := s.store.SetStatus(ctx, reviewID, model.StatusRepairing, ""); err != nil {
			// The record may have expired; repair still proceeds on the
			// text the caller handed us.
			slog.WarnContext(ctx, "could not mark review repairing", "error", err)
			reviewID = ""
		}
	}

	parsed := review.Parse(rawText)
	if !parsed.Success {
		parsed = s.repairer.Recover(rawText)
	}
	if !parsed.Success {
		parsed = s.repairer.Reformat(ctx, rawText, language)
	}

	if !parsed.Success {
		if reviewID != "" {
			if err := s.store.SetStatus(ctx, reviewID, model.StatusError, parsed.Err.Error()); err != nil {
				slog.WarnContext(ctx, "could not mark review errored after repair", "error", err)
			}
		}
		return RepairOutcome{Result: parsed.Result, Err: parsed.Err}
	}

	if parsed.Result.Score == nil {
		score := review.ComputeQualityScore(parsed.Result.Issues, review.CountLines(parsed.Result.CleanCode))
		parsed.Result.Score = &score
	}

	if reviewID != "" {
		if err := s.store.SetParsedResult(ctx, reviewID, parsed.Result); err != nil {
			slog.WarnContext(ctx, "could not store repaired result", "error", err)
		} else if err := s.store.SetStatus(ctx, reviewID, model.StatusCompleted, ""); err != nil {
			slog.WarnContext(ctx, "could not mark review completed after repair", "error", err)
		}
	}
	return RepairOutcome{Result: parsed.Result}
}

func (s *reviewService) Delete(ctx context.Context, reviewID string) error {
	return s.store.Delete(ctx, reviewID)
}
