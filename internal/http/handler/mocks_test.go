package handler_test

import (
	"context"

	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/service"
)

type mockReviewService struct {
	submitFn      func(ctx context.Context, in service.SubmitInput) (string, error)
	statusFn      func(ctx context.Context, reviewID string) (*model.ReviewRecord, error)
	chunksSinceFn func(ctx context.Context, reviewID string, lastChunkID int) (*service.ChunkPage, error)
	repairFn      func(ctx context.Context, rawText, language, reviewID string) service.RepairOutcome
	deleteFn      func(ctx context.Context, reviewID string) error
}

func (m *mockReviewService) Submit(ctx context.Context, in service.SubmitInput) (string, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, in)
	}
	return "", nil
}

func (m *mockReviewService) Status(ctx context.Context, reviewID string) (*model.ReviewRecord, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, reviewID)
	}
	return nil, nil
}

func (m *mockReviewService) ChunksSince(ctx context.Context, reviewID string, lastChunkID int) (*service.ChunkPage, error) {
	if m.chunksSinceFn != nil {
		return m.chunksSinceFn(ctx, reviewID, lastChunkID)
	}
	return &service.ChunkPage{}, nil
}

func (m *mockReviewService) Repair(ctx context.Context, rawText, language, reviewID string) service.RepairOutcome {
	if m.repairFn != nil {
		return m.repairFn(ctx, rawText, language, reviewID)
	}
	return service.RepairOutcome{}
}

func (m *mockReviewService) Delete(ctx context.Context, reviewID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, reviewID)
	}
	return nil
}
