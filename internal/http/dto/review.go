package dto

import (
	"time"

	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/service"
)

type SubmitReviewRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language"`
	Filename string `json:"filename"`
	Phase    string `json:"phase"`
}

type SubmitReviewResponse struct {
	ReviewID string `json:"review_id"`
	Status   string `json:"status"`
}

type ReviewStatusResponse struct {
	ReviewID    string              `json:"review_id"`
	Status      string              `json:"status"`
	IsComplete  bool                `json:"is_complete"`
	Language    string              `json:"language,omitempty"`
	Filename    string              `json:"filename,omitempty"`
	Error       string              `json:"error,omitempty"`
	Chunks      []string            `json:"chunks"`
	Result      *model.ParsedReview `json:"result,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUpdated time.Time           `json:"last_updated"`
}

type ChunkFragment struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type ReviewChunksResponse struct {
	ReviewID    string          `json:"review_id"`
	Status      string          `json:"status"`
	Chunks      []ChunkFragment `json:"chunks"`
	NextChunkID int             `json:"next_chunk_id"`
	IsComplete  bool            `json:"is_complete"`
	Error       string          `json:"error,omitempty"`
}

type RepairRequest struct {
	RawText  string `json:"raw_text" binding:"required"`
	Language string `json:"language"`
	ReviewID string `json:"review_id"`
}

type RepairResponse struct {
	Success bool                `json:"success"`
	Result  *model.ParsedReview `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func ToReviewStatusResponse(rec *model.ReviewRecord) ReviewStatusResponse {
	return ReviewStatusResponse{
		ReviewID:    rec.ID,
		Status:      string(rec.Status),
		IsComplete:  rec.Status.Terminal(),
		Language:    rec.Language,
		Filename:    rec.Filename,
		Error:       rec.Error,
		Chunks:      rec.Chunks,
		Result:      rec.ParsedResponse,
		CreatedAt:   rec.Timestamp,
		LastUpdated: rec.LastUpdated,
	}
}

func ToReviewChunksResponse(reviewID string, page *service.ChunkPage) ReviewChunksResponse {
	resp := ReviewChunksResponse{
		ReviewID:    reviewID,
		Status:      string(page.Status),
		Chunks:      make([]ChunkFragment, 0, len(page.Fragments)),
		NextChunkID: page.NextChunkID,
		IsComplete:  page.IsComplete,
		Error:       page.Error,
	}
	for _, frag := range page.Fragments {
		resp.Chunks = append(resp.Chunks, ChunkFragment{ID: frag.Index, Text: frag.Text})
	}
	return resp
}
