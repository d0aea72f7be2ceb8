package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reviewloop.app/reviewd/internal/http/dto"
	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/service"
	"reviewloop.app/reviewd/internal/store"
)

type ReviewHandler struct {
	reviews service.ReviewService
}

func NewReviewHandler(reviews service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Submit accepts code for review and returns immediately with the review
// id; the work happens asynchronously.
func (h *ReviewHandler) Submit(c *gin.Context) {
	var req dto.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	reviewID, err := h.reviews.Submit(c.Request.Context(), service.SubmitInput{
		Code:     req.Code,
		Language: req.Language,
		Filename: req.Filename,
		Phase:    req.Phase,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCode):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrCodeTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: err.Error()})
		default:
			slog.ErrorContext(c.Request.Context(), "failed to submit review", "error", err)
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to submit review"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitReviewResponse{
		ReviewID: reviewID,
		Status:   string(model.StatusQueued),
	})
}

func (h *ReviewHandler) Get(c *gin.Context) {
	rec, err := h.reviews.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.recordError(c, err, "failed to load review")
		return
	}
	c.JSON(http.StatusOK, dto.ToReviewStatusResponse(rec))
}

// Chunks returns the raw-response fragments appended since the caller's
// cursor. lastChunkId defaults to -1, meaning "from the beginning".
func (h *ReviewHandler) Chunks(c *gin.Context) {
	lastChunkID := -1
	if raw := c.Query("lastChunkId"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "lastChunkId must be an integer"})
			return
		}
		lastChunkID = parsed
	}

	reviewID := c.Param("id")
	page, err := h.reviews.ChunksSince(c.Request.Context(), reviewID, lastChunkID)
	if err != nil {
		h.recordError(c, err, "failed to load review chunks")
		return
	}
	c.JSON(http.StatusOK, dto.ToReviewChunksResponse(reviewID, page))
}

// Repair reparses raw review text through the recovery ladder. It always
// answers 200; success is reported in the body so callers can fall back
// to the raw text without special-casing transport errors.
func (h *ReviewHandler) Repair(c *gin.Context) {
	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	outcome := h.reviews.Repair(c.Request.Context(), req.RawText, req.Language, req.ReviewID)
	resp := dto.RepairResponse{
		Success: outcome.Err == nil,
		Result:  outcome.Result,
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	if err := h.reviews.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.recordError(c, err, "failed to delete review")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReviewHandler) recordError(c *gin.Context, err error, msg string) {
	if errors.Is(err, store.ErrReviewNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "review not found"})
		return
	}
	slog.ErrorContext(c.Request.Context(), msg, "error", err)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: msg})
}
