package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"reviewloop.app/reviewd/internal/http/dto"
	"reviewloop.app/reviewd/internal/queue"
	"reviewloop.app/reviewd/internal/service"
	"reviewloop.app/reviewd/internal/store"
)

type StreamHandler struct {
	redis   *redis.Client
	reviews service.ReviewService
}

func NewStreamHandler(redisClient *redis.Client, reviews service.ReviewService) *StreamHandler {
	return &StreamHandler{redis: redisClient, reviews: reviews}
}

// Stream relays a review's event stream over SSE: metadata, raw-response
// fragments as they accumulate, then a complete or error event. Reading
// starts from the beginning of the stream so a reconnecting client
// replays what it missed.
func (h *StreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	reviewID := c.Param("id")
	if _, err := h.reviews.Status(ctx, reviewID); err != nil {
		if errors.Is(err, store.ErrReviewNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "review not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to load review"})
		return
	}

	stream := queue.ReviewStreamName(reviewID)
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "0"
	}

	setSSEHeaders(c.Writer)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "streaming not supported"})
		return
	}

	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	clientClosed := c.Request.Context().Done()

	for {
		select {
		case <-clientClosed:
			return
		default:
		}

		res, err := h.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   25 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				event, data := eventFields(msg)
				sseWrite(c.Writer, event, data)
				flusher.Flush()
				if event == queue.EventComplete || event == queue.EventError {
					return
				}
			}
		}
	}
}

func eventFields(msg redis.XMessage) (string, string) {
	event, _ := msg.Values["event"].(string)
	data, _ := msg.Values["data"].(string)
	return event, data
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
