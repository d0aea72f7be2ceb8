package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"reviewloop.app/reviewd/internal/http/dto"
)

// Client is a thin HTTP client for the review API, used by the poller
// and by tooling that drives reviews programmatically.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Submit(ctx context.Context, req dto.SubmitReviewRequest) (string, error) {
	var resp dto.SubmitReviewResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/reviews", req, &resp, http.StatusAccepted); err != nil {
		return "", err
	}
	return resp.ReviewID, nil
}

func (c *Client) Status(ctx context.Context, reviewID string) (*dto.ReviewStatusResponse, error) {
	var resp dto.ReviewStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/reviews/"+reviewID, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Chunks(ctx context.Context, reviewID string, lastChunkID int) (*dto.ReviewChunksResponse, error) {
	path := "/api/v1/reviews/" + reviewID + "/chunks?lastChunkId=" + strconv.Itoa(lastChunkID)
	var resp dto.ReviewChunksResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Repair(ctx context.Context, req dto.RepairRequest) (*dto.RepairResponse, error) {
	var resp dto.RepairResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/reviews/repair", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Delete(ctx context.Context, reviewID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/reviews/"+reviewID, nil, nil, http.StatusNoContent)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr dto.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
