package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"reviewloop.app/reviewd/internal/http/dto"
	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/review"
)

const maxPollFailures = 10

// backoff grows the poll interval while the server has nothing new and
// snaps back to the floor the moment fresh fragments arrive.
type backoff struct {
	current time.Duration
	min     time.Duration
	max     time.Duration
	factor  float64
}

func newBackoff() *backoff {
	return &backoff{min: 500 * time.Millisecond, max: 5 * time.Second, factor: 1.5}
}

// next returns the delay to wait before the following poll, growing the
// interval for the one after it.
func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.min
	}
	delay := b.current
	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

func (b *backoff) reset() {
	b.current = 0
}

// Update is one observation of a review's progress. RawText is the full
// accumulated response so far; Result is set whenever that text parses.
// Done marks the final update before the channel closes.
type Update struct {
	ReviewID string
	Status   model.ReviewStatus
	RawText  string
	Result   *model.ParsedReview
	Err      error
	Done     bool
}

// Poller drives reviews by polling the chunk cursor endpoint. Starting a
// new review cancels the previous one; only the latest submission is
// ever being tracked.
type Poller struct {
	client *Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewPoller(client *Client) *Poller {
	return &Poller{client: client}
}

// StartReview submits code and returns a channel of progress updates.
// The channel closes after the Done update. Any review started earlier
// on this poller stops receiving updates.
func (p *Poller) StartReview(ctx context.Context, req dto.SubmitReviewRequest) (<-chan Update, error) {
	reviewID, err := p.client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	updates := make(chan Update, 16)
	go p.run(sessionCtx, reviewID, req.Language, updates)
	return updates, nil
}

// Stop cancels the in-flight review session, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) run(ctx context.Context, reviewID, language string, updates chan<- Update) {
	defer close(updates)

	var buf strings.Builder
	bo := newBackoff()
	lastChunkID := -1
	failures := 0

	for {
		page, err := p.client.Chunks(ctx, reviewID, lastChunkID)
		if err != nil {
			if ctx.Err() != nil {
				emit(ctx, updates, Update{ReviewID: reviewID, Err: ctx.Err(), Done: true})
				return
			}
			failures++
			if failures >= maxPollFailures {
				emit(ctx, updates, Update{ReviewID: reviewID, Err: fmt.Errorf("polling review: %w", err), Done: true})
				return
			}
			if !sleep(ctx, bo.next()) {
				emit(ctx, updates, Update{ReviewID: reviewID, Err: ctx.Err(), Done: true})
				return
			}
			continue
		}
		failures = 0

		if len(page.Chunks) > 0 {
			for _, frag := range page.Chunks {
				buf.WriteString(frag.Text)
			}
			lastChunkID = page.NextChunkID
			bo.reset()

			// Reparsing the whole buffer each time is idempotent: a
			// fragment can complete a section that was truncated on the
			// previous poll.
			update := Update{
				ReviewID: reviewID,
				Status:   model.ReviewStatus(page.Status),
				RawText:  buf.String(),
			}
			if parsed := review.Parse(buf.String()); parsed.Success {
				update.Result = parsed.Result
			}
			if !emit(ctx, updates, update) {
				return
			}
		}

		if page.IsComplete {
			emit(ctx, updates, p.finalUpdate(ctx, reviewID, language, page, buf.String()))
			return
		}

		if !sleep(ctx, bo.next()) {
			emit(ctx, updates, Update{ReviewID: reviewID, Err: ctx.Err(), Done: true})
			return
		}
	}
}

// emit delivers an update without stranding the polling goroutine: a
// consumer that stopped reading would otherwise block the send forever
// once the channel buffer fills. Delivery is attempted even after
// cancellation as long as the buffer has room.
func emit(ctx context.Context, updates chan<- Update, u Update) bool {
	select {
	case updates <- u:
		return true
	default:
	}
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

// finalUpdate reconciles the terminal state: prefer the server's parsed
// result, then a local parse of the accumulated text, then a repair
// round trip. Raw text is surfaced even when everything fails.
func (p *Poller) finalUpdate(ctx context.Context, reviewID, language string, page *dto.ReviewChunksResponse, rawText string) Update {
	update := Update{
		ReviewID: reviewID,
		Status:   model.ReviewStatus(page.Status),
		RawText:  rawText,
		Done:     true,
	}

	if status, err := p.client.Status(ctx, reviewID); err == nil && status.Result != nil {
		update.Result = status.Result
		return update
	}

	if rawText != "" {
		if parsed := review.Parse(rawText); parsed.Success {
			update.Result = parsed.Result
			return update
		}

		repaired, err := p.client.Repair(ctx, dto.RepairRequest{
			RawText:  rawText,
			Language: language,
			ReviewID: reviewID,
		})
		if err == nil && repaired.Success {
			update.Result = repaired.Result
			return update
		}
	}

	switch {
	case page.Error != "":
		update.Err = fmt.Errorf("review failed: %s", page.Error)
	case rawText == "":
		update.Err = fmt.Errorf("review finished without any response text")
	default:
		update.Err = fmt.Errorf("review text could not be parsed or repaired")
	}
	return update
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
