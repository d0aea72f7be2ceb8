package review

import (
	"context"
	"log/slog"
	"sync"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/common/logger"
	"reviewloop.app/reviewd/internal/model"
)

// Phase selects what the generative service is asked to do with a chunk.
type Phase string

const (
	PhaseDetection      Phase = "detection"
	PhaseImplementation Phase = "implementation"
)

const (
	// progressSetup is the share of overall progress reserved for setup
	// before any chunk completes.
	progressSetup = 15
	// progressChunkSpan is the share covered by the chunk phase; the
	// remainder is reserved for aggregation.
	progressChunkSpan = 65

	defaultConcurrency = 4
)

// ChunkResult is one chunk's outcome. A failed chunk keeps its raw text
// (when any) and its error; it contributes nothing to the aggregate.
type ChunkResult struct {
	Chunk   Chunk
	Parsed  *model.ParsedReview
	RawText string
	Err     error
}

// Progress is emitted once per completed chunk. Percent values are
// monotonically non-decreasing hints, not exact work units. Issues carry
// line numbers already offset into the original file's coordinates.
type Progress struct {
	Percent   int
	Completed int
	Total     int
	ChunkID   string
	RawText   string
	Issues    []model.Issue
	Err       error
}

// Coordinator fans chunks out to the generative service concurrently and
// collects per-chunk typed results. Outbound calls are bounded by a
// semaphore so very large inputs cannot overwhelm the service.
type Coordinator struct {
	client      llm.Client
	repairer    *Repairer
	concurrency int
}

func NewCoordinator(client llm.Client, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Coordinator{
		client:      client,
		repairer:    NewRepairer(nil), // chunk-level recovery never re-calls the service
		concurrency: concurrency,
	}
}

// Run reviews all chunks and returns their results keyed by chunk ID.
// It waits for every chunk: one chunk's failure never aborts its siblings.
// onProgress, when non-nil, is called serially in completion order.
func (c *Coordinator) Run(ctx context.Context, chunks []Chunk, language string, phase Phase, onProgress func(Progress)) map[string]*ChunkResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "reviewd.review.coordinator",
		Phase:     logger.Ptr(string(phase)),
	})

	total := len(chunks)
	results := make([]*ChunkResult, total)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	sem := make(chan struct{}, c.concurrency)

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk Chunk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := c.reviewChunk(ctx, chunk, i, total, language, phase)
			results[i] = res

			mu.Lock()
			completed++
			progress := Progress{
				Percent:   progressSetup + completed*progressChunkSpan/total,
				Completed: completed,
				Total:     total,
				ChunkID:   chunk.ID,
				RawText:   res.RawText,
				Err:       res.Err,
			}
			if res.Parsed != nil {
				progress.Issues = offsetIssues(res.Parsed.Issues, chunk)
			}
			if onProgress != nil {
				onProgress(progress)
			}
			mu.Unlock()
		}(i, chunk)
	}
	wg.Wait()

	out := make(map[string]*ChunkResult, total)
	for _, res := range results {
		out[res.Chunk.ID] = res
	}
	return out
}

func (c *Coordinator) reviewChunk(ctx context.Context, chunk Chunk, index, total int, language string, phase Phase) *ChunkResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChunkIndex: logger.Ptr(index)})

	systemPrompt := DetectionSystemPrompt(language)
	if phase == PhaseImplementation {
		systemPrompt = ImplementationSystemPrompt(language)
	}

	resp, err := c.client.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   ChunkUserPrompt(chunk, index, total, language),
	})
	if err != nil {
		slog.WarnContext(ctx, "chunk request failed", "chunk_id", chunk.ID, "error", err)
		return &ChunkResult{Chunk: chunk, Err: err}
	}

	parsed := Parse(resp.Content)
	if !parsed.Success {
		slog.DebugContext(ctx, "chunk parse failed, attempting recovery",
			"chunk_id", chunk.ID, "error", parsed.Err)
		parsed = c.repairer.Recover(resp.Content)
	}
	if !parsed.Success {
		slog.WarnContext(ctx, "chunk response unparseable", "chunk_id", chunk.ID, "error", parsed.Err)
		return &ChunkResult{Chunk: chunk, RawText: resp.Content, Err: parsed.Err}
	}

	return &ChunkResult{Chunk: chunk, Parsed: parsed.Result, RawText: resp.Content}
}
