package review_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/internal/review"
)

func makeChunks(n int) []review.Chunk {
	chunks := make([]review.Chunk, n)
	for i := range chunks {
		chunks[i] = review.Chunk{
			ID:        fmt.Sprintf("chunk-%d", i+1),
			Code:      "line",
			StartLine: i,
			EndLine:   i + 1,
		}
	}
	return chunks
}

var _ = Describe("Coordinator", func() {
	okResponse := "SUMMARY: fine\n\nCLEAN_CODE:\n```\nok\n```"

	It("reviews every chunk and keys results by chunk id", func() {
		client := &fakeClient{
			chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
				return &llm.Response{Content: okResponse}, nil
			},
		}

		chunks := makeChunks(5)
		results := review.NewCoordinator(client, 2).Run(context.Background(), chunks, "go", review.PhaseDetection, nil)

		Expect(results).To(HaveLen(5))
		for _, chunk := range chunks {
			Expect(results[chunk.ID]).NotTo(BeNil())
			Expect(results[chunk.ID].Parsed).NotTo(BeNil())
			Expect(results[chunk.ID].Err).NotTo(HaveOccurred())
		}
	})

	It("never exceeds the configured concurrency", func() {
		var inFlight, peak int64
		client := &fakeClient{
			chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
				cur := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return &llm.Response{Content: okResponse}, nil
			},
		}

		review.NewCoordinator(client, 3).Run(context.Background(), makeChunks(12), "go", review.PhaseDetection, nil)
		Expect(atomic.LoadInt64(&peak)).To(BeNumerically("<=", 3))
	})

	It("isolates one chunk's failure from its siblings", func() {
		client := &fakeClient{
			chatFn: func(_ context.Context, req llm.Request) (*llm.Response, error) {
				if strings.Contains(req.UserPrompt, "chunk 2 of 3") {
					return nil, errors.New("boom")
				}
				return &llm.Response{Content: okResponse}, nil
			},
		}

		results := review.NewCoordinator(client, 4).Run(context.Background(), makeChunks(3), "go", review.PhaseDetection, nil)

		Expect(results["chunk-2"].Err).To(MatchError("boom"))
		Expect(results["chunk-2"].Parsed).To(BeNil())
		Expect(results["chunk-1"].Parsed).NotTo(BeNil())
		Expect(results["chunk-3"].Parsed).NotTo(BeNil())
	})

	It("reports monotonically non-decreasing progress ending at the chunk-phase ceiling", func() {
		client := &fakeClient{
			chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
				return &llm.Response{Content: okResponse}, nil
			},
		}

		var mu sync.Mutex
		var percents []int
		onProgress := func(p review.Progress) {
			mu.Lock()
			percents = append(percents, p.Percent)
			mu.Unlock()
		}

		review.NewCoordinator(client, 2).Run(context.Background(), makeChunks(4), "go", review.PhaseDetection, onProgress)

		Expect(percents).To(HaveLen(4))
		for i := 1; i < len(percents); i++ {
			Expect(percents[i]).To(BeNumerically(">=", percents[i-1]))
		}
		Expect(percents[len(percents)-1]).To(Equal(80))
	})

	It("keeps the raw text of an unparseable chunk", func() {
		client := &fakeClient{
			chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
				return &llm.Response{Content: "not a review at all"}, nil
			},
		}

		results := review.NewCoordinator(client, 1).Run(context.Background(), makeChunks(1), "go", review.PhaseDetection, nil)
		Expect(results["chunk-1"].Err).To(HaveOccurred())
		Expect(results["chunk-1"].RawText).To(Equal("not a review at all"))
	})
})
