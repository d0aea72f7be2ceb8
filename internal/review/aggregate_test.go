package review_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/review"
)

func linesOfCode(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "line"
	}
	return strings.Join(lines, "\n")
}

var _ = Describe("Aggregate", func() {
	code := linesOfCode(200)
	chunks := []review.Chunk{
		{ID: "chunk-1", Code: linesOfCode(100), StartLine: 0, EndLine: 100},
		{ID: "chunk-2", Code: linesOfCode(100), StartLine: 100, EndLine: 200},
	}

	It("offsets chunk-relative lines into file coordinates", func() {
		results := map[string]*review.ChunkResult{
			"chunk-1": {Chunk: chunks[0], Parsed: &model.ParsedReview{
				Summary: "a", CleanCode: "a",
				Issues: []model.Issue{{Type: "naming", Description: "short name", LineNumbers: []int{5}}},
			}},
			"chunk-2": {Chunk: chunks[1], Parsed: &model.ParsedReview{
				Summary: "b", CleanCode: "b",
				Issues:      []model.Issue{{Type: "complexity", Description: "nesting", LineNumbers: []int{5}}},
				Suggestions: []model.Suggestion{{LineNumber: 7, OriginalCode: "x", SuggestedCode: "y"}},
			}},
		}

		agg, err := review.Aggregate(results, chunks, code)
		Expect(err).NotTo(HaveOccurred())

		Expect(agg.Issues).To(HaveLen(2))
		Expect(agg.Issues[0].LineNumbers).To(Equal([]int{5}))
		Expect(agg.Issues[1].LineNumbers).To(Equal([]int{105}))
		Expect(agg.Suggestions).To(HaveLen(1))
		Expect(agg.Suggestions[0].LineNumber).To(Equal(107))
		Expect(agg.CleanCode).To(Equal("a\nb"))
		Expect(agg.TotalLines).To(Equal(200))
	})

	It("drops line references outside the chunk instead of clamping them", func() {
		results := map[string]*review.ChunkResult{
			"chunk-1": {Chunk: chunks[0], Parsed: &model.ParsedReview{
				Summary: "a", CleanCode: "a",
				Issues: []model.Issue{{Type: "style", Description: "noise", LineNumbers: []int{150, 3}}},
			}},
			"chunk-2": {Chunk: chunks[1], Parsed: &model.ParsedReview{Summary: "b", CleanCode: "b"}},
		}

		agg, err := review.Aggregate(results, chunks, code)
		Expect(err).NotTo(HaveOccurred())
		Expect(agg.Issues).To(HaveLen(1))
		Expect(agg.Issues[0].LineNumbers).To(Equal([]int{3}))
	})

	It("deduplicates issues by type and description across chunks", func() {
		issue := model.Issue{Type: "duplication", Description: "copied block", LineNumbers: []int{1}}
		results := map[string]*review.ChunkResult{
			"chunk-1": {Chunk: chunks[0], Parsed: &model.ParsedReview{Summary: "a", CleanCode: "a", Issues: []model.Issue{issue}}},
			"chunk-2": {Chunk: chunks[1], Parsed: &model.ParsedReview{Summary: "b", CleanCode: "b", Issues: []model.Issue{issue}}},
		}

		agg, err := review.Aggregate(results, chunks, code)
		Expect(err).NotTo(HaveOccurred())
		Expect(agg.Issues).To(HaveLen(1))
		Expect(agg.Issues[0].LineNumbers).To(Equal([]int{1}))
		Expect(agg.Issues[0].ID).To(Equal("issue-1"))
	})

	It("counts failed chunks without aborting the merge", func() {
		results := map[string]*review.ChunkResult{
			"chunk-1": {Chunk: chunks[0], Err: errors.New("timeout")},
			"chunk-2": {Chunk: chunks[1], Parsed: &model.ParsedReview{Summary: "b", CleanCode: "b"}},
		}

		agg, err := review.Aggregate(results, chunks, code)
		Expect(err).NotTo(HaveOccurred())
		Expect(agg.FailedChunks).To(Equal(1))
		Expect(agg.Summary).To(ContainSubstring("1 chunks contributed no result"))
	})
})

var _ = Describe("ComputeQualityScore", func() {
	It("gives pristine code a perfect score", func() {
		score := review.ComputeQualityScore(nil, 50)
		Expect(score.Overall).To(Equal(100))
		Expect(score.Categories.Readability).To(Equal(100))
	})

	It("penalizes by severity and clamps at zero", func() {
		var issues []model.Issue
		for i := 0; i < 10; i++ {
			issues = append(issues, model.Issue{Type: "bug", Severity: model.SeverityCritical, Description: "d"})
		}
		score := review.ComputeQualityScore(issues, 100)
		Expect(score.Overall).To(Equal(0))
	})

	It("lowers only the categories an issue belongs to", func() {
		issues := []model.Issue{
			{Type: "naming", Severity: model.SeverityLow, Description: "d"},
			{Type: "naming", Severity: model.SeverityLow, Description: "d2"},
		}
		score := review.ComputeQualityScore(issues, 100)
		Expect(score.Categories.Readability).To(Equal(score.Overall - 10))
		Expect(score.Categories.Simplicity).To(Equal(score.Overall))
	})

	It("softens the penalty slightly for larger files", func() {
		issues := []model.Issue{{Type: "style", Severity: model.SeverityMedium, Description: "d"}}
		small := review.ComputeQualityScore(issues, 10)
		large := review.ComputeQualityScore(issues, 10000)
		Expect(large.Overall).To(BeNumerically(">", small.Overall))
	})
})
