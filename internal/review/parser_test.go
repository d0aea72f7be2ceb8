package review_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"reviewloop.app/reviewd/internal/model"
	"reviewloop.app/reviewd/internal/review"
)

const wellFormedResponse = `SUMMARY: The code works but naming and error handling need attention.

ISSUES:
TYPE: Naming
SEVERITY: high
DESCRIPTION: Variable x carries the request count but its name says nothing.
IMPACT: Readers must trace usages to understand it.
LINES: 3, 7
SOLUTION: Rename x to requestCount.

TYPE: error-handling
DESCRIPTION: The write error is discarded.
LINES: 9

SUGGESTIONS:
LINE: 3
ORIGINAL:
` + "```go\nx := x + 1\n```" + `
SUGGESTED:
` + "```go\nrequestCount++\n```" + `
EXPLANATION: Names the quantity being counted.

CLEAN_CODE:
` + "```go\nrequestCount++\n```" + `
`

var _ = Describe("Parse", func() {
	It("extracts all sections from a well-formed response", func() {
		res := review.Parse(wellFormedResponse)
		Expect(res.Success).To(BeTrue())
		Expect(res.Err).NotTo(HaveOccurred())

		Expect(res.Result.Summary).To(Equal("The code works but naming and error handling need attention."))
		Expect(res.Result.CleanCode).To(Equal("requestCount++"))

		Expect(res.Result.Issues).To(HaveLen(2))
		first := res.Result.Issues[0]
		Expect(first.ID).To(Equal("issue-1"))
		Expect(first.Type).To(Equal("naming"))
		Expect(first.Severity).To(Equal(model.SeverityHigh))
		Expect(first.LineNumbers).To(Equal([]int{3, 7}))
		Expect(first.ProposedSolution).To(Equal("Rename x to requestCount."))

		Expect(res.Result.Suggestions).To(HaveLen(1))
		sug := res.Result.Suggestions[0]
		Expect(sug.ID).To(Equal("suggestion-1"))
		Expect(sug.LineNumber).To(Equal(3))
		Expect(sug.OriginalCode).To(Equal("x := x + 1"))
		Expect(sug.SuggestedCode).To(Equal("requestCount++"))
		Expect(sug.Explanation).To(Equal("Names the quantity being counted."))
		Expect(sug.Accepted).To(BeNil())
	})

	It("fails without a summary", func() {
		res := review.Parse("CLEAN_CODE:\n```\nok\n```")
		Expect(res.Success).To(BeFalse())
		Expect(res.Err).To(MatchError(ContainSubstring("summary")))
	})

	It("fails without clean code", func() {
		res := review.Parse("SUMMARY: fine\n\nISSUES:\nTYPE: style\nDESCRIPTION: nit")
		Expect(res.Success).To(BeFalse())
		Expect(res.Err).To(MatchError(ContainSubstring("clean code")))
	})

	It("fails when the clean code section is empty", func() {
		res := review.Parse("SUMMARY: fine\n\nCLEAN_CODE:\n")
		Expect(res.Success).To(BeFalse())
	})

	It("accepts marker spelling and markdown variants", func() {
		text := "## Summary\nLooks good.\n\n**Clean Code:**\n```\nfmt.Println(1)\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Summary).To(Equal("Looks good."))
		Expect(res.Result.CleanCode).To(Equal("fmt.Println(1)"))
	})

	It("parses terse single-line responses without fences", func() {
		text := "Summary: ok\nSuggestions:\nLine: 3\nOriginal: x\nSuggested: y\nExplanation: why\nClean_code: z"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Summary).To(Equal("ok"))
		Expect(res.Result.CleanCode).To(Equal("z"))
		Expect(res.Result.Suggestions).To(HaveLen(1))
		Expect(res.Result.Suggestions[0].LineNumber).To(Equal(3))
		Expect(res.Result.Suggestions[0].OriginalCode).To(Equal("x"))
		Expect(res.Result.Suggestions[0].SuggestedCode).To(Equal("y"))
	})

	It("ignores marker-shaped lines inside code fences", func() {
		text := "SUMMARY: parses labels carefully\n\nCLEAN_CODE:\n```yaml\nsummary: not a marker\nline: 5\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.CleanCode).To(Equal("summary: not a marker\nline: 5"))
		Expect(res.Result.Suggestions).To(BeEmpty())
	})

	It("keeps the first occurrence of a duplicated section", func() {
		text := "SUMMARY: first\n\nSUMMARY: second\n\nCLEAN_CODE:\n```\nok\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Summary).To(Equal("first"))
	})

	It("defaults unknown severities to medium", func() {
		text := "SUMMARY: s\n\nISSUES:\nTYPE: style\nSEVERITY: catastrophic\nDESCRIPTION: d\n\nCLEAN_CODE:\n```\nok\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Issues).To(HaveLen(1))
		Expect(res.Result.Issues[0].Severity).To(Equal(model.SeverityMedium))
	})

	It("drops suggestion blocks missing original or suggested code", func() {
		text := "SUMMARY: s\n\nSUGGESTIONS:\nLINE: 4\nORIGINAL:\n```\na\n```\n\nCLEAN_CODE:\n```\nok\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Suggestions).To(BeEmpty())
	})

	It("deduplicates identical suggestions", func() {
		block := "LINE: 2\nORIGINAL:\n```\na\n```\nSUGGESTED:\n```\nb\n```\n"
		text := "SUMMARY: s\n\nSUGGESTIONS:\n" + block + block + "\nCLEAN_CODE:\n```\nok\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Suggestions).To(HaveLen(1))
	})

	It("recognizes line numbers spelled as LINE NUMBERS", func() {
		text := "SUMMARY: s\n\nISSUES:\nTYPE: complexity\nDESCRIPTION: deep nesting\nLINE NUMBERS: 12, 14\n\nCLEAN_CODE:\n```\nok\n```"
		res := review.Parse(text)
		Expect(res.Success).To(BeTrue())
		Expect(res.Result.Issues[0].LineNumbers).To(Equal([]int{12, 14}))
	})
})
