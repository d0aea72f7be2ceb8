package review_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/internal/review"
)

var _ = Describe("Repairer", func() {
	Describe("Recover", func() {
		repairer := review.NewRepairer(nil)

		It("recovers summary and clean code from unmarked prose", func() {
			text := "The function leaks a file handle on the early return path.\n\n" +
				"Here is a fixed version:\n\n```go\ndefer f.Close()\n```"

			res := repairer.Recover(text)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result.Summary).To(Equal("The function leaks a file handle on the early return path."))
			Expect(res.Result.CleanCode).To(Equal("defer f.Close()"))
		})

		It("uses the last fenced block as clean code", func() {
			text := "Review notes.\n\n```go\nbroken()\n```\n\nFixed:\n\n```go\nrepaired()\n```"
			res := repairer.Recover(text)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result.CleanCode).To(Equal("repaired()"))
		})

		It("fails but keeps the partial result when no code exists", func() {
			res := repairer.Recover("Only prose, no code anywhere.")
			Expect(res.Success).To(BeFalse())
			Expect(res.Err).To(MatchError(ContainSubstring("clean code")))
			Expect(res.Result).NotTo(BeNil())
			Expect(res.Result.Summary).To(Equal("Only prose, no code anywhere."))
		})

		It("builds suggestions from bulleted blocks with two code spans", func() {
			text := "Summary of findings.\n\n" +
				"- line 4: replace `x == nil` with `x != nil` to fix the inverted check\n\n" +
				"```go\npackage main\n```"

			res := repairer.Recover(text)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result.Suggestions).To(HaveLen(1))
			sug := res.Result.Suggestions[0]
			Expect(sug.LineNumber).To(Equal(4))
			Expect(sug.OriginalCode).To(Equal("x == nil"))
			Expect(sug.SuggestedCode).To(Equal("x != nil"))
		})

		It("treats a single code span as no proposed change", func() {
			text := "Notes.\n\n```go\nok()\n```\n\n1. consider renaming `tmp`"
			res := repairer.Recover(text)
			Expect(res.Success).To(BeTrue())
			Expect(res.Result.Suggestions).To(HaveLen(1))
			sug := res.Result.Suggestions[0]
			Expect(sug.OriginalCode).To(Equal(sug.SuggestedCode))
			Expect(sug.LineNumber).To(Equal(1))
		})
	})

	Describe("Reformat", func() {
		It("fails without a generative client", func() {
			res := review.NewRepairer(nil).Reformat(context.Background(), "garbage", "go")
			Expect(res.Success).To(BeFalse())
		})

		It("succeeds when the reformatted answer parses", func() {
			client := &fakeClient{
				chatFn: func(_ context.Context, req llm.Request) (*llm.Response, error) {
					Expect(req.UserPrompt).To(ContainSubstring("garbage in"))
					return &llm.Response{Content: "SUMMARY: fixed\n\nCLEAN_CODE:\n```\nok\n```"}, nil
				},
			}

			res := review.NewRepairer(client).Reformat(context.Background(), "garbage in", "go")
			Expect(res.Success).To(BeTrue())
			Expect(res.Result.Summary).To(Equal("fixed"))
		})

		It("propagates service errors", func() {
			client := &fakeClient{
				chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
					return nil, errors.New("rate limited")
				},
			}

			res := review.NewRepairer(client).Reformat(context.Background(), "garbage", "go")
			Expect(res.Success).To(BeFalse())
			Expect(res.Err).To(MatchError(ContainSubstring("rate limited")))
		})

		It("reports exhaustion when the reformatted answer is still unusable", func() {
			client := &fakeClient{
				chatFn: func(_ context.Context, _ llm.Request) (*llm.Response, error) {
					return &llm.Response{Content: ""}, nil
				},
			}

			res := review.NewRepairer(client).Reformat(context.Background(), "garbage", "go")
			Expect(res.Success).To(BeFalse())
			Expect(res.Err).To(MatchError(ContainSubstring("repair exhausted")))
		})
	})
})
