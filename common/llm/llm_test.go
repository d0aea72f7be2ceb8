package llm_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"

	"reviewloop.app/reviewd/common/llm"
)

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	It("treats nil as not retryable", func() {
		Expect(llm.IsRetryable(ctx, nil)).To(BeFalse())
	})

	It("never retries cancelled or timed-out contexts", func() {
		Expect(llm.IsRetryable(ctx, context.Canceled)).To(BeFalse())
		Expect(llm.IsRetryable(ctx, context.DeadlineExceeded)).To(BeFalse())
		Expect(llm.IsRetryable(ctx, fmt.Errorf("calling service: %w", context.Canceled))).To(BeFalse())
	})

	DescribeTable("classifies API status codes",
		func(status int, want bool) {
			err := &openai.Error{StatusCode: status}
			Expect(llm.IsRetryable(ctx, err)).To(Equal(want))
		},
		Entry("rate limited", 429, true),
		Entry("server error", 500, true),
		Entry("bad gateway", 502, true),
		Entry("bad request", 400, false),
		Entry("unauthorized", 401, false),
		Entry("not found", 404, false),
	)

	It("retries plain network errors", func() {
		Expect(llm.IsRetryable(ctx, errors.New("connection reset by peer"))).To(BeTrue())
	})
})

var _ = Describe("Temp", func() {
	It("distinguishes an explicit zero from the model default", func() {
		Expect(llm.Temp(0)).To(HaveValue(BeEquivalentTo(0.0)))
		var req llm.Request
		Expect(req.Temperature).To(BeNil())
	})
})
