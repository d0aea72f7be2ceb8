package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/common/logger"
	"reviewloop.app/reviewd/internal/queue"
)

const drainTimeout = 30 * time.Second

// Worker consumes review tasks from the queue and runs them through the
// processor. Failed tasks are requeued with a bumped attempt counter and
// dead-lettered once they exhaust their attempts.
type Worker struct {
	consumer  *queue.RedisConsumer
	processor *Processor
	done      chan struct{}
}

func New(consumer *queue.RedisConsumer, processor *Processor) *Worker {
	return &Worker{
		consumer:  consumer,
		processor: processor,
		done:      make(chan struct{}),
	}
}

// Run blocks reading the task stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)

	slog.InfoContext(ctx, "worker started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.ErrorContext(ctx, "failed to read task stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// Drain waits for the run loop to exit after its context is cancelled.
func (w *Worker) Drain() {
	select {
	case <-w.done:
	case <-time.After(drainTimeout):
		slog.Warn("worker drain timed out")
	}
}

// ProcessMessage runs one message through the failure policy. The
// reclaimer uses this to give stale claimed messages the same treatment
// as freshly read ones.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) {
	w.handle(ctx, msg)
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ReviewID:  logger.Ptr(msg.Task.ReviewID),
		MessageID: logger.Ptr(msg.ID),
		Component: "reviewd.worker",
	})

	err := w.processSafe(ctx, msg.Task)
	if err == nil {
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			slog.ErrorContext(ctx, "failed to ack message", "error", ackErr)
		}
		return
	}

	slog.ErrorContext(ctx, "review task failed", "error", err, "attempt", msg.Task.Attempt)

	exhausted := msg.Task.Attempt >= w.consumer.MaxAttempts()
	if exhausted || !llm.IsRetryable(ctx, err) {
		w.processor.Fail(ctx, msg.Task.ReviewID, err.Error())
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to dead-letter message", "error", dlqErr)
		}
		return
	}

	if reqErr := w.consumer.Requeue(ctx, msg, err.Error()); reqErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", reqErr)
	}
}

// processSafe converts a panic inside the pipeline into an error so one
// poisoned task cannot take the worker down.
func (w *Worker) processSafe(ctx context.Context, task queue.ReviewTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic processing task", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic processing task: %v", r)
		}
	}()
	return w.processor.Process(ctx, task)
}
