package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"reviewloop.app/reviewd/common/id"
	"reviewloop.app/reviewd/common/llm"
	"reviewloop.app/reviewd/common/logger"
	"reviewloop.app/reviewd/common/otel"
	"reviewloop.app/reviewd/core/config"
	"reviewloop.app/reviewd/internal/queue"
	"reviewloop.app/reviewd/internal/store"
	"reviewloop.app/reviewd/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the review pipeline worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWork(cmd.Context())
	},
}

func runWork(ctx context.Context) error {
	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "reviewd worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Queue.Group,
		"consumer_name", cfg.Queue.Consumer)

	// Different node ID than the server so both can mint ids.
	if err := id.Init(2); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.Stream)

	llmClient, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Queue.Stream,
		Group:        cfg.Queue.Group,
		Consumer:     cfg.Queue.Consumer,
		DLQStream:    cfg.Queue.DLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}

	reviewStore := store.NewRedisReviewStore(redisClient, cfg.Review.RecordTTL)
	events := queue.NewEventPublisher(redisClient, cfg.Review.RecordTTL)
	processor := worker.NewProcessor(reviewStore, events, llmClient, cfg.Review)
	w := worker.New(consumer, processor)

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Queue.Stream,
		Group:     cfg.Queue.Group,
		Consumer:  cfg.Queue.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(runCtx)
	}()
	go reclaimer.Run(runCtx)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker run error", "error", err)
		}
	}

	cancel()
	w.Drain()
	reclaimer.Stop()

	if telemetry != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
	return nil
}
