package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"reviewloop.app/reviewd/internal/model"
)

const (
	// keyPrefix namespaces review records in Redis.
	keyPrefix = "review:"

	// DefaultTTL is the review record expiry. Every write resets it and
	// every read refreshes it, so a record stays alive while observed.
	DefaultTTL = 300 * time.Second

	// casRetries bounds optimistic-lock retries on concurrent mutation.
	casRetries = 5
)

var (
	ErrReviewNotFound     = errors.New("review not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotProcessing      = errors.New("review is not processing")
	errConcurrentMutation = errors.New("review mutated concurrently, retries exhausted")
)

// allowedTransitions is the review lifecycle state machine. Repairing is
// reachable from any state that can hold unparsed text, including error,
// so a client can retry repair after exhaustion.
var allowedTransitions = map[model.ReviewStatus][]model.ReviewStatus{
	model.StatusQueued:     {model.StatusProcessing, model.StatusError},
	model.StatusProcessing: {model.StatusCompleted, model.StatusError, model.StatusRepairing},
	model.StatusCompleted:  {model.StatusRepairing},
	model.StatusError:      {model.StatusRepairing},
	model.StatusRepairing:  {model.StatusCompleted, model.StatusError},
}

// CanTransition reports whether the lifecycle permits moving a record
// from one status to another.
func CanTransition(from, to model.ReviewStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Key returns the namespaced Redis key for a review id.
func Key(id string) string {
	return keyPrefix + id
}

// ReviewStore is the keyed, time-expiring record of a review's lifecycle.
type ReviewStore interface {
	Create(ctx context.Context, id, language, filename string) (*model.ReviewRecord, error)
	// Get retrieves a record and refreshes its TTL as a side effect.
	Get(ctx context.Context, id string) (*model.ReviewRecord, error)
	// AppendRawText appends one raw fragment; the record must be processing.
	AppendRawText(ctx context.Context, id, fragment string) error
	SetStatus(ctx context.Context, id string, status model.ReviewStatus, errMsg string) error
	SetParsedResult(ctx context.Context, id string, parsed *model.ParsedReview) error
	// Delete removes the record, reporting ErrReviewNotFound when absent.
	Delete(ctx context.Context, id string) error
}

type redisReviewStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReviewStore(rdb *redis.Client, ttl time.Duration) ReviewStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisReviewStore{rdb: rdb, ttl: ttl}
}

func (s *redisReviewStore) Create(ctx context.Context, id, language, filename string) (*model.ReviewRecord, error) {
	now := time.Now().UTC()
	rec := &model.ReviewRecord{
		ID:          id,
		Status:      model.StatusQueued,
		Chunks:      []string{},
		Language:    language,
		Filename:    filename,
		Timestamp:   now,
		LastUpdated: now,
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling review record: %w", err)
	}

	if err := s.rdb.Set(ctx, Key(id), payload, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("storing review record: %w", err)
	}

	return rec, nil
}

func (s *redisReviewStore) Get(ctx context.Context, id string) (*model.ReviewRecord, error) {
	pipe := s.rdb.Pipeline()
	getCmd := pipe.Get(ctx, Key(id))
	pipe.Expire(ctx, Key(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading review record: %w", err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading review record: %w", err)
	}

	var rec model.ReviewRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling review record: %w", err)
	}
	return &rec, nil
}

func (s *redisReviewStore) AppendRawText(ctx context.Context, id, fragment string) error {
	return s.update(ctx, id, func(rec *model.ReviewRecord) error {
		if rec.Status != model.StatusProcessing {
			return fmt.Errorf("%w: status is %s", ErrNotProcessing, rec.Status)
		}
		rec.Chunks = append(rec.Chunks, fragment)
		return nil
	})
}

func (s *redisReviewStore) SetStatus(ctx context.Context, id string, status model.ReviewStatus, errMsg string) error {
	return s.update(ctx, id, func(rec *model.ReviewRecord) error {
		if !CanTransition(rec.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
		}
		rec.Status = status
		rec.Error = errMsg
		return nil
	})
}

func (s *redisReviewStore) SetParsedResult(ctx context.Context, id string, parsed *model.ParsedReview) error {
	return s.update(ctx, id, func(rec *model.ReviewRecord) error {
		rec.ParsedResponse = parsed
		return nil
	})
}

func (s *redisReviewStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, Key(id)).Result()
	if err != nil {
		return fmt.Errorf("deleting review record: %w", err)
	}
	if n == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// update performs a full read-modify-write of the record under optimistic
// locking: WATCH the key, apply the mutation, commit in a transaction.
// Concurrent chunk completions writing the same record retry instead of
// losing appends.
func (s *redisReviewStore) update(ctx context.Context, id string, mutate func(*model.ReviewRecord) error) error {
	key := Key(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrReviewNotFound
		}
		if err != nil {
			return fmt.Errorf("reading review record: %w", err)
		}

		var rec model.ReviewRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshaling review record: %w", err)
		}

		if err := mutate(&rec); err != nil {
			return err
		}
		rec.LastUpdated = time.Now().UTC()

		payload, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshaling review record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.rdb.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			slog.DebugContext(ctx, "review record CAS conflict, retrying",
				"review_id", id, "attempt", attempt+1)
			continue
		}
		return err
	}
	return errConcurrentMutation
}
