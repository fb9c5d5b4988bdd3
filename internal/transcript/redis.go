package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

const redisKeyPrefix = "chatrelay:run:"

// RedisStore keeps a short-lived copy of each run: a hash with the run's
// status and a list with one JSON entry per sent message.
type RedisStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		redis:       redisClient,
		tracer:      otel.Tracer("chatrelay.internal.transcript.redis"),
		ttl:         ttl,
		maxMessages: 1000,
	}
}

func (s *RedisStore) StartRun(ctx context.Context, run dispatch.RunInfo) error {
	if s == nil || s.redis == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "transcript.redis.start_run")
	defer span.End()

	key := runKey(run.ID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"channel_id", run.ChannelID,
		"status", string(dispatch.StatusRunning),
		"total_turns", run.TotalTurns,
		"started_at", run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: redis start run: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordMessage(ctx context.Context, rec dispatch.MessageRecord) error {
	if s == nil || s.redis == nil {
		return nil
	}
	data, err := json.Marshal(entryFromRecord(rec))
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "transcript.redis.record_message")
	defer span.End()

	key := messagesKey(rec.RunID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: redis append message: %w", err)
	}
	return nil
}

func (s *RedisStore) FinishRun(ctx context.Context, outcome *dispatch.Outcome) error {
	if s == nil || s.redis == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "transcript.redis.finish_run")
	defer span.End()

	key := runKey(outcome.RunID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(outcome.Status),
		"sent_turns", len(outcome.Sent),
		"error", errorText(outcome.Err),
		"finished_at", outcome.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: redis finish run: %w", err)
	}
	return nil
}

// Run returns the run hash as a summary. An expired or unknown run is
// ErrRunNotFound.
func (s *RedisStore) Run(ctx context.Context, runID uuid.UUID) (*RunSummary, error) {
	if s == nil || s.redis == nil {
		return nil, ErrRunNotFound
	}
	ctx, span := s.tracer.Start(ctx, "transcript.redis.run")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: redis run: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrRunNotFound
	}
	run := &RunSummary{
		RunID:     runID.String(),
		ChannelID: fields["channel_id"],
		Status:    fields["status"],
		Error:     fields["error"],
	}
	run.TotalTurns, _ = strconv.Atoi(fields["total_turns"])
	run.SentTurns, _ = strconv.Atoi(fields["sent_turns"])
	if t, err := time.Parse(time.RFC3339Nano, fields["started_at"]); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["finished_at"]); err == nil {
		run.FinishedAt = &t
	}
	return run, nil
}

// Messages returns every retained entry of a run in send order.
func (s *RedisStore) Messages(ctx context.Context, runID uuid.UUID) ([]Entry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "transcript.redis.messages")
	defer span.End()

	raw, err := s.redis.LRange(ctx, messagesKey(runID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("transcript: redis messages: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func runKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

func messagesKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String() + ":messages"
}
