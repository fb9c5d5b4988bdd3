package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

const documentVersion = "1.0"

// S3API is the subset of the S3 client used by S3Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver buffers a run's messages and uploads the whole transcript as one
// JSON document when the run finishes. If bucket is empty, it is a no-op.
type S3Archiver struct {
	bucket   string
	s3Client S3API
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*Document
}

func NewS3Archiver(s3Client S3API, bucket string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		pending:  make(map[uuid.UUID]*Document),
	}
}

// Enabled returns true if archival is configured.
func (a *S3Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

func (a *S3Archiver) StartRun(_ context.Context, run dispatch.RunInfo) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[run.ID] = &Document{
		Version:    documentVersion,
		RunID:      run.ID.String(),
		ChannelID:  run.ChannelID,
		TotalTurns: run.TotalTurns,
		StartedAt:  run.StartedAt,
	}
	return nil
}

func (a *S3Archiver) RecordMessage(_ context.Context, rec dispatch.MessageRecord) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.pending[rec.RunID]
	if !ok {
		return fmt.Errorf("transcript: run %s was not started", rec.RunID)
	}
	doc.Messages = append(doc.Messages, entryFromRecord(rec))
	return nil
}

func (a *S3Archiver) FinishRun(ctx context.Context, outcome *dispatch.Outcome) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	doc, ok := a.pending[outcome.RunID]
	delete(a.pending, outcome.RunID)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("transcript: run %s was not started", outcome.RunID)
	}

	doc.Status = string(outcome.Status)
	doc.SentTurns = len(outcome.Sent)
	doc.Error = errorText(outcome.Err)
	doc.FinishedAt = outcome.FinishedAt

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("transcript: marshal document: %w", err)
	}
	key := documentKey(doc.StartedAt, doc.ChannelID, doc.RunID)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("transcript: s3 put %s: %w", key, err)
	}

	a.logger.Info("archived transcript to S3",
		"run_id", doc.RunID,
		"s3_key", key,
		"message_count", len(doc.Messages),
		"status", doc.Status,
	)
	return nil
}

func documentKey(startedAt time.Time, channelID, runID string) string {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	t := startedAt.UTC()
	return fmt.Sprintf("transcripts/v1/%s/%d/%02d/%02d/%s.json", channelID, t.Year(), t.Month(), t.Day(), runID)
}
