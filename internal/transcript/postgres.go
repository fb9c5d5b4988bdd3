package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

var postgresTracer = otel.Tracer("chatrelay.internal.transcript.postgres")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore journals runs into chat_runs and chat_messages.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("transcript: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	if db == nil {
		panic("transcript: querier required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) StartRun(ctx context.Context, run dispatch.RunInfo) error {
	ctx, span := postgresTracer.Start(ctx, "transcript.postgres.start_run")
	defer span.End()
	span.SetAttributes(attribute.String("chatrelay.run_id", run.ID.String()))

	query := `
		INSERT INTO chat_runs (id, channel_id, status, total_turns, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, run.ID, run.ChannelID, string(dispatch.StatusRunning), run.TotalTurns, run.StartedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: insert run: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordMessage(ctx context.Context, rec dispatch.MessageRecord) error {
	ctx, span := postgresTracer.Start(ctx, "transcript.postgres.record_message")
	defer span.End()

	query := `
		INSERT INTO chat_messages (run_id, turn_index, sender_id, sender_name, body, message_id, reply_to, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, turn_index) DO NOTHING
	`
	msg := rec.Message
	if _, err := s.db.Exec(ctx, query,
		rec.RunID, msg.TurnIndex, msg.SenderID, rec.SenderName, rec.Text, msg.RemoteID, nullable(msg.ReplyTo), msg.SentAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, outcome *dispatch.Outcome) error {
	ctx, span := postgresTracer.Start(ctx, "transcript.postgres.finish_run")
	defer span.End()

	query := `
		UPDATE chat_runs
		SET status = $2, sent_turns = $3, error = $4, finished_at = $5
		WHERE id = $1
	`
	ct, err := s.db.Exec(ctx, query,
		outcome.RunID, string(outcome.Status), len(outcome.Sent), nullable(errorText(outcome.Err)), outcome.FinishedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: update run: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("transcript: run %s not found", outcome.RunID)
	}
	return nil
}

// Run returns the header of a journaled run.
func (s *PostgresStore) Run(ctx context.Context, runID uuid.UUID) (*RunSummary, error) {
	ctx, span := postgresTracer.Start(ctx, "transcript.postgres.run")
	defer span.End()

	query := `
		SELECT channel_id, status, total_turns, sent_turns, COALESCE(error, ''), started_at, finished_at
		FROM chat_runs
		WHERE id = $1
	`
	run := RunSummary{RunID: runID.String()}
	var finishedAt pgtype.Timestamptz
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&run.ChannelID, &run.Status, &run.TotalTurns, &run.SentTurns, &run.Error, &run.StartedAt, &finishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: query run: %w", err)
	}
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

// Messages returns the journaled messages of a run in turn order.
func (s *PostgresStore) Messages(ctx context.Context, runID uuid.UUID) ([]Entry, error) {
	ctx, span := postgresTracer.Start(ctx, "transcript.postgres.messages")
	defer span.End()

	query := `
		SELECT m.turn_index, m.sender_id, m.sender_name, m.body, m.message_id, COALESCE(m.reply_to, ''), m.sent_at, r.channel_id
		FROM chat_messages m
		JOIN chat_runs r ON r.id = m.run_id
		WHERE m.run_id = $1
		ORDER BY m.turn_index
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{RunID: runID.String()}
		var sentAt time.Time
		if err := rows.Scan(&e.Turn, &e.SenderID, &e.Sender, &e.Text, &e.MessageID, &e.ReplyTo, &sentAt, &e.ChannelID); err != nil {
			return nil, fmt.Errorf("transcript: scan message: %w", err)
		}
		e.SentAt = sentAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iterate messages: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
