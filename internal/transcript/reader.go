package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for run ids the journal does not hold, either
// never recorded or already expired.
var ErrRunNotFound = errors.New("transcript: run not found")

var (
	_ Reader = (*PostgresStore)(nil)
	_ Reader = (*RedisStore)(nil)
)

// RunSummary is the journaled header of one run.
type RunSummary struct {
	RunID      string     `json:"run_id"`
	ChannelID  string     `json:"channel_id"`
	Status     string     `json:"status"`
	TotalTurns int        `json:"total_turns"`
	SentTurns  int        `json:"sent_turns"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Reader reads journaled runs back. PostgresStore and RedisStore implement it.
type Reader interface {
	Run(ctx context.Context, runID uuid.UUID) (*RunSummary, error)
	Messages(ctx context.Context, runID uuid.UUID) ([]Entry, error)
}
