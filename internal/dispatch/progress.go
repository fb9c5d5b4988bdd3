package dispatch

import "time"

// Status is the run state exposed to observers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Progress is a point-in-time view of a run, safe to hand to other goroutines.
type Progress struct {
	RunID      string     `json:"run_id,omitempty"`
	ChannelID  string     `json:"channel_id,omitempty"`
	Status     Status     `json:"status"`
	TotalTurns int        `json:"total_turns"`
	SentTurns  int        `json:"sent_turns"`
	NextTurn   int        `json:"next_turn"`
	Waiting    string     `json:"waiting,omitempty"`
	WaitUntil  *time.Time `json:"wait_until,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Progress returns the current run snapshot.
func (e *Engine) Progress() Progress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progress
}

func (e *Engine) updateProgress(fn func(p *Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.progress)
}
