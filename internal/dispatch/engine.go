package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/chatrelay/internal/script"
	"github.com/wolfman30/chatrelay/internal/senders"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

var dispatchTracer = otel.Tracer("chatrelay.internal.dispatch")

// RunInfo identifies a run for recorders.
type RunInfo struct {
	ID         uuid.UUID
	ChannelID  string
	TotalTurns int
	StartedAt  time.Time
}

// MessageRecord is what a recorder receives after each successful send.
type MessageRecord struct {
	RunID      uuid.UUID
	ChannelID  string
	SenderName string
	Text       string
	Message    SentMessage
}

// Recorder journals a run. Recorder failures are logged and never stop a run.
type Recorder interface {
	StartRun(ctx context.Context, run RunInfo) error
	RecordMessage(ctx context.Context, rec MessageRecord) error
	FinishRun(ctx context.Context, outcome *Outcome) error
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID      uuid.UUID
	ChannelID  string
	Status     Status
	TotalTurns int
	Sent       []SentMessage
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time

	journaled bool
}

// Engine walks a script one turn at a time: resolve sender, resolve reply
// target, send through the retry policy, record, wait, repeat. The first
// unrecoverable error aborts the run; nothing is rolled back.
type Engine struct {
	registry  *senders.Registry
	opts      Options
	policy    *Policy
	planner   *DelayPlanner
	sleeper   Sleeper
	validator TokenValidator
	recorder  Recorder
	observer  Observer
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.RWMutex
	progress Progress
}

// NewEngine validates opts against the registry and wires the retry policy
// and delay planner around transport.
func NewEngine(registry *senders.Registry, transport Transport, opts Options, logger *logging.Logger) (*Engine, error) {
	if registry == nil || registry.Len() < senders.MinSenders {
		return nil, fmt.Errorf("%w: at least %d senders required", ErrConfigInvalid, senders.MinSenders)
	}
	if transport == nil {
		return nil, errors.New("dispatch: transport is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := opts.validateFor(registry); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	sleeper := RealSleeper()
	return &Engine{
		registry: registry,
		opts:     opts,
		policy: NewPolicy(transport, logger).
			WithMaxRetries(opts.MaxRateLimitRetries).
			WithSleeper(sleeper),
		planner:  NewDelayPlanner(opts, registry, nil),
		sleeper:  sleeper,
		observer: noopObserver{},
		logger:   logger,
		now:      time.Now,
		progress: Progress{Status: StatusPending},
	}, nil
}

// WithSleeper replaces every suspension point (typing excluded) with s.
func (e *Engine) WithSleeper(s Sleeper) *Engine {
	if s != nil {
		e.sleeper = s
		e.policy.WithSleeper(s)
	}
	return e
}

// WithRandSource makes delay draws reproducible.
func (e *Engine) WithRandSource(src rand.Source) *Engine {
	if src != nil {
		e.planner = NewDelayPlanner(e.opts, e.registry, src)
	}
	return e
}

func (e *Engine) WithValidator(v TokenValidator) *Engine {
	e.validator = v
	return e
}

func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observer = o
		e.policy.WithObserver(o)
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Run dispatches every turn of sc to channelID. The returned error is the
// outcome's *Error when the run aborted, nil when it completed.
func (e *Engine) Run(ctx context.Context, channelID string, sc *script.Script) (*Outcome, error) {
	outcome := &Outcome{
		RunID:      uuid.New(),
		ChannelID:  channelID,
		Status:     StatusStarting,
		TotalTurns: sc.Len(),
		StartedAt:  e.now().UTC(),
	}
	startedAt := outcome.StartedAt
	e.updateProgress(func(p *Progress) {
		*p = Progress{
			RunID:      outcome.RunID.String(),
			ChannelID:  channelID,
			Status:     StatusStarting,
			TotalTurns: outcome.TotalTurns,
			StartedAt:  &startedAt,
		}
	})

	ctx, span := dispatchTracer.Start(ctx, "dispatch.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("chatrelay.run_id", outcome.RunID.String()),
		attribute.String("chatrelay.channel_id", channelID),
		attribute.Int("chatrelay.turns", outcome.TotalTurns),
	)

	logger := e.logger.With("run_id", outcome.RunID.String())

	if channelID == "" {
		return e.finish(ctx, logger, outcome, newError(KindConfigInvalid, -1, "channel id is required", nil))
	}
	if sc.Len() == 0 {
		return e.finish(ctx, logger, outcome, newError(KindConfigInvalid, -1, "script has no turns", nil))
	}
	if err := e.preValidate(ctx, logger); err != nil {
		return e.finish(ctx, logger, outcome, err)
	}
	if err := e.startupWait(ctx, logger); err != nil {
		return e.finish(ctx, logger, outcome, err)
	}

	e.startRecorder(ctx, logger, outcome)
	e.updateProgress(func(p *Progress) { p.Status = StatusRunning })
	outcome.Status = StatusRunning
	logger.Info("conversation started", "channel_id", channelID, "turns", sc.Len(), "senders", e.registry.Len())

	state := NewConversationState()
	for i, turn := range sc.Turns {
		msg, err := e.dispatchTurn(ctx, logger, outcome, state, turn)
		if err != nil {
			return e.finish(ctx, logger, outcome, err)
		}
		outcome.Sent = append(outcome.Sent, msg)
		e.updateProgress(func(p *Progress) {
			p.SentTurns = len(outcome.Sent)
			p.NextTurn = i + 1
		})

		if i == len(sc.Turns)-1 {
			break
		}
		if err := e.interTurnWait(ctx, logger, turn, sc.Turns[i+1]); err != nil {
			return e.finish(ctx, logger, outcome, err)
		}
	}
	return e.finish(ctx, logger, outcome, nil)
}

func (e *Engine) dispatchTurn(ctx context.Context, logger *logging.Logger, outcome *Outcome, state *ConversationState, turn script.Turn) (SentMessage, error) {
	ctx, span := dispatchTracer.Start(ctx, "dispatch.turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chatrelay.turn", turn.Index),
		attribute.Int("chatrelay.sender_id", turn.SenderID),
	)

	sender, ok := e.registry.Get(turn.SenderID)
	if !ok {
		err := newError(KindInvalidSender, turn.Index,
			fmt.Sprintf("sender %d is outside the registry of %d senders", turn.SenderID, e.registry.Len()), nil)
		err.SenderID = turn.SenderID
		span.SetStatus(codes.Error, err.Error())
		return SentMessage{}, err
	}

	replyTo, _ := state.Resolve(turn)
	span.SetAttributes(attribute.Bool("chatrelay.threaded", replyTo != ""))

	id, err := e.policy.SendWithRetry(ctx, outcome.ChannelID, sender, turn.Text, replyTo)
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			de.Turn = turn.Index
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SentMessage{}, err
	}

	msg := SentMessage{
		RemoteID:  id,
		SenderID:  sender.ID,
		TurnIndex: turn.Index,
		ReplyTo:   replyTo,
		SentAt:    e.now().UTC(),
	}
	state.Record(msg)

	logger.Info("message sent",
		"turn", turn.Index,
		"sender", sender.DisplayName,
		"token", sender.MaskedSecret(),
		"message_id", id,
		"reply_to", replyTo,
		"text", turn.Text,
	)
	if e.recorder != nil {
		rec := MessageRecord{
			RunID:      outcome.RunID,
			ChannelID:  outcome.ChannelID,
			SenderName: sender.DisplayName,
			Text:       turn.Text,
			Message:    msg,
		}
		if err := e.recorder.RecordMessage(ctx, rec); err != nil {
			logger.Warn("transcript record failed", "turn", turn.Index, "error", err)
		}
	}
	return msg, nil
}

func (e *Engine) interTurnWait(ctx context.Context, logger *logging.Logger, current, next script.Turn) error {
	d, phase, bounds := e.planner.Next(current, next)
	until := e.now().Add(d)
	e.updateProgress(func(p *Progress) {
		p.Waiting = string(phase)
		p.WaitUntil = &until
	})
	logger.Info("waiting before next turn",
		"phase", string(phase),
		"seconds", fmt.Sprintf("%.2f", d.Seconds()),
		"min", bounds.Min,
		"max", bounds.Max,
		"next_turn", next.Index,
	)
	e.observer.ObserveDelay(string(phase), d.Seconds())
	err := e.sleeper.Sleep(ctx, d)
	e.updateProgress(func(p *Progress) {
		p.Waiting = ""
		p.WaitUntil = nil
	})
	if err != nil {
		return newError(KindCanceled, next.Index, "inter-turn wait interrupted", err)
	}
	return nil
}

func (e *Engine) preValidate(ctx context.Context, logger *logging.Logger) error {
	if !e.opts.PreValidateTokens || e.validator == nil {
		return nil
	}
	for _, s := range e.registry.All() {
		if err := e.validateSender(ctx, logger, s); err != nil {
			return err
		}
		logger.Info("token valid", "sender", s.DisplayName, "token", s.MaskedSecret())
	}
	return nil
}

// validateSender checks one token. A rate-limited check is waited out and
// repeated under the same cap as sends; it never counts as a rejection.
func (e *Engine) validateSender(ctx context.Context, logger *logging.Logger, s senders.Sender) error {
	rateLimited := 0
	for {
		err := e.validator.ValidateToken(ctx, s)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return newError(KindCanceled, -1, "token validation interrupted", ctx.Err())
		}
		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			de := newError(KindConfigInvalid, -1, fmt.Sprintf("token for sender %s was rejected", s.DisplayName), err)
			de.SenderID = s.ID
			return de
		}
		rateLimited++
		if e.opts.MaxRateLimitRetries > 0 && rateLimited > e.opts.MaxRateLimitRetries {
			de := newError(KindRateLimitExhausted, -1, fmt.Sprintf("token check for sender %s still rate limited after max retries", s.DisplayName), err)
			de.SenderID = s.ID
			return de
		}
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = DefaultRetryAfter
		}
		logger.Warn("token check rate limited, waiting before retrying",
			"sender", s.DisplayName,
			"token", s.MaskedSecret(),
			"retry_after_seconds", wait.Seconds(),
			"retry", rateLimited,
		)
		e.observer.ObserveRateLimitWait(wait.Seconds())
		if err := e.sleeper.Sleep(ctx, wait); err != nil {
			return newError(KindCanceled, -1, "token validation interrupted", err)
		}
	}
}

// startupWait sleeps the configured startup delay in one-minute steps,
// logging the remaining time before each step.
func (e *Engine) startupWait(ctx context.Context, logger *logging.Logger) error {
	remaining := e.opts.startupDelay()
	if remaining <= 0 {
		return nil
	}
	until := e.now().Add(remaining)
	e.updateProgress(func(p *Progress) {
		p.Waiting = "startup"
		p.WaitUntil = &until
	})
	for remaining > 0 {
		step := min(remaining, time.Minute)
		logger.Info("conversation starts soon", "remaining", remaining.Round(time.Second).String())
		if err := e.sleeper.Sleep(ctx, step); err != nil {
			return newError(KindCanceled, -1, "startup delay interrupted", err)
		}
		remaining -= step
	}
	e.updateProgress(func(p *Progress) {
		p.Waiting = ""
		p.WaitUntil = nil
	})
	return nil
}

func (e *Engine) startRecorder(ctx context.Context, logger *logging.Logger, outcome *Outcome) {
	if e.recorder == nil {
		return
	}
	run := RunInfo{
		ID:         outcome.RunID,
		ChannelID:  outcome.ChannelID,
		TotalTurns: outcome.TotalTurns,
		StartedAt:  outcome.StartedAt,
	}
	if err := e.recorder.StartRun(ctx, run); err != nil {
		logger.Warn("transcript start failed", "error", err)
	}
	outcome.journaled = true
}

func (e *Engine) finish(ctx context.Context, logger *logging.Logger, outcome *Outcome, err error) (*Outcome, error) {
	outcome.FinishedAt = e.now().UTC()
	finishedAt := outcome.FinishedAt
	if err == nil {
		outcome.Status = StatusCompleted
		logger.Info("conversation completed", "sent", len(outcome.Sent), "turns", outcome.TotalTurns)
	} else {
		outcome.Status = StatusAborted
		outcome.Err = err
		logger.Error("conversation aborted",
			"kind", string(KindOf(err)),
			"sent", len(outcome.Sent),
			"turns", outcome.TotalTurns,
			"error", err,
		)
	}
	e.observer.ObserveRun(string(outcome.Status))
	e.updateProgress(func(p *Progress) {
		p.Status = outcome.Status
		p.SentTurns = len(outcome.Sent)
		p.FinishedAt = &finishedAt
		p.Waiting = ""
		p.WaitUntil = nil
		if err != nil {
			p.LastError = err.Error()
		}
	})
	if e.recorder != nil && outcome.journaled {
		// The run context may already be canceled; the journal still gets the outcome.
		if rerr := e.recorder.FinishRun(context.WithoutCancel(ctx), outcome); rerr != nil {
			logger.Warn("transcript finish failed", "error", rerr)
		}
	}
	return outcome, err
}
