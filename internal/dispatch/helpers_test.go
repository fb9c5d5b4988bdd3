package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chatrelay/internal/script"
	"github.com/wolfman30/chatrelay/internal/senders"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

type sendCall struct {
	ChannelID string
	SenderID  int
	Text      string
	ReplyTo   string
}

type response struct {
	id  string
	err error
}

// fakeTransport replays queued responses and assigns sequential ids once
// the queue is empty.
type fakeTransport struct {
	mu        sync.Mutex
	calls     []sendCall
	responses []response
	next      int
	inFlight  int32
	overlap   bool
}

func (f *fakeTransport) queue(rs ...response) *fakeTransport {
	f.responses = append(f.responses, rs...)
	return f
}

func (f *fakeTransport) Send(_ context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap = true
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{ChannelID: channelID, SenderID: sender.ID, Text: text, ReplyTo: replyTo})
	if len(f.responses) > 0 {
		r := f.responses[0]
		f.responses = f.responses[1:]
		return r.id, r.err
	}
	f.next++
	return fmt.Sprintf("m%d", f.next), nil
}

func (f *fakeTransport) Calls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

// recordingSleeper returns immediately and remembers every requested wait.
type recordingSleeper struct {
	mu     sync.Mutex
	waits  []time.Duration
	onWait func(n int) error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	hook := s.onWait
	s.mu.Unlock()
	if hook != nil {
		if err := hook(n); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// captureHandler keeps every log record, with attrs added through With, for
// assertions.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

func newCaptureLogger() (*logging.Logger, *captureHandler) {
	h := &captureHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return logging.NewWithHandler(h), h
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := r.Clone()
	rec.AddAttrs(h.attrs...)
	*h.records = append(*h.records, rec)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// attr returns the value of key on the first record with msg.
func (h *captureHandler) attr(msg, key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range *h.records {
		if r.Message != msg {
			continue
		}
		var (
			val   string
			found bool
		)
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val, found = a.Value.String(), true
				return false
			}
			return true
		})
		return val, found
	}
	return "", false
}

func (h *captureHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range *h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

func testRegistry(t *testing.T, list ...senders.Sender) *senders.Registry {
	t.Helper()
	if len(list) == 0 {
		list = []senders.Sender{
			{DisplayName: "A", Secret: "token-aaaaaaaaaaaa"},
			{DisplayName: "B", Secret: "token-bbbbbbbbbbbb"},
		}
	}
	reg, err := senders.NewRegistry(list)
	require.NoError(t, err)
	return reg
}

func fixedOptions(seconds float64) Options {
	return Options{
		ReplyDelay: Fixed(seconds),
		PauseDelay: Fixed(seconds),
	}
}

func textScript(t *testing.T, senderCount int, lines ...string) *script.Script {
	t.Helper()
	turns := make([]script.Turn, len(lines))
	for i, l := range lines {
		turns[i] = script.Turn{Index: i, Text: l, SenderID: i % senderCount}
		if i > 0 {
			turns[i].ReplyTo = script.ReplyToTurn(i - 1)
		}
	}
	return &script.Script{Turns: turns}
}

func newTestEngine(t *testing.T, reg *senders.Registry, tr Transport, opts Options) (*Engine, *recordingSleeper, *captureHandler) {
	t.Helper()
	logger, capture := newCaptureLogger()
	sleeper := &recordingSleeper{}
	engine, err := NewEngine(reg, tr, opts, logger)
	require.NoError(t, err)
	engine.WithSleeper(sleeper).WithRandSource(rand.NewPCG(1, 2))
	return engine, sleeper, capture
}

type fakeRecorder struct {
	started  []RunInfo
	messages []MessageRecord
	finished []*Outcome
	fail     error
}

func (r *fakeRecorder) StartRun(_ context.Context, run RunInfo) error {
	r.started = append(r.started, run)
	return r.fail
}

func (r *fakeRecorder) RecordMessage(_ context.Context, rec MessageRecord) error {
	r.messages = append(r.messages, rec)
	return r.fail
}

func (r *fakeRecorder) FinishRun(_ context.Context, outcome *Outcome) error {
	r.finished = append(r.finished, outcome)
	return r.fail
}

type fakeValidator struct {
	reject map[string]error
	// limited is how many rate-limited answers a sender gets before its verdict.
	limited map[string]int
	seen    []string
}

func (v *fakeValidator) ValidateToken(_ context.Context, s senders.Sender) error {
	v.seen = append(v.seen, s.DisplayName)
	if v.limited[s.DisplayName] > 0 {
		v.limited[s.DisplayName]--
		return &RateLimitedError{RetryAfter: 750 * time.Millisecond}
	}
	return v.reject[s.DisplayName]
}

type countingObserver struct {
	sends  map[string]int
	waits  []float64
	delays []string
	runs   []string
}

func newCountingObserver() *countingObserver {
	return &countingObserver{sends: map[string]int{}}
}

func (o *countingObserver) ObserveSend(_, status string)         { o.sends[status]++ }
func (o *countingObserver) ObserveRateLimitWait(seconds float64) { o.waits = append(o.waits, seconds) }
func (o *countingObserver) ObserveDelay(phase string, _ float64) { o.delays = append(o.delays, phase) }
func (o *countingObserver) ObserveRun(status string)             { o.runs = append(o.runs, status) }
