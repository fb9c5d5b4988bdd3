package dispatch

import (
	"context"
	"errors"

	"github.com/wolfman30/chatrelay/internal/senders"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// Policy wraps a Transport with the rate-limit contract: a rate-limited
// response is waited out and the identical request resubmitted; any other
// failure is returned immediately as KindSendFailed.
//
// With maxRetries == 0 rate-limit retries are unbounded. A run against a
// channel that never stops returning 429 therefore never ends on its own.
type Policy struct {
	transport  Transport
	sleeper    Sleeper
	observer   Observer
	logger     *logging.Logger
	maxRetries int
}

// NewPolicy builds an unbounded retry policy around transport.
func NewPolicy(transport Transport, logger *logging.Logger) *Policy {
	if logger == nil {
		logger = logging.Default()
	}
	return &Policy{
		transport: transport,
		sleeper:   RealSleeper(),
		observer:  noopObserver{},
		logger:    logger,
	}
}

// WithMaxRetries caps consecutive rate-limit retries for one message. Zero
// keeps retries unbounded.
func (p *Policy) WithMaxRetries(n int) *Policy {
	if n >= 0 {
		p.maxRetries = n
	}
	return p
}

func (p *Policy) WithSleeper(s Sleeper) *Policy {
	if s != nil {
		p.sleeper = s
	}
	return p
}

func (p *Policy) WithObserver(o Observer) *Policy {
	if o != nil {
		p.observer = o
	}
	return p
}

// SendWithRetry posts text as sender and returns the remote message id.
// Errors are always *Error with Turn set to -1; the engine fills in the turn.
func (p *Policy) SendWithRetry(ctx context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error) {
	rateLimited := 0
	for {
		id, err := p.transport.Send(ctx, channelID, sender, text, replyTo)
		if err == nil {
			if id == "" {
				p.observer.ObserveSend(sender.DisplayName, sendStatusFailed)
				return "", p.fail(KindSendFailed, sender, "remote api returned an empty message id", nil)
			}
			p.observer.ObserveSend(sender.DisplayName, sendStatusSent)
			return id, nil
		}
		if ctx.Err() != nil {
			return "", p.fail(KindCanceled, sender, "send interrupted", ctx.Err())
		}

		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			p.observer.ObserveSend(sender.DisplayName, sendStatusFailed)
			return "", p.fail(KindSendFailed, sender, err.Error(), err)
		}

		rateLimited++
		p.observer.ObserveSend(sender.DisplayName, sendStatusRateLimited)
		if p.maxRetries > 0 && rateLimited > p.maxRetries {
			return "", p.fail(KindRateLimitExhausted, sender, "rate limited after max retries", err)
		}
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = DefaultRetryAfter
		}
		p.logger.Warn("rate limited, waiting before resubmitting",
			"sender", sender.DisplayName,
			"token", sender.MaskedSecret(),
			"retry_after_seconds", wait.Seconds(),
			"retry", rateLimited,
		)
		p.observer.ObserveRateLimitWait(wait.Seconds())
		if err := p.sleeper.Sleep(ctx, wait); err != nil {
			return "", p.fail(KindCanceled, sender, "rate limit wait interrupted", err)
		}
	}
}

func (p *Policy) fail(kind Kind, sender senders.Sender, detail string, cause error) *Error {
	e := newError(kind, -1, detail, cause)
	e.SenderID = sender.ID
	return e
}
