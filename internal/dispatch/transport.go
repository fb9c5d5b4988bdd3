package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/chatrelay/internal/senders"
)

// DefaultRetryAfter is used when a rate-limited response carries no usable
// wait hint.
const DefaultRetryAfter = time.Second

// Transport posts one message as sender. replyTo is the remote id of the
// message to thread beneath, or "". Implementations must not retry; they
// report rate limiting with *RateLimitedError and everything else with
// *TransportError.
type Transport interface {
	Send(ctx context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error)

func (f TransportFunc) Send(ctx context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error) {
	return f(ctx, channelID, sender, text, replyTo)
}

// TokenValidator checks that a sender's credential is accepted by the remote API.
type TokenValidator interface {
	ValidateToken(ctx context.Context, sender senders.Sender) error
}

// RateLimitedError means the remote API asked the caller to wait RetryAfter
// before resubmitting the identical request.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %.2fs", e.RetryAfter.Seconds())
}

// TransportError is any non rate-limit failure: non-2xx status, network
// error or malformed response. StatusCode is 0 for network failures.
type TransportError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("send failed (status=%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("send failed: %s", e.Detail)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
