package dispatch

import (
	"errors"
	"fmt"

	"github.com/wolfman30/chatrelay/internal/config"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindInvalidSender      Kind = "invalid_sender"
	KindSendFailed         Kind = "send_failed"
	KindConfigInvalid      Kind = "config_invalid"
	KindRateLimitExhausted Kind = "rate_limit_exhausted"
	KindCanceled           Kind = "canceled"
)

var (
	ErrInvalidSender      = errors.New("dispatch: invalid sender")
	ErrSendFailed         = errors.New("dispatch: send failed")
	ErrConfigInvalid      = config.ErrInvalid
	ErrRateLimitExhausted = errors.New("dispatch: rate limit retries exhausted")
	ErrCanceled           = errors.New("dispatch: canceled")
)

// Error is returned for every failure that ends a run. Turn is -1 when the
// failure happened before the first turn.
type Error struct {
	Kind     Kind
	Turn     int
	SenderID int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("dispatch: %s", e.Kind)
	if e.Turn >= 0 {
		msg += fmt.Sprintf(" at turn %d", e.Turn)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause so that
// errors.Is(err, ErrSendFailed) and errors.As(err, &transportErr) both work.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindInvalidSender:
		return ErrInvalidSender
	case KindSendFailed:
		return ErrSendFailed
	case KindConfigInvalid:
		return ErrConfigInvalid
	case KindRateLimitExhausted:
		return ErrRateLimitExhausted
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// KindOf returns the Kind of a dispatch error, or "" for other errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func newError(kind Kind, turn int, detail string, cause error) *Error {
	return &Error{Kind: kind, Turn: turn, SenderID: -1, Detail: detail, Err: cause}
}
