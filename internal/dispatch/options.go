package dispatch

import (
	"fmt"
	"time"

	"github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/senders"
)

// Bounds is an inclusive delay range in seconds.
type Bounds struct {
	Min float64
	Max float64
}

// Fixed returns bounds that always yield exactly seconds.
func Fixed(seconds float64) Bounds {
	return Bounds{Min: seconds, Max: seconds}
}

func (b Bounds) validate(name string) error {
	return config.ValidateBounds(name, b.Min, b.Max)
}

// Options is the run configuration. DelayMode selects between the global
// reply/pause phases and per-sender bounds.
type Options struct {
	DelayMode           string
	ReplyDelay          Bounds
	PauseDelay          Bounds
	ExchangeLength      int
	PreValidateTokens   bool
	StartupDelayMinutes float64
	MaxRateLimitRetries int
}

// Validate wraps every failure in ErrConfigInvalid.
func (o Options) Validate() error {
	switch o.DelayMode {
	case "", config.DelayModeGlobal, config.DelayModePerSender:
	default:
		return fmt.Errorf("%w: unknown delay mode %q", ErrConfigInvalid, o.DelayMode)
	}
	// Per-sender runs may omit the global bounds; the engine checks that
	// every sender without its own bounds still has a fallback.
	perSender := o.mode() == config.DelayModePerSender
	if !(perSender && o.ReplyDelay == (Bounds{})) {
		if err := o.ReplyDelay.validate("reply delay"); err != nil {
			return err
		}
	}
	if !(perSender && o.PauseDelay == (Bounds{})) {
		if err := o.PauseDelay.validate("pause delay"); err != nil {
			return err
		}
	}
	if o.ExchangeLength < 0 {
		return fmt.Errorf("%w: exchange length must not be negative", ErrConfigInvalid)
	}
	if o.StartupDelayMinutes < 0 {
		return fmt.Errorf("%w: startup delay must not be negative", ErrConfigInvalid)
	}
	if o.MaxRateLimitRetries < 0 {
		return fmt.Errorf("%w: max rate limit retries must not be negative", ErrConfigInvalid)
	}
	return nil
}

func (o Options) startupDelay() time.Duration {
	return time.Duration(o.StartupDelayMinutes * float64(time.Minute))
}

func (o Options) mode() string {
	if o.DelayMode == "" {
		return config.DelayModeGlobal
	}
	return o.DelayMode
}

// validateFor checks options that depend on the sender registry.
func (o Options) validateFor(registry *senders.Registry) error {
	if o.mode() != config.DelayModePerSender {
		return nil
	}
	if o.ReplyDelay != (Bounds{}) && o.PauseDelay != (Bounds{}) {
		return nil
	}
	for _, s := range registry.All() {
		if !s.HasDelayBounds() {
			return fmt.Errorf("%w: sender %s has no delay bounds and no global fallback is configured", ErrConfigInvalid, s.DisplayName)
		}
	}
	return nil
}
