package senders

import (
	"fmt"

	"github.com/wolfman30/chatrelay/internal/config"
)

// MinSenders is the smallest registry a conversation can run with.
const MinSenders = 2

// Sender is one credentialed identity. MinDelay/MaxDelay are per-sender
// delay bounds in seconds; zero means "use the global bounds".
type Sender struct {
	ID          int
	DisplayName string
	Secret      string
	MinDelay    float64
	MaxDelay    float64
}

// HasDelayBounds reports whether per-sender bounds were supplied.
func (s Sender) HasDelayBounds() bool {
	return s.MinDelay > 0 || s.MaxDelay > 0
}

// MaskedSecret returns the first ten characters of the secret followed by "...".
func (s Sender) MaskedSecret() string {
	if len(s.Secret) <= 10 {
		return s.Secret + "..."
	}
	return s.Secret[:10] + "..."
}

// String keeps secrets out of fmt output.
func (s Sender) String() string {
	return fmt.Sprintf("%s (%s)", s.DisplayName, s.MaskedSecret())
}

// Registry is the ordered, immutable set of senders. A sender's ID is its
// position in the registry.
type Registry struct {
	senders []Sender
}

// NewRegistry assigns IDs by position and validates the set.
func NewRegistry(list []Sender) (*Registry, error) {
	if len(list) < MinSenders {
		return nil, fmt.Errorf("%w: at least %d senders required, got %d", config.ErrInvalid, MinSenders, len(list))
	}
	out := make([]Sender, len(list))
	for i, s := range list {
		s.ID = i
		if s.DisplayName == "" {
			return nil, fmt.Errorf("%w: sender %d has no name", config.ErrInvalid, i)
		}
		if s.Secret == "" {
			return nil, fmt.Errorf("%w: sender %s has no token", config.ErrInvalid, s.DisplayName)
		}
		if s.HasDelayBounds() {
			if err := config.ValidateBounds("sender "+s.DisplayName+" delay", s.MinDelay, s.MaxDelay); err != nil {
				return nil, err
			}
		}
		out[i] = s
	}
	return &Registry{senders: out}, nil
}

// Len returns the number of senders.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.senders)
}

// Get returns the sender with the given ID.
func (r *Registry) Get(id int) (Sender, bool) {
	if r == nil || id < 0 || id >= len(r.senders) {
		return Sender{}, false
	}
	return r.senders[id], true
}

// All returns a copy of the registry contents.
func (r *Registry) All() []Sender {
	if r == nil {
		return nil
	}
	return append([]Sender(nil), r.senders...)
}
