package dispatch

import (
	"time"

	"github.com/wolfman30/chatrelay/internal/script"
)

// SentMessage is created once per successfully sent turn and never changed.
type SentMessage struct {
	RemoteID  string
	SenderID  int
	TurnIndex int
	ReplyTo   string
	SentAt    time.Time
}

// ConversationState maps reply keys to the most recent message for that key.
// It lives for one run and is only touched by the engine's single control
// flow, so it carries no lock.
type ConversationState struct {
	bySender map[int]SentMessage
	byTurn   map[int]SentMessage
}

// NewConversationState returns an empty state.
func NewConversationState() *ConversationState {
	return &ConversationState{
		bySender: make(map[int]SentMessage),
		byTurn:   make(map[int]SentMessage),
	}
}

// Record stores msg as the latest message for its sender and its turn.
func (s *ConversationState) Record(msg SentMessage) {
	s.bySender[msg.SenderID] = msg
	s.byTurn[msg.TurnIndex] = msg
}

// Resolve returns the remote id a turn must reply to. A turn without a
// target, or whose target has no recorded message yet, resolves to
// ("", false) and is sent unthreaded.
func (s *ConversationState) Resolve(turn script.Turn) (string, bool) {
	target := turn.ReplyTo
	if target == nil {
		return "", false
	}
	var (
		msg SentMessage
		ok  bool
	)
	switch target.Kind {
	case script.TargetSender:
		msg, ok = s.bySender[target.SenderID]
	case script.TargetTurn:
		msg, ok = s.byTurn[target.Turn]
	}
	if !ok || msg.RemoteID == "" {
		return "", false
	}
	return msg.RemoteID, true
}
