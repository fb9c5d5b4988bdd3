package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/chatrelay/internal/script"
)

func TestConversationStateResolve(t *testing.T) {
	s := NewConversationState()

	_, ok := s.Resolve(script.Turn{Index: 0})
	assert.False(t, ok, "no target")

	_, ok = s.Resolve(script.Turn{Index: 0, ReplyTo: script.ReplyToSender(1)})
	assert.False(t, ok, "nothing recorded yet")

	s.Record(SentMessage{RemoteID: "x1", SenderID: 0, TurnIndex: 0})
	s.Record(SentMessage{RemoteID: "y1", SenderID: 1, TurnIndex: 1})
	s.Record(SentMessage{RemoteID: "x2", SenderID: 0, TurnIndex: 2})

	id, ok := s.Resolve(script.Turn{Index: 3, ReplyTo: script.ReplyToSender(0)})
	assert.True(t, ok)
	assert.Equal(t, "x2", id, "sender key resolves to the latest message")

	id, ok = s.Resolve(script.Turn{Index: 3, ReplyTo: script.ReplyToTurn(0)})
	assert.True(t, ok)
	assert.Equal(t, "x1", id)

	_, ok = s.Resolve(script.Turn{Index: 3, ReplyTo: script.ReplyToTurn(9)})
	assert.False(t, ok)

	s.Record(SentMessage{RemoteID: "x3", SenderID: 0, TurnIndex: 0})
	id, _ = s.Resolve(script.Turn{Index: 4, ReplyTo: script.ReplyToTurn(0)})
	assert.Equal(t, "x3", id, "re-recording a turn replaces its entry")
}
