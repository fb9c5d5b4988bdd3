package transcript

import (
	"time"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

// Entry is the serialized form of one sent message, shared by the Redis
// journal, the S3 archive and the in-memory store.
type Entry struct {
	RunID     string    `json:"run_id"`
	ChannelID string    `json:"channel_id"`
	Turn      int       `json:"turn"`
	SenderID  int       `json:"sender_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	MessageID string    `json:"message_id"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Document is a whole run as archived to object storage.
type Document struct {
	Version    string    `json:"version"`
	RunID      string    `json:"run_id"`
	ChannelID  string    `json:"channel_id"`
	Status     string    `json:"status"`
	TotalTurns int       `json:"total_turns"`
	SentTurns  int       `json:"sent_turns"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Messages   []Entry   `json:"messages"`
}

func entryFromRecord(rec dispatch.MessageRecord) Entry {
	return Entry{
		RunID:     rec.RunID.String(),
		ChannelID: rec.ChannelID,
		Turn:      rec.Message.TurnIndex,
		SenderID:  rec.Message.SenderID,
		Sender:    rec.SenderName,
		Text:      rec.Text,
		MessageID: rec.Message.RemoteID,
		ReplyTo:   rec.Message.ReplyTo,
		SentAt:    rec.Message.SentAt,
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
