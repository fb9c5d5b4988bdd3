package discord

// Message is the subset of a Discord message object the relay reads.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// User is the subset of GET /users/@me the relay reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type messageReference struct {
	MessageID string `json:"message_id"`
}

type createMessageRequest struct {
	Content          string            `json:"content"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
}

func newCreateMessageRequest(text, replyTo string) createMessageRequest {
	req := createMessageRequest{Content: text}
	if replyTo != "" {
		req.MessageReference = &messageReference{MessageID: replyTo}
	}
	return req
}

type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
