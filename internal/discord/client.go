package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/internal/senders"
)

const (
	defaultBaseURL   = "https://discord.com/api/v9"
	defaultUserAgent = "chatrelay/0.1"
)

var discordTracer = otel.Tracer("chatrelay.internal.discord")

// Config controls how the Discord client behaves.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
	TypingEnabled bool
	TypingDelay   time.Duration
}

// Client posts channel messages with per-request sender tokens. It never
// retries; rate limits surface as *dispatch.RateLimitedError.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	typing      bool
	typingDelay time.Duration
}

var (
	_ dispatch.Transport      = (*Client)(nil)
	_ dispatch.TokenValidator = (*Client)(nil)
)

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	typingDelay := cfg.TypingDelay
	if typingDelay < 0 {
		typingDelay = 0
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      logger,
		userAgent:   userAgent,
		typing:      cfg.TypingEnabled,
		typingDelay: typingDelay,
	}
}

// Send shows the typing indicator (when enabled), waits the typing delay and
// posts text to channelID as sender, threaded beneath replyTo when set.
func (c *Client) Send(ctx context.Context, channelID string, sender senders.Sender, text, replyTo string) (string, error) {
	ctx, span := discordTracer.Start(ctx, "discord.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("discord.channel_id", channelID),
		attribute.String("discord.sender", sender.DisplayName),
		attribute.Bool("discord.reply", replyTo != ""),
	)

	if c.typing {
		if err := c.TriggerTyping(ctx, channelID, sender); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn("typing indicator failed",
				"sender", sender.DisplayName,
				"channel_id", channelID,
				"error", err,
			)
		}
	}
	if err := c.waitTyping(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(newCreateMessageRequest(text, replyTo))
	if err != nil {
		return "", fmt.Errorf("discord: marshal message body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/channels/"+channelID+"/messages", sender.Secret, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		err = &dispatch.TransportError{StatusCode: http.StatusOK, Detail: "decode message response", Err: err}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if msg.ID == "" {
		err := &dispatch.TransportError{StatusCode: http.StatusOK, Detail: "response carried no message id"}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("discord.message_id", msg.ID))
	return msg.ID, nil
}

// TriggerTyping shows "sender is typing" in the channel for a few seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID string, sender senders.Sender) error {
	_, err := c.invoke(ctx, http.MethodPost, "/channels/"+channelID+"/typing", sender.Secret, nil)
	return err
}

// ValidateToken fetches the account behind the sender's token. A 429 comes
// back as *dispatch.RateLimitedError so the caller can retry; any other
// non-2xx answer means the token is unusable.
func (c *Client) ValidateToken(ctx context.Context, sender senders.Sender) error {
	ctx, span := discordTracer.Start(ctx, "discord.validate_token")
	defer span.End()

	data, err := c.invoke(ctx, http.MethodGet, "/users/@me", sender.Secret, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("discord: decode user: %w", err)
	}
	if user.ID == "" {
		return errors.New("discord: token resolved to no account")
	}
	c.logger.Debug("token resolved", "sender", sender.DisplayName, "account", user.Username)
	return nil
}

func (c *Client) waitTyping(ctx context.Context) error {
	if c.typingDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.typingDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) invoke(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &dispatch.TransportError{Detail: "http error", Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dispatch.TransportError{StatusCode: resp.StatusCode, Detail: "read response", Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &dispatch.RateLimitedError{RetryAfter: retryAfter(resp.Header, data)}
	}
	return nil, decodeAPIError(resp.StatusCode, data)
}

// retryAfter prefers the JSON body's retry_after, then the Retry-After
// header. Zero lets the retry policy apply its default.
func retryAfter(h http.Header, body []byte) time.Duration {
	var rl rateLimitBody
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return secondsToDuration(rl.RetryAfter)
	}
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return secondsToDuration(secs)
		}
	}
	return 0
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type apiError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		detail = parsed.Message
		if parsed.Code != 0 {
			detail = fmt.Sprintf("%s (code=%d)", parsed.Message, parsed.Code)
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &dispatch.TransportError{StatusCode: status, Detail: detail}
}
