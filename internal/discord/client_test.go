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
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/internal/script"
	"github.com/wolfman30/chatrelay/internal/senders"
)

var testSender = senders.Sender{ID: 0, DisplayName: "alice", Secret: "secret-token-a"}

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = server.URL
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = server.Client()
	}
	return New(cfg)
}

func TestSendPostsMessageWithReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/42/messages" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "secret-token-a" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var body createMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Content != "hello" {
			t.Fatalf("unexpected content %q", body.Content)
		}
		if body.MessageReference == nil || body.MessageReference.MessageID != "111" {
			t.Fatalf("expected message reference 111, got %#v", body.MessageReference)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"222","channel_id":"42","content":"hello"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	id, err := client.Send(context.Background(), "42", testSender, "hello", "111")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "222" {
		t.Fatalf("expected id 222, got %s", id)
	}
}

func TestSendOmitsReferenceWhenUnthreaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), "message_reference") {
			t.Fatalf("unexpected message_reference in %s", raw)
		}
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if _, err := client.Send(context.Background(), "42", testSender, "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	cases := []struct {
		name   string
		header string
		body   string
		want   time.Duration
	}{
		{name: "body", body: `{"message":"You are being rate limited.","retry_after":2.5,"global":false}`, want: 2500 * time.Millisecond},
		{name: "header fallback", header: "3", body: `{"message":"slow down"}`, want: 3 * time.Second},
		{name: "no hint", body: `not json`, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.header != "" {
					w.Header().Set("Retry-After", tc.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(t, server, Config{})
			_, err := client.Send(context.Background(), "42", testSender, "hi", "")
			var rl *dispatch.RateLimitedError
			if !errors.As(err, &rl) {
				t.Fatalf("expected rate limited error, got %v", err)
			}
			if rl.RetryAfter != tc.want {
				t.Fatalf("expected retry after %s, got %s", tc.want, rl.RetryAfter)
			}
		})
	}
}

func TestSendFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Missing Access","code":50001}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.Send(context.Background(), "42", testSender, "hi", "")
	var te *dispatch.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if te.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", te.StatusCode)
	}
	if te.Detail != "Missing Access (code=50001)" {
		t.Fatalf("unexpected detail %q", te.Detail)
	}
}

func TestSendMissingMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.Send(context.Background(), "42", testSender, "hi", "")
	var te *dispatch.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSendTypingIsBestEffort(t *testing.T) {
	var typingCalls, messageCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels/42/typing":
			atomic.AddInt32(&typingCalls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		case "/channels/42/messages":
			if atomic.LoadInt32(&typingCalls) != 1 {
				t.Fatalf("typing must precede the message")
			}
			atomic.AddInt32(&messageCalls, 1)
			w.Write([]byte(`{"id":"9"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	client := newTestClient(t, server, Config{TypingEnabled: true, TypingDelay: time.Millisecond, Logger: logger})
	id, err := client.Send(context.Background(), "42", testSender, "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "9" || messageCalls != 1 {
		t.Fatalf("expected one message with id 9, got %s (%d calls)", id, messageCalls)
	}
	if !strings.Contains(logs.String(), "typing indicator failed") {
		t.Fatalf("expected typing warning, got %s", logs.String())
	}
}

func TestSendTypingDelayHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected, got %s", r.URL.Path)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{TypingDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Send(ctx, "42", testSender, "hi", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") == "busy" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.5}`))
			return
		}
		if r.Header.Get("Authorization") == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
			return
		}
		w.Write([]byte(`{"id":"7","username":"alice"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if err := client.ValidateToken(context.Background(), testSender); err != nil {
		t.Fatalf("validate: %v", err)
	}
	err := client.ValidateToken(context.Background(), senders.Sender{DisplayName: "bob", Secret: "bad"})
	var te *dispatch.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 transport error, got %v", err)
	}
	err = client.ValidateToken(context.Background(), senders.Sender{DisplayName: "carol", Secret: "busy"})
	var rl *dispatch.RateLimitedError
	if !errors.As(err, &rl) || rl.RetryAfter != 500*time.Millisecond {
		t.Fatalf("expected rate limited error with 500ms hint, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	client := New(Config{BaseURL: "https://example.test/api/", TypingDelay: -time.Second})
	if client.baseURL != "https://example.test/api" {
		t.Fatalf("expected trimmed base url, got %s", client.baseURL)
	}
	if client.httpClient.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout")
	}
	if client.userAgent != defaultUserAgent {
		t.Fatalf("expected default user agent")
	}
	if client.typingDelay != 0 {
		t.Fatalf("negative typing delay must clamp to zero")
	}
	if New(Config{}).baseURL != defaultBaseURL {
		t.Fatalf("expected default base url")
	}
}

func TestClientDrivesEngine(t *testing.T) {
	var next int32
	var refs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body createMessageRequest
		json.NewDecoder(r.Body).Decode(&body)
		ref := ""
		if body.MessageReference != nil {
			ref = body.MessageReference.MessageID
		}
		refs = append(refs, ref)
		n := atomic.AddInt32(&next, 1)
		json.NewEncoder(w).Encode(Message{ID: fmt.Sprintf("msg%d", n)})
	}))
	defer server.Close()

	reg, err := senders.NewRegistry([]senders.Sender{
		{DisplayName: "A", Secret: "aaaaaaaaaaaa"},
		{DisplayName: "B", Secret: "bbbbbbbbbbbb"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	engine, err := dispatch.NewEngine(reg, newTestClient(t, server, Config{}), dispatch.Options{
		ReplyDelay: dispatch.Fixed(1),
		PauseDelay: dispatch.Fixed(1),
	}, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.WithSleeper(dispatch.SleeperFunc(func(context.Context, time.Duration) error { return nil }))

	sc, err := script.ParseText(strings.NewReader("one\ntwo\nthree\n"), script.TextOptions{SenderCount: reg.Len()})
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	if _, err := engine.Run(context.Background(), "42", sc); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"", "msg1", "msg2"}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("turn %d: expected reference %q, got %q", i, want[i], refs[i])
		}
	}
}
