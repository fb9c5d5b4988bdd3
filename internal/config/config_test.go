package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "LOG_FILE", "CHANNEL_ID", "DELAY_MODE", "DIALOG_REPLY_MODE", "TYPING_ENABLED", "MAX_RATE_LIMIT_RETRIES", "SENDERS_FILE", "DIALOG_FILE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %s", cfg.LogLevel)
	}
	if cfg.LogFile != "activity.log" {
		t.Fatalf("expected default log file, got %s", cfg.LogFile)
	}
	if cfg.SendersFile != "token.txt" || cfg.DialogFile != "dialog.txt" {
		t.Fatalf("unexpected default input files %s %s", cfg.SendersFile, cfg.DialogFile)
	}
	if cfg.DelayMode != DelayModeGlobal {
		t.Fatalf("expected global delay mode, got %s", cfg.DelayMode)
	}
	if cfg.DialogReplyMode != ReplyModePrevious {
		t.Fatalf("expected previous reply mode, got %s", cfg.DialogReplyMode)
	}
	if !cfg.TypingEnabled {
		t.Fatalf("expected typing enabled by default")
	}
	if cfg.MaxRateLimitRetries != 0 {
		t.Fatalf("expected unbounded rate limit retries by default, got %d", cfg.MaxRateLimitRetries)
	}
	if cfg.DiscordHTTPTimeout != 15*time.Second {
		t.Fatalf("expected default http timeout, got %s", cfg.DiscordHTTPTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHANNEL_ID", " 123456789 ")
	t.Setenv("DELAY_MODE", "PER_SENDER")
	t.Setenv("REPLY_DELAY_MIN", "2.5")
	t.Setenv("REPLY_DELAY_MAX", "4")
	t.Setenv("PAUSE_DELAY_MIN", "10")
	t.Setenv("PAUSE_DELAY_MAX", "20")
	t.Setenv("STARTUP_DELAY_MINUTES", "1.5")
	t.Setenv("PRE_VALIDATE_TOKENS", "true")
	t.Setenv("TYPING_DELAY", "750ms")
	t.Setenv("MAX_RATE_LIMIT_RETRIES", "7")
	t.Setenv("TRANSCRIPT_TTL", "2h")
	cfg := Load()
	if cfg.ChannelID != "123456789" {
		t.Fatalf("expected trimmed channel id, got %q", cfg.ChannelID)
	}
	if cfg.DelayMode != DelayModePerSender {
		t.Fatalf("expected per_sender mode, got %s", cfg.DelayMode)
	}
	if cfg.ReplyDelayMin != 2.5 || cfg.ReplyDelayMax != 4 || cfg.PauseDelayMin != 10 || cfg.PauseDelayMax != 20 {
		t.Fatalf("unexpected bounds %#v", cfg)
	}
	if cfg.StartupDelayMinutes != 1.5 {
		t.Fatalf("expected 1.5 startup minutes, got %v", cfg.StartupDelayMinutes)
	}
	if !cfg.PreValidateTokens {
		t.Fatalf("expected pre validation enabled")
	}
	if cfg.TypingDelay != 750*time.Millisecond {
		t.Fatalf("expected typing delay override, got %s", cfg.TypingDelay)
	}
	if cfg.MaxRateLimitRetries != 7 {
		t.Fatalf("expected retry cap override, got %d", cfg.MaxRateLimitRetries)
	}
	if cfg.TranscriptTTL != 2*time.Hour {
		t.Fatalf("expected ttl override, got %s", cfg.TranscriptTTL)
	}
	if !cfg.HasTimingBounds() {
		t.Fatalf("expected timing bounds to be present")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			ChannelID:       "42",
			DelayMode:       DelayModeGlobal,
			DialogReplyMode: ReplyModePrevious,
			ReplyDelayMin:   1,
			ReplyDelayMax:   2,
			PauseDelayMin:   3,
			PauseDelayMax:   3,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing channel", func(c *Config) { c.ChannelID = "" }},
		{"non numeric channel", func(c *Config) { c.ChannelID = "abc123" }},
		{"reply min below one", func(c *Config) { c.ReplyDelayMin = 0.5 }},
		{"reply max below min", func(c *Config) { c.ReplyDelayMax = 0.9 }},
		{"pause max below min", func(c *Config) { c.PauseDelayMax = 2 }},
		{"unknown delay mode", func(c *Config) { c.DelayMode = "random" }},
		{"unknown reply mode", func(c *Config) { c.DialogReplyMode = "sender" }},
		{"negative startup", func(c *Config) { c.StartupDelayMinutes = -1 }},
		{"negative retry cap", func(c *Config) { c.MaxRateLimitRetries = -2 }},
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidatePerSenderAllowsMissingGlobalBounds(t *testing.T) {
	cfg := &Config{
		ChannelID:       "42",
		DelayMode:       DelayModePerSender,
		DialogReplyMode: ReplyModePrevious,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("per-sender mode without global bounds should be valid: %v", err)
	}
	if cfg.HasTimingBounds() {
		t.Fatalf("expected no timing bounds")
	}

	cfg.ReplyDelayMin = 0.5
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("partial global bounds must still be checked, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CHATRELAY_TEST_A=from-file\nCHATRELAY_TEST_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CHATRELAY_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("CHATRELAY_TEST_B") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CHATRELAY_TEST_A"); got != "from-env" {
		t.Fatalf("existing variable overridden: %s", got)
	}
	if got := os.Getenv("CHATRELAY_TEST_B"); got != "from-file" {
		t.Fatalf("expected file value, got %s", got)
	}
}
