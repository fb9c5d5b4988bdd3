package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid marks configuration that must stop a run before it starts:
// malformed timing bounds, insufficient senders, unreadable scripts.
var ErrInvalid = errors.New("config invalid")

const (
	DelayModeGlobal    = "global"
	DelayModePerSender = "per_sender"

	ReplyModePrevious = "previous"
	ReplyModeNone     = "none"
)

// Config holds application configuration
type Config struct {
	LogLevel string
	LogFile  string
	LogColor bool

	ChannelID       string
	SendersFile     string
	DialogFile      string
	DialogReplyMode string

	DiscordBaseURL     string
	DiscordHTTPTimeout time.Duration
	DiscordUserAgent   string

	DelayMode           string
	ReplyDelayMin       float64
	ReplyDelayMax       float64
	PauseDelayMin       float64
	PauseDelayMax       float64
	ExchangeLength      int
	PreValidateTokens   bool
	StartupDelayMinutes float64
	TypingEnabled       bool
	TypingDelay         time.Duration
	MaxRateLimitRetries int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	TranscriptTTL time.Duration

	TranscriptBucket    string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	NotifyEmailTo     string
	NotifyProvider    string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	OpsAddr string
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "activity.log"),
		LogColor: getEnvAsBool("LOG_COLOR", true),

		ChannelID:       strings.TrimSpace(getEnv("CHANNEL_ID", "")),
		SendersFile:     getEnv("SENDERS_FILE", "token.txt"),
		DialogFile:      getEnv("DIALOG_FILE", "dialog.txt"),
		DialogReplyMode: strings.ToLower(strings.TrimSpace(getEnv("DIALOG_REPLY_MODE", ReplyModePrevious))),

		DiscordBaseURL:     getEnv("DISCORD_BASE_URL", ""),
		DiscordHTTPTimeout: getEnvAsDuration("DISCORD_HTTP_TIMEOUT", 15*time.Second),
		DiscordUserAgent:   getEnv("DISCORD_USER_AGENT", ""),

		DelayMode:           strings.ToLower(strings.TrimSpace(getEnv("DELAY_MODE", DelayModeGlobal))),
		ReplyDelayMin:       getEnvAsFloat("REPLY_DELAY_MIN", 0),
		ReplyDelayMax:       getEnvAsFloat("REPLY_DELAY_MAX", 0),
		PauseDelayMin:       getEnvAsFloat("PAUSE_DELAY_MIN", 0),
		PauseDelayMax:       getEnvAsFloat("PAUSE_DELAY_MAX", 0),
		ExchangeLength:      getEnvAsInt("EXCHANGE_LENGTH", 0),
		PreValidateTokens:   getEnvAsBool("PRE_VALIDATE_TOKENS", false),
		StartupDelayMinutes: getEnvAsFloat("STARTUP_DELAY_MINUTES", 0),
		TypingEnabled:       getEnvAsBool("TYPING_ENABLED", true),
		TypingDelay:         getEnvAsDuration("TYPING_DELAY", 0),
		MaxRateLimitRetries: getEnvAsInt("MAX_RATE_LIMIT_RETRIES", 0),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		TranscriptTTL: getEnvAsDuration("TRANSCRIPT_TTL", 24*time.Hour),

		TranscriptBucket:    getEnv("TRANSCRIPT_BUCKET", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		NotifyEmailTo:     getEnv("NOTIFY_EMAIL_TO", ""),
		NotifyProvider:    strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Chat Relay"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		OpsAddr: getEnv("OPS_ADDR", ""),
	}
}

// Validate checks the values a dispatch run depends on. Every failure wraps
// ErrInvalid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", ErrInvalid)
	}
	if !IsDigits(c.ChannelID) {
		return fmt.Errorf("%w: channel id must be numeric, got %q", ErrInvalid, c.ChannelID)
	}
	switch c.DelayMode {
	case DelayModeGlobal, DelayModePerSender:
	default:
		return fmt.Errorf("%w: unknown delay mode %q", ErrInvalid, c.DelayMode)
	}
	perSender := c.DelayMode == DelayModePerSender
	if !perSender || c.ReplyDelayMin != 0 || c.ReplyDelayMax != 0 {
		if err := ValidateBounds("reply delay", c.ReplyDelayMin, c.ReplyDelayMax); err != nil {
			return err
		}
	}
	if !perSender || c.PauseDelayMin != 0 || c.PauseDelayMax != 0 {
		if err := ValidateBounds("pause delay", c.PauseDelayMin, c.PauseDelayMax); err != nil {
			return err
		}
	}
	switch c.DialogReplyMode {
	case ReplyModePrevious, ReplyModeNone:
	default:
		return fmt.Errorf("%w: unknown dialog reply mode %q", ErrInvalid, c.DialogReplyMode)
	}
	if c.StartupDelayMinutes < 0 {
		return fmt.Errorf("%w: startup delay must not be negative", ErrInvalid)
	}
	if c.MaxRateLimitRetries < 0 {
		return fmt.Errorf("%w: max rate limit retries must not be negative", ErrInvalid)
	}
	if c.ExchangeLength < 0 {
		return fmt.Errorf("%w: exchange length must not be negative", ErrInvalid)
	}
	return nil
}

// ValidateBounds enforces min >= 1 second and max >= min.
func ValidateBounds(name string, min, max float64) error {
	if min < 1 {
		return fmt.Errorf("%w: %s minimum must be at least 1 second, got %.2f", ErrInvalid, name, min)
	}
	if max < min {
		return fmt.Errorf("%w: %s maximum %.2f is below minimum %.2f", ErrInvalid, name, max, min)
	}
	return nil
}

// HasTimingBounds reports whether all four timing bounds were supplied.
func (c *Config) HasTimingBounds() bool {
	return c.ReplyDelayMin > 0 && c.ReplyDelayMax > 0 && c.PauseDelayMin > 0 && c.PauseDelayMax > 0
}

// IsDigits reports whether s is a non-empty run of ASCII digits, the shape of
// a channel id.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
