package bootstrap

import (
	"github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/discord"
	"github.com/wolfman30/chatrelay/internal/dispatch"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// DispatchOptions maps environment configuration onto engine options.
func DispatchOptions(cfg *config.Config) dispatch.Options {
	return dispatch.Options{
		DelayMode:           cfg.DelayMode,
		ReplyDelay:          dispatch.Bounds{Min: cfg.ReplyDelayMin, Max: cfg.ReplyDelayMax},
		PauseDelay:          dispatch.Bounds{Min: cfg.PauseDelayMin, Max: cfg.PauseDelayMax},
		ExchangeLength:      cfg.ExchangeLength,
		PreValidateTokens:   cfg.PreValidateTokens,
		StartupDelayMinutes: cfg.StartupDelayMinutes,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
	}
}

// BuildDiscordClient builds the chat transport.
func BuildDiscordClient(cfg *config.Config, logger *logging.Logger) *discord.Client {
	if logger == nil {
		logger = logging.Default()
	}
	return discord.New(discord.Config{
		BaseURL:       cfg.DiscordBaseURL,
		Timeout:       cfg.DiscordHTTPTimeout,
		Logger:        logger.Logger,
		UserAgent:     cfg.DiscordUserAgent,
		TypingEnabled: cfg.TypingEnabled,
		TypingDelay:   cfg.TypingDelay,
	})
}
