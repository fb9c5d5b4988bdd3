package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/chatrelay/internal/config"
	"github.com/wolfman30/chatrelay/internal/notify"
	"github.com/wolfman30/chatrelay/pkg/logging"
)

// BuildEmailSender picks the provider named by NOTIFY_PROVIDER. Providers
// missing credentials fall back to the stub so a run never fails on it.
func BuildEmailSender(cfg *config.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.NotifyProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email sender")
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
		}
		logger.Warn("ses selected but AWS config or SES_FROM_EMAIL is missing; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildRunNotifier returns nil when NOTIFY_EMAIL_TO is unset.
func BuildRunNotifier(cfg *config.Config, awsCfg *aws.Config, logger *logging.Logger) *notify.RunNotifier {
	if cfg == nil || cfg.NotifyEmailTo == "" {
		return nil
	}
	return notify.NewRunNotifier(BuildEmailSender(cfg, awsCfg, logger), cfg.NotifyEmailTo, logger)
}
