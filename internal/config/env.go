package config

import (
	"os"
	"strings"
)

// Environment overrides for secrets that should not live in the config file.
const (
	EnvCronSecret   = "REMINDERD_CRON_SECRET"
	EnvSecretsKey   = "REMINDERD_SECRETS_KEY"
	EnvLinkSecret   = "REMINDERD_LINK_SECRET"
	EnvSMTPPassword = "REMINDERD_SMTP_PASSWORD"
	EnvSMSAPIKey    = "REMINDERD_SMS_API_KEY"
	EnvTelegramTok  = "REMINDERD_TELEGRAM_TOKEN"
	EnvDebugToken   = "REMINDERD_DEBUG_TOKEN"
)

// ApplyEnv overlays non-empty environment values onto cfg.
// lookup is usually os.LookupEnv; tests pass a map-backed func.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Server.CronSecret, EnvCronSecret)
	set(&cfg.Secrets.Key, EnvSecretsKey)
	set(&cfg.Links.Secret, EnvLinkSecret)
	set(&cfg.Provider.SMTP.Password, EnvSMTPPassword)
	set(&cfg.Provider.SMS.APIKey, EnvSMSAPIKey)
	set(&cfg.Telegram.Token, EnvTelegramTok)
	set(&cfg.Debug.Token, EnvDebugToken)
}
