package config

import "os"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Kalshi.ApiKey)
	redact(&out.OpenAI.ApiKey)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)
	redact(&out.Server.JWTSecret)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Categories = make([]CategoryConfig, len(cfg.Categories))
	for i, c := range cfg.Categories {
		c.KalshiTags = append([]string(nil), c.KalshiTags...)
		out.Categories[i] = c
	}

	return out
}

// KalshiPrivateKey reads the PEM file at cfg.Kalshi.RsaPrivateKeyPath. It
// returns nil when no path is configured.
func (c *Config) KalshiPrivateKey() ([]byte, error) {
	if c.Kalshi.RsaPrivateKeyPath == "" {
		return nil, nil
	}
	return os.ReadFile(c.Kalshi.RsaPrivateKeyPath)
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
