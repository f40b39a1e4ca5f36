package config

// RedactedConfig returns a copy of the config with secret values replaced by
// a placeholder, safe for logging at startup.
func RedactedConfig(cfg Config) Config {
	out := cfg

	if out.Wallet.PrivateKey != "" {
		out.Wallet.PrivateKey = "***"
	}
	if out.Wallet.KeyPassword != "" {
		out.Wallet.KeyPassword = "***"
	}
	if out.Pinning.Token != "" {
		out.Pinning.Token = "***"
	}
	if out.Postgres.DSN != "" {
		out.Postgres.DSN = "***"
	}
	if out.Postgres.Password != "" {
		out.Postgres.Password = "***"
	}
	if out.Redis.Password != "" {
		out.Redis.Password = "***"
	}
	if out.S3.AccessKey != "" {
		out.S3.AccessKey = "***"
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = "***"
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = "***"
	}
	if out.Notify.TelegramToken != "" {
		out.Notify.TelegramToken = "***"
	}
	if out.Notify.DiscordWebhookURL != "" {
		out.Notify.DiscordWebhookURL = "***"
	}

	// Slices are shared between the original and the shallow copy; duplicate
	// the ones callers might mutate.
	out.Pinning.Gateways = append([]string(nil), cfg.Pinning.Gateways...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)

	return out
}
