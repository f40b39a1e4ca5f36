package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the given TOML file, then applies environment
// variable overrides (FORESCENE_* prefix). If path is empty only defaults and
// environment variables are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Secrets commonly ride in a local .env file during development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr("FORESCENE_MODE", &cfg.Mode)
	setStr("FORESCENE_LOG_LEVEL", &cfg.LogLevel)

	setStr("FORESCENE_CHAIN_RPC_URL", &cfg.Chain.RPCURL)
	setUint64("FORESCENE_CHAIN_ID", &cfg.Chain.ChainID)
	setStr("FORESCENE_CHAIN_REGISTRY", &cfg.Chain.Registry)
	setStr("FORESCENE_CHAIN_TOKEN", &cfg.Chain.Token)
	setStr("FORESCENE_CHAIN_MULTICALL", &cfg.Chain.Multicall)
	setDuration("FORESCENE_CHAIN_RECEIPT_POLL_INTERVAL", &cfg.Chain.ReceiptPollInterval)

	setStr("FORESCENE_WALLET_PRIVATE_KEY", &cfg.Wallet.PrivateKey)
	setStr("FORESCENE_WALLET_ENCRYPTED_KEY_PATH", &cfg.Wallet.EncryptedKeyPath)
	setStr("FORESCENE_WALLET_KEY_PASSWORD", &cfg.Wallet.KeyPassword)

	setStr("FORESCENE_PINNING_API_URL", &cfg.Pinning.APIURL)
	setStr("FORESCENE_PINNING_TOKEN", &cfg.Pinning.Token)
	setStr("FORESCENE_PINNING_GATEWAY_URL", &cfg.Pinning.GatewayURL)
	setStringSlice("FORESCENE_PINNING_GATEWAYS", &cfg.Pinning.Gateways)
	setDuration("FORESCENE_PINNING_TIMEOUT", &cfg.Pinning.Timeout)

	setInt("FORESCENE_READS_FANOUT", &cfg.Reads.Fanout)
	setDuration("FORESCENE_READS_STALENESS", &cfg.Reads.Staleness)
	setDuration("FORESCENE_READS_REFRESH_INTERVAL", &cfg.Reads.RefreshInterval)

	setStr("FORESCENE_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("FORESCENE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("FORESCENE_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("FORESCENE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("FORESCENE_POSTGRES_USER", &cfg.Postgres.User)
	setStr("FORESCENE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("FORESCENE_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("FORESCENE_POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("FORESCENE_POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("FORESCENE_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setStr("FORESCENE_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("FORESCENE_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("FORESCENE_REDIS_DB", &cfg.Redis.DB)
	setInt("FORESCENE_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setBool("FORESCENE_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setBool("FORESCENE_S3_ENABLED", &cfg.S3.Enabled)
	setStr("FORESCENE_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("FORESCENE_S3_REGION", &cfg.S3.Region)
	setStr("FORESCENE_S3_BUCKET", &cfg.S3.Bucket)
	setStr("FORESCENE_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("FORESCENE_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setBool("FORESCENE_S3_USE_SSL", &cfg.S3.UseSSL)
	setDuration("FORESCENE_S3_ARCHIVE_INTERVAL", &cfg.S3.ArchiveInterval)
	setDuration("FORESCENE_S3_ARCHIVE_MAX_AGE", &cfg.S3.ArchiveMaxAge)

	setBool("FORESCENE_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("FORESCENE_SERVER_PORT", &cfg.Server.Port)
	setStringSlice("FORESCENE_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("FORESCENE_SERVER_API_KEY", &cfg.Server.APIKey)
	setInt("FORESCENE_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setDuration("FORESCENE_SERVER_RATE_LIMIT_WINDOW", &cfg.Server.RateLimitWindow)

	setStr("FORESCENE_NOTIFY_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("FORESCENE_NOTIFY_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("FORESCENE_NOTIFY_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("FORESCENE_NOTIFY_EVENTS", &cfg.Notify.Events)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(key string, dst *uint64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
