package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeConfig returns defaults patched with the values a fresh install
// would have to supply before Validate passes.
func completeConfig() Config {
	cfg := Defaults()
	cfg.Chain.Registry = "0x1111111111111111111111111111111111111111"
	cfg.Chain.Token = "0x2222222222222222222222222222222222222222"
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidateCompleteConfig(t *testing.T) {
	cfg := completeConfig()
	require.NoError(t, cfg.Validate())
}

func TestDefaultStalenessIsTensOfSeconds(t *testing.T) {
	staleness := Defaults().Reads.Staleness.Duration
	assert.GreaterOrEqual(t, staleness, 30*time.Second)
	assert.LessOrEqual(t, staleness, time.Minute)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := completeConfig()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidateWalletRequiredForSubmittingModes(t *testing.T) {
	cfg := completeConfig()
	cfg.Wallet = WalletConfig{}

	for _, mode := range []string{"server", "full"} {
		cfg.Mode = mode
		err := cfg.Validate()
		require.Error(t, err, "mode %s submits transactions and needs a key", mode)
		assert.Contains(t, err.Error(), "wallet:")
	}

	// Watch mode only reads, so no wallet is needed.
	cfg.Mode = "watch"
	assert.NoError(t, cfg.Validate())
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := completeConfig()
	cfg.Wallet = WalletConfig{EncryptedKeyPath: "/keys/wallet.json"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := completeConfig()
	cfg.Chain.RPCURL = ""
	cfg.Chain.ChainID = 0
	cfg.Server.Port = 99999
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain: rpc_url must not be empty")
	assert.Contains(t, err.Error(), "chain: chain_id must be positive")
	assert.Contains(t, err.Error(), "server: port must be 1-65535")
}

func TestValidateS3OnlyWhenEnabled(t *testing.T) {
	cfg := completeConfig()
	cfg.S3 = S3Config{Enabled: false}
	require.NoError(t, cfg.Validate())

	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: endpoint must not be empty when enabled")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty when enabled")
}

func TestLoadTOMLWithDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "watch"
log_level = "debug"

[chain]
rpc_url = "https://base.example.org"
chain_id = 8453
registry = "0x1111111111111111111111111111111111111111"
token = "0x2222222222222222222222222222222222222222"
receipt_poll_interval = "5s"

[reads]
staleness = "90s"
refresh_interval = "3m"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, uint64(8453), cfg.Chain.ChainID)
	assert.Equal(t, 5*time.Second, cfg.Chain.ReceiptPollInterval.Duration)
	assert.Equal(t, 90*time.Second, cfg.Reads.Staleness.Duration)
	assert.Equal(t, 3*time.Minute, cfg.Reads.RefreshInterval.Duration)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, 16, cfg.Reads.Fanout)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "watch"

[chain]
registry = "0x1111111111111111111111111111111111111111"
token = "0x2222222222222222222222222222222222222222"
`), 0o600))

	t.Setenv("FORESCENE_CHAIN_ID", "10")
	t.Setenv("FORESCENE_MODE", "watch")
	t.Setenv("FORESCENE_READS_STALENESS", "45s")
	t.Setenv("FORESCENE_PINNING_GATEWAYS", "https://a.example.org,https://b.example.org")
	t.Setenv("FORESCENE_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), cfg.Chain.ChainID)
	assert.Equal(t, 45*time.Second, cfg.Reads.Staleness.Duration)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.Pinning.Gateways)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "nope"`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	var back duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d.Duration, back.Duration)

	assert.Error(t, back.UnmarshalText([]byte("not-a-duration")))
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := completeConfig()
	cfg.Pinning.Token = "pinata-jwt"
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-key"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Pinning.Token)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The input is untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)

	// Mutating a redacted slice must not leak back.
	red.Pinning.Gateways[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Pinning.Gateways[0])
}
