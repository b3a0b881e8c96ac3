package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "server"
log_level = "debug"

[market]
id = "eth-hourly"
question = "Will ETH close the hour up?"
owner = "0x1111111111111111111111111111111111111111"
oracle = "0x2222222222222222222222222222222222222222"
outcome_slot_count = 2
start_funding = "2000000000"
outcome_token_amounts = ["1000000000", "1000000000"]
fee_bps = 50
alpha = "0.05"
exp_limit = "120"
decimals = 6
gamma_bps = 9500
epoch_duration = "1h"
period_duration = "5m"

[server]
port = 9000
`

func writeSample(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeSample(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "eth-hourly", cfg.Market.ID)
	require.Equal(t, uint32(50), cfg.Market.FeeBps)
	require.Equal(t, time.Hour, cfg.Market.EpochDuration.Duration)
	require.Equal(t, 5*time.Minute, cfg.Market.PeriodDuration.Duration)
	require.Equal(t, 9000, cfg.Server.Port)

	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "USDC", cfg.Bank.Symbol)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERPAMM_MARKET_FEE_BPS", "250")
	t.Setenv("PERPAMM_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PERPAMM_MARKET_EPOCH_DURATION", "2h")
	t.Setenv("PERPAMM_MARKET_PERIOD_DURATION", "10m")

	cfg, err := Load(writeSample(t, sampleTOML))
	require.NoError(t, err)

	require.Equal(t, uint32(250), cfg.Market.FeeBps)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 2*time.Hour, cfg.Market.EpochDuration.Duration)
}

func TestValidateCatchesBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Market.Owner = "0x1111111111111111111111111111111111111111"
	cfg.Market.Oracle = "not-an-address"
	cfg.Market.Alpha = "abc"
	cfg.Market.PeriodDuration = duration{7 * time.Hour}
	cfg.Mode = "batch"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "oracle")
	require.Contains(t, err.Error(), "alpha")
	require.Contains(t, err.Error(), "evenly divide")
	require.Contains(t, err.Error(), "unknown mode")
}

func TestMarketDomainConversion(t *testing.T) {
	cfg, err := Load(writeSample(t, sampleTOML))
	require.NoError(t, err)

	mc, err := cfg.MarketDomain()
	require.NoError(t, err)
	require.Equal(t, "eth-hourly", mc.ID)
	require.Equal(t, "2000000000", mc.StartFunding.String())
	require.Equal(t, "0.050000000000000000", mc.Alpha.String())
	require.Equal(t, uint64(12), mc.PeriodsPerEpoch())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.AdminKey = "hunter2"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.S3.SecretKey)
	require.Equal(t, "***", red.Server.AdminKey)

	// Original untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}
