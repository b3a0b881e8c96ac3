package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPAMM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPAMM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.ID, "PERPAMM_MARKET_ID")
	setStr(&cfg.Market.Question, "PERPAMM_MARKET_QUESTION")
	setStr(&cfg.Market.Owner, "PERPAMM_MARKET_OWNER")
	setStr(&cfg.Market.Oracle, "PERPAMM_MARKET_ORACLE")
	setInt(&cfg.Market.OutcomeSlotCount, "PERPAMM_MARKET_OUTCOME_SLOT_COUNT")
	setStr(&cfg.Market.StartFunding, "PERPAMM_MARKET_START_FUNDING")
	setStringSlice(&cfg.Market.OutcomeTokenAmounts, "PERPAMM_MARKET_OUTCOME_TOKEN_AMOUNTS")
	setUint32(&cfg.Market.FeeBps, "PERPAMM_MARKET_FEE_BPS")
	setStr(&cfg.Market.Alpha, "PERPAMM_MARKET_ALPHA")
	setStr(&cfg.Market.ExpLimit, "PERPAMM_MARKET_EXP_LIMIT")
	setUint32(&cfg.Market.Decimals, "PERPAMM_MARKET_DECIMALS")
	setUint64(&cfg.Market.ExpirationEpoch, "PERPAMM_MARKET_EXPIRATION_EPOCH")
	setUint32(&cfg.Market.GammaBps, "PERPAMM_MARKET_GAMMA_BPS")
	setDuration(&cfg.Market.EpochDuration, "PERPAMM_MARKET_EPOCH_DURATION")
	setDuration(&cfg.Market.PeriodDuration, "PERPAMM_MARKET_PERIOD_DURATION")

	// ── Bank ──
	setStr(&cfg.Bank.Symbol, "PERPAMM_BANK_SYMBOL")
	setUint32(&cfg.Bank.Decimals, "PERPAMM_BANK_DECIMALS")
	setBool(&cfg.Bank.FaucetEnabled, "PERPAMM_BANK_FAUCET_ENABLED")
	setStr(&cfg.Bank.FaucetAmount, "PERPAMM_BANK_FAUCET_AMOUNT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPAMM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPAMM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPAMM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPAMM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPAMM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPAMM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPAMM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPAMM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPAMM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPAMM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPAMM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPAMM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPAMM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPAMM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPAMM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPAMM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PERPAMM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PERPAMM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPAMM_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPAMM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPAMM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPAMM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPAMM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPAMM_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "PERPAMM_SERVER_PORT")
	setStr(&cfg.Server.AdminKey, "PERPAMM_SERVER_ADMIN_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPAMM_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PERPAMM_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPAMM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPAMM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPAMM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPAMM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPAMM_MODE")
	setStr(&cfg.LogLevel, "PERPAMM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
