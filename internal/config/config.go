// Package config defines the top-level configuration for the perpetual
// prediction-market daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpamm/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPAMM_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Bank     BankConfig     `toml:"bank"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig describes the single market instance this daemon runs.
// Fixed-point values (alpha, exp_limit) and big-integer amounts are written as
// decimal strings so the TOML file never loses precision to float parsing.
type MarketConfig struct {
	ID                  string   `toml:"id"`
	Question            string   `toml:"question"`
	Owner               string   `toml:"owner"`
	Oracle              string   `toml:"oracle"`
	OutcomeSlotCount    int      `toml:"outcome_slot_count"`
	StartFunding        string   `toml:"start_funding"`
	OutcomeTokenAmounts []string `toml:"outcome_token_amounts"`
	FeeBps              uint32   `toml:"fee_bps"`
	Alpha               string   `toml:"alpha"`
	ExpLimit            string   `toml:"exp_limit"`
	Decimals            uint32   `toml:"decimals"`
	ExpirationEpoch     uint64   `toml:"expiration_epoch"`
	GammaBps            uint32   `toml:"gamma_bps"`
	EpochDuration       duration `toml:"epoch_duration"`
	PeriodDuration      duration `toml:"period_duration"`
}

// BankConfig describes the in-process collateral bank and the development
// faucet backed by it.
type BankConfig struct {
	Symbol        string `toml:"symbol"`
	Decimals      uint32 `toml:"decimals"`
	FaucetEnabled bool   `toml:"faucet_enabled"`
	FaucetAmount  string `toml:"faucet_amount"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for epoch archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	AdminKey    string   `toml:"admin_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"` // requests per minute per client, 0 = off
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "24h", "30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "24h" or "30m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			ID:               "btc-daily",
			Question:         "Will BTC close the day above its open?",
			OutcomeSlotCount: 2,
			StartFunding:     "1000000000",
			OutcomeTokenAmounts: []string{
				"500000000",
				"500000000",
			},
			FeeBps:          100,
			Alpha:           "0.03",
			ExpLimit:        "130",
			Decimals:        6,
			ExpirationEpoch: 0,
			GammaBps:        9000,
			EpochDuration:   duration{24 * time.Hour},
			PeriodDuration:  duration{time.Hour},
		},
		Bank: BankConfig{
			Symbol:        "USDC",
			Decimals:      6,
			FaucetEnabled: true,
			FaucetAmount:  "1000000000",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "perpamm",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "perpamm-archives",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"epoch_closed", "market_expired", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. In "server" mode
// the daemon serves the API without Redis-backed caching or S3 archiving.
var validModes = map[string]bool{
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Market-level numeric
// invariants are re-checked by the engine; this catches what the TOML layer
// can misparse.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.ID == "" {
		errs = append(errs, "market: id must not be empty")
	}
	if !common.IsHexAddress(c.Market.Owner) {
		errs = append(errs, fmt.Sprintf("market: owner %q is not a hex address", c.Market.Owner))
	}
	if !common.IsHexAddress(c.Market.Oracle) {
		errs = append(errs, fmt.Sprintf("market: oracle %q is not a hex address", c.Market.Oracle))
	}
	if len(c.Market.OutcomeTokenAmounts) != c.Market.OutcomeSlotCount {
		errs = append(errs, fmt.Sprintf("market: %d outcome_token_amounts for %d slots",
			len(c.Market.OutcomeTokenAmounts), c.Market.OutcomeSlotCount))
	}
	if _, ok := sdkmath.NewIntFromString(c.Market.StartFunding); !ok {
		errs = append(errs, fmt.Sprintf("market: start_funding %q is not an integer", c.Market.StartFunding))
	}
	for i, amt := range c.Market.OutcomeTokenAmounts {
		if _, ok := sdkmath.NewIntFromString(amt); !ok {
			errs = append(errs, fmt.Sprintf("market: outcome_token_amounts[%d] %q is not an integer", i, amt))
		}
	}
	if _, err := sdkmath.LegacyNewDecFromStr(c.Market.Alpha); err != nil {
		errs = append(errs, fmt.Sprintf("market: alpha %q is not a decimal", c.Market.Alpha))
	}
	if _, err := sdkmath.LegacyNewDecFromStr(c.Market.ExpLimit); err != nil {
		errs = append(errs, fmt.Sprintf("market: exp_limit %q is not a decimal", c.Market.ExpLimit))
	}
	if c.Market.EpochDuration.Duration <= 0 || c.Market.PeriodDuration.Duration <= 0 {
		errs = append(errs, "market: epoch_duration and period_duration must be positive")
	} else if c.Market.EpochDuration.Duration%c.Market.PeriodDuration.Duration != 0 {
		errs = append(errs, fmt.Sprintf("market: period_duration %s must evenly divide epoch_duration %s",
			c.Market.PeriodDuration.Duration, c.Market.EpochDuration.Duration))
	}

	// Bank
	if c.Bank.Symbol == "" {
		errs = append(errs, "bank: symbol must not be empty")
	}
	if c.Bank.Decimals == 0 || c.Bank.Decimals > 18 {
		errs = append(errs, fmt.Sprintf("bank: decimals must be 1-18, got %d", c.Bank.Decimals))
	}
	if c.Bank.FaucetEnabled {
		if _, ok := sdkmath.NewIntFromString(c.Bank.FaucetAmount); !ok {
			errs = append(errs, fmt.Sprintf("bank: faucet_amount %q is not an integer", c.Bank.FaucetAmount))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis is required in full mode only.
	if strings.ToLower(c.Mode) == "full" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty in full mode")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MarketDomain converts the TOML market section into the engine's
// configuration struct. Call after Validate; malformed numerics fail here
// with the offending field named.
func (c *Config) MarketDomain() (domain.MarketConfig, error) {
	var out domain.MarketConfig

	startFunding, ok := sdkmath.NewIntFromString(c.Market.StartFunding)
	if !ok {
		return out, fmt.Errorf("config: market.start_funding %q is not an integer", c.Market.StartFunding)
	}
	amounts := make([]sdkmath.Int, len(c.Market.OutcomeTokenAmounts))
	for i, s := range c.Market.OutcomeTokenAmounts {
		amt, ok := sdkmath.NewIntFromString(s)
		if !ok {
			return out, fmt.Errorf("config: market.outcome_token_amounts[%d] %q is not an integer", i, s)
		}
		amounts[i] = amt
	}
	alpha, err := sdkmath.LegacyNewDecFromStr(c.Market.Alpha)
	if err != nil {
		return out, fmt.Errorf("config: market.alpha: %w", err)
	}
	expLimit, err := sdkmath.LegacyNewDecFromStr(c.Market.ExpLimit)
	if err != nil {
		return out, fmt.Errorf("config: market.exp_limit: %w", err)
	}

	out = domain.MarketConfig{
		ID:                  c.Market.ID,
		Question:            c.Market.Question,
		Owner:               common.HexToAddress(c.Market.Owner),
		Oracle:              common.HexToAddress(c.Market.Oracle),
		OutcomeSlotCount:    c.Market.OutcomeSlotCount,
		StartFunding:        startFunding,
		OutcomeTokenAmounts: amounts,
		FeeBps:              c.Market.FeeBps,
		Alpha:               alpha,
		ExpLimit:            expLimit,
		Decimals:            c.Market.Decimals,
		ExpirationEpoch:     c.Market.ExpirationEpoch,
		GammaBps:            c.Market.GammaBps,
		EpochDuration:       c.Market.EpochDuration.Duration,
		PeriodDuration:      c.Market.PeriodDuration.Duration,
	}
	return out, out.Validate()
}

// FaucetAmount returns the parsed faucet grant size. Zero when the faucet is
// disabled.
func (c *Config) FaucetAmount() sdkmath.Int {
	if !c.Bank.FaucetEnabled {
		return sdkmath.ZeroInt()
	}
	amt, ok := sdkmath.NewIntFromString(c.Bank.FaucetAmount)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return amt
}
