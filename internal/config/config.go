// Package config loads PumpGuard's runtime configuration from the
// environment, following the layout of adred-codev-ws_poc/ws/config.go.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every environment-tunable value named in the specification.
type Config struct {
	SolanaRPCURL string `env:"SOLANA_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	SolanaWSURL  string `env:"SOLANA_WS_URL" envDefault:"wss://api.mainnet-beta.solana.com"`
	PumpProgramID string `env:"PUMP_PROGRAM_ID" envDefault:"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID" envDefault:""`
	TelegramAPIBase  string `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`

	MinLiquiditySOL   float64 `env:"MIN_LIQUIDITY_SOL" envDefault:"1.0"`
	MaxLiquiditySOL   float64 `env:"MAX_LIQUIDITY_SOL" envDefault:"1000000"`
	MaxAlertsPerMinute int    `env:"MAX_ALERTS_PER_MINUTE" envDefault:"10"`

	AlertNewTokensRaw string `env:"ALERT_NEW_TOKENS" envDefault:"true"`

	WhaleThresholdSOL     float64 `env:"WHALE_THRESHOLD_SOL" envDefault:"50.0"`
	AlertOnAccumulationRaw string `env:"ALERT_ON_ACCUMULATION" envDefault:"true"`
	AlertOnDumpRaw         string `env:"ALERT_ON_DUMP" envDefault:"true"`

	LPRemovalThresholdPercent float64 `env:"LP_REMOVAL_THRESHOLD_PERCENT" envDefault:"50.0"`
	SuspiciousSellPercent     float64 `env:"SUSPICIOUS_SELL_PERCENT" envDefault:"10.0"`
	MaxDevSellPercent         float64 `env:"MAX_DEV_SELL_PERCENT" envDefault:"20.0"`
	MinTimeBetweenSellsMS     int64   `env:"MIN_TIME_BETWEEN_SELLS_MS" envDefault:"60000"`
	// HolderConcentrationAlert is parsed for environment compatibility only;
	// no rug rule reads it.
	HolderConcentrationAlert float64 `env:"HOLDER_CONCENTRATION_ALERT" envDefault:"80.0"`
	DevWalletSellAlertRaw     string  `env:"DEV_WALLET_SELL_ALERT" envDefault:"true"`

	AccumulationWindowMS       int64 `env:"ACCUMULATION_WINDOW_MS" envDefault:"3600000"`
	MinTransactionsForPattern int   `env:"MIN_TRANSACTIONS_FOR_PATTERN" envDefault:"3"`
	KnownWhales                []string `env:"KNOWN_WHALES" envSeparator:","`

	DashboardPort int    `env:"DASHBOARD_PORT" envDefault:"3000"`
	DashboardAuthSecret string `env:"DASHBOARD_AUTH_SECRET" envDefault:""`

	NATSURL     string `env:"NATS_URL" envDefault:""`
	NATSSubject string `env:"NATS_ALERTS_SUBJECT" envDefault:"pumpguard.alerts"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/pumpguard.db"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// PreserveZeroTokenAmountQuirk, when true, reproduces the original
	// Rust source's always-zero amount_tokens parsing instead of the
	// real post/pre token-balance delta. See SPEC_FULL.md §C.7.
	PreserveZeroTokenAmountQuirk bool `env:"PRESERVE_ZERO_TOKEN_AMOUNT_QUIRK" envDefault:"false"`
}

// pumpguardBool implements the spec's literal boolean rule: any value other
// than the string "false" (after trimming surrounding whitespace) is true.
// This intentionally does not use
// strconv.ParseBool, whose accepted spellings differ from the spec's rule.
func pumpguardBool(raw string) bool {
	return strings.TrimSpace(raw) != "false"
}

func (c *Config) AlertNewTokens() bool      { return pumpguardBool(c.AlertNewTokensRaw) }
func (c *Config) AlertOnAccumulation() bool { return pumpguardBool(c.AlertOnAccumulationRaw) }
func (c *Config) AlertOnDump() bool         { return pumpguardBool(c.AlertOnDumpRaw) }
func (c *Config) DevWalletSellAlert() bool  { return pumpguardBool(c.DevWalletSellAlertRaw) }

// Load reads .env (if present, non-fatal otherwise), parses the environment
// into a Config, and validates it.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to load .env file, continuing with process environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate enforces the required/range/logical constraints implied by the
// specification's configuration surface.
func (c *Config) Validate() error {
	if c.SolanaRPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL must not be empty")
	}
	if c.SolanaWSURL == "" {
		return fmt.Errorf("SOLANA_WS_URL must not be empty")
	}
	if c.PumpProgramID == "" {
		return fmt.Errorf("PUMP_PROGRAM_ID must not be empty")
	}
	if c.MinLiquiditySOL < 0 {
		return fmt.Errorf("MIN_LIQUIDITY_SOL must be >= 0, got %f", c.MinLiquiditySOL)
	}
	if c.MaxLiquiditySOL < c.MinLiquiditySOL {
		return fmt.Errorf("MAX_LIQUIDITY_SOL (%f) must be >= MIN_LIQUIDITY_SOL (%f)", c.MaxLiquiditySOL, c.MinLiquiditySOL)
	}
	if c.MaxAlertsPerMinute < 0 {
		return fmt.Errorf("MAX_ALERTS_PER_MINUTE must be >= 0, got %d", c.MaxAlertsPerMinute)
	}
	if c.WhaleThresholdSOL <= 0 {
		return fmt.Errorf("WHALE_THRESHOLD_SOL must be > 0, got %f", c.WhaleThresholdSOL)
	}
	if c.LPRemovalThresholdPercent <= 0 || c.LPRemovalThresholdPercent > 100 {
		return fmt.Errorf("LP_REMOVAL_THRESHOLD_PERCENT must be in (0,100], got %f", c.LPRemovalThresholdPercent)
	}
	if c.SuspiciousSellPercent <= 0 || c.SuspiciousSellPercent > 100 {
		return fmt.Errorf("SUSPICIOUS_SELL_PERCENT must be in (0,100], got %f", c.SuspiciousSellPercent)
	}
	if c.MaxDevSellPercent <= 0 || c.MaxDevSellPercent > 100 {
		return fmt.Errorf("MAX_DEV_SELL_PERCENT must be in (0,100], got %f", c.MaxDevSellPercent)
	}
	if c.DashboardPort <= 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("DASHBOARD_PORT must be a valid TCP port, got %d", c.DashboardPort)
	}
	if c.MinTransactionsForPattern <= 0 {
		return fmt.Errorf("MIN_TRANSACTIONS_FOR_PATTERN must be > 0, got %d", c.MinTransactionsForPattern)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of console|json, got %q", c.LogFormat)
	}
	return nil
}

// Print logs the resolved configuration at startup, redacting secrets.
func (c *Config) Print(logger *zerolog.Logger) {
	logger.Info().
		Str("solana_rpc_url", c.SolanaRPCURL).
		Str("solana_ws_url", c.SolanaWSURL).
		Str("pump_program_id", c.PumpProgramID).
		Bool("telegram_configured", c.TelegramBotToken != "").
		Float64("min_liquidity_sol", c.MinLiquiditySOL).
		Int("max_alerts_per_minute", c.MaxAlertsPerMinute).
		Bool("alert_new_tokens", c.AlertNewTokens()).
		Float64("whale_threshold_sol", c.WhaleThresholdSOL).
		Int("dashboard_port", c.DashboardPort).
		Bool("nats_configured", c.NATSURL != "").
		Str("database_path", c.DatabasePath).
		Msg("configuration loaded")
}
