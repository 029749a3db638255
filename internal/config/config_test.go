package config

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		SolanaRPCURL: "http://rpc", SolanaWSURL: "ws://ws", PumpProgramID: "prog",
		MinLiquiditySOL: 1, MaxLiquiditySOL: 10, MaxAlertsPerMinute: 5,
		WhaleThresholdSOL: 50, LPRemovalThresholdPercent: 50, SuspiciousSellPercent: 10,
		MaxDevSellPercent: 20, DashboardPort: 3000, MinTransactionsForPattern: 3,
		LogFormat: "console",
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsEmptyRPCURL(t *testing.T) {
	c := validConfig()
	c.SolanaRPCURL = ""
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsMaxBelowMinLiquidity(t *testing.T) {
	c := validConfig()
	c.MinLiquiditySOL = 10
	c.MaxLiquiditySOL = 1
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsNonPositiveWhaleThreshold(t *testing.T) {
	c := validConfig()
	c.WhaleThresholdSOL = 0
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsOutOfRangePercent(t *testing.T) {
	c := validConfig()
	c.MaxDevSellPercent = 150
	assert.Error(t, c.Validate())

	c2 := validConfig()
	c2.LPRemovalThresholdPercent = 0
	assert.Error(t, c2.Validate())
}

func TestValidate_RejectsBadPort(t *testing.T) {
	c := validConfig()
	c.DashboardPort = 70000
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	c := validConfig()
	c.LogFormat = "xml"
	assert.Error(t, c.Validate())
}

// TestPumpguardBool_AnythingButLiteralFalseIsTrue covers the spec's literal
// boolean rule: only the string "false", after trimming surrounding
// whitespace, is false.
func TestPumpguardBool_AnythingButLiteralFalseIsTrue(t *testing.T) {
	assert.True(t, pumpguardBool("true"))
	assert.True(t, pumpguardBool("yes"))
	assert.True(t, pumpguardBool("0"))
	assert.True(t, pumpguardBool(""))
	assert.False(t, pumpguardBool("false"))
	assert.False(t, pumpguardBool(" false "), "surrounding whitespace must still match the literal")
}

func TestConfig_BoolAccessorsReadTheirRawField(t *testing.T) {
	c := &Config{
		AlertNewTokensRaw: "false", AlertOnAccumulationRaw: "true",
		AlertOnDumpRaw: "anything", DevWalletSellAlertRaw: "false",
	}
	assert.False(t, c.AlertNewTokens())
	assert.True(t, c.AlertOnAccumulation())
	assert.True(t, c.AlertOnDump())
	assert.False(t, c.DevWalletSellAlert())
}

func TestLoad_ParsesEnvironmentAndValidates(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "http://custom-rpc")
	t.Setenv("DASHBOARD_PORT", "4000")
	t.Setenv("MAX_ALERTS_PER_MINUTE", "7")

	logger := zerolog.Nop()
	cfg, err := Load(&logger)
	require.NoError(t, err)
	assert.Equal(t, "http://custom-rpc", cfg.SolanaRPCURL)
	assert.Equal(t, 4000, cfg.DashboardPort)
	assert.Equal(t, 7, cfg.MaxAlertsPerMinute)
}

func TestLoad_InvalidEnvironmentFailsValidation(t *testing.T) {
	t.Setenv("DASHBOARD_PORT", "999999")

	logger := zerolog.Nop()
	_, err := Load(&logger)
	assert.Error(t, err)
}

func TestEnvParse_KnownWhalesSplitsOnComma(t *testing.T) {
	t.Setenv("KNOWN_WHALES", "Wa,Wb,Wc")
	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	assert.Equal(t, []string{"Wa", "Wb", "Wc"}, cfg.KnownWhales)
}
