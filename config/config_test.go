package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	raw := []byte(`
assets:
  - symbol: GALA
    binance: GALAUSDT
    bybit: GALAUSDT
    hyperliquid: GALA
  - symbol: GUSDC
    stablecoin: true
stable_asset: GUSDC
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.True(t, cfg.SimulationMode, "simulation mode must default to on")
	assert.True(t, cfg.VarianceThresholdPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.AveragingEnabled)
	assert.Equal(t, 30*time.Second, cfg.FreshnessThreshold)
	assert.Equal(t, 15*time.Second, cfg.PriceTTL)
	assert.Equal(t, 5*time.Second, cfg.QuoteTTL)
	assert.Equal(t, 10*time.Second, cfg.BalanceTTL)
	assert.Equal(t, 1024, cfg.CacheCapacity)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, uint32(5), cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, []string{"binance", "bybit", "hyperliquid"}, cfg.Priority)

	require.Len(t, cfg.Sources, 3)
	for _, s := range cfg.Sources {
		assert.True(t, s.Enabled)
		if s.ID == "hyperliquid" {
			assert.Equal(t, DefaultHyperliquidRPM, s.RequestsPerMinute)
		} else {
			assert.Equal(t, DefaultRequestsPerMinute, s.RequestsPerMinute)
		}
	}
}

func TestParseOverrides(t *testing.T) {
	raw := []byte(`
simulation_mode: false
listen_addr: ":9090"
variance_threshold: "7.5"
averaging_enabled: false
freshness_threshold: 45s
price_ttl: 20s
max_retries: 0
priority: [hyperliquid, binance, bybit]
assets:
  - symbol: TOWN
    binance: TOWNUSDT
sources:
  - id: bybit
    enabled: false
  - id: hyperliquid
    requests_per_minute: 30
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.False(t, cfg.SimulationMode)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.True(t, cfg.VarianceThresholdPercent.Equal(decimal.RequireFromString("7.5")))
	assert.False(t, cfg.AveragingEnabled)
	assert.Equal(t, 45*time.Second, cfg.FreshnessThreshold)
	assert.Equal(t, 20*time.Second, cfg.PriceTTL)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, []string{"hyperliquid", "binance", "bybit"}, cfg.Priority)

	assert.False(t, cfg.SourceEnabled("bybit"))
	assert.True(t, cfg.SourceEnabled("binance"))

	quotas := cfg.Quotas()
	assert.Equal(t, 30, quotas["hyperliquid"])
	assert.Equal(t, DefaultRequestsPerMinute, quotas["binance"])
}

func TestParseRejectsBadConfig(t *testing.T) {
	for name, raw := range map[string]string{
		"no assets":          `listen_addr: ":8080"`,
		"missing symbol":     "assets:\n  - binance: GALAUSDT",
		"duplicate symbol":   "assets:\n  - symbol: GALA\n  - symbol: GALA",
		"bad threshold":      "variance_threshold: \"ten\"\nassets:\n  - symbol: GALA",
		"negative threshold": "variance_threshold: \"-1\"\nassets:\n  - symbol: GALA",
		"bad duration":       "freshness_threshold: soon\nassets:\n  - symbol: GALA",
		"all sources disabled": `
assets:
  - symbol: GALA
sources:
  - id: binance
    enabled: false
  - id: bybit
    enabled: false
  - id: hyperliquid
    enabled: false
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestSymbolMappings(t *testing.T) {
	raw := []byte(`
assets:
  - symbol: GALA
    binance: GALAUSDT
    bybit: GALAUSDT
    hyperliquid: GALA
  - symbol: TOWN
    bybit: TOWNUSDT
  - symbol: GUSDC
    stablecoin: true
stable_asset: GUSDC
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	gala := cfg.Assets[0].ID()
	town := cfg.Assets[1].ID()

	binance := cfg.SymbolsFor("binance")
	assert.Equal(t, "GALAUSDT", binance[gala])
	_, hasTown := binance[town]
	assert.False(t, hasTown, "asset without a binance symbol must be absent")

	bybit := cfg.SymbolsFor("bybit")
	assert.Equal(t, "TOWNUSDT", bybit[town])

	assert.Equal(t, []string{"GUSDC"}, cfg.Stablecoins())
	assert.Equal(t, "GUSDC", cfg.StableAssetID().Symbol())
	assert.Len(t, cfg.AssetIDs(), 3)
}
