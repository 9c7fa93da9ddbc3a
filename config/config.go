// Package config loads the bot configuration from a YAML file or CLI
// flags. Everything is read once at startup; credentials come from the
// environment, never from the config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
	"gopkg.in/yaml.v3"
)

// Defaults for every tunable knob.
var (
	DefaultVarianceThreshold = decimal.NewFromInt(10)
	DefaultPriority          = []string{"binance", "bybit", "hyperliquid"}
)

const (
	DefaultListenAddr         = ":8080"
	DefaultFreshnessThreshold = 30 * time.Second
	DefaultPriceTTL           = 15 * time.Second
	DefaultQuoteTTL           = 5 * time.Second
	DefaultBalanceTTL         = 10 * time.Second
	DefaultCacheCapacity      = 1024
	DefaultFetchTimeout       = 10 * time.Second
	DefaultRefreshInterval    = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBaseDelay     = 1 * time.Second
	DefaultRetryMaxDelay      = 10 * time.Second
	DefaultRetryMultiplier    = 2.0
	DefaultFailureThreshold   = 5
	DefaultRecoveryTimeout    = 30 * time.Second
	DefaultHyperliquidAPIURL  = "https://api.hyperliquid.xyz"
	DefaultRequestsPerMinute  = 60
	// the public Info endpoint has a tighter budget than the CEX tickers
	DefaultHyperliquidRPM = 30
)

// AssetConfig maps one shared asset to each source's symbol vocabulary.
type AssetConfig struct {
	Symbol      string `yaml:"symbol"`
	Binance     string `yaml:"binance,omitempty"`
	Bybit       string `yaml:"bybit,omitempty"`
	Hyperliquid string `yaml:"hyperliquid,omitempty"`
	// Stablecoin pins this asset to 1.0 USD in every adapter. Explicit
	// opt-in only, never guessed from the symbol.
	Stablecoin bool `yaml:"stablecoin,omitempty"`
}

// ID returns the shared asset id for this entry.
func (a AssetConfig) ID() domain.AssetID {
	return domain.NewAssetID(a.Symbol, "Unit", "none", "none")
}

// Config is the full bot configuration.
type Config struct {
	ListenAddr     string
	SimulationMode bool

	Assets      []AssetConfig
	Sources     []domain.SourceConfig
	Priority    []string
	StableAsset string

	VarianceThresholdPercent decimal.Decimal
	AveragingEnabled         bool
	FreshnessThreshold       time.Duration

	PriceTTL      time.Duration
	QuoteTTL      time.Duration
	BalanceTTL    time.Duration
	CacheCapacity int

	FetchTimeout    time.Duration
	RefreshInterval time.Duration

	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64

	FailureThreshold uint32
	RecoveryTimeout  time.Duration

	HyperliquidBaseURL string
	WalDir             string

	TLSDomains   []string
	CertCacheDir string
}

type configTmp struct {
	ListenAddr     string `yaml:"listen_addr,omitempty"`
	SimulationMode *bool  `yaml:"simulation_mode"`

	Assets  []AssetConfig `yaml:"assets"`
	Sources []sourceTmp   `yaml:"sources,omitempty"`

	Priority    []string `yaml:"priority,omitempty"`
	StableAsset string   `yaml:"stable_asset,omitempty"`

	VarianceThresholdStr string `yaml:"variance_threshold,omitempty"`
	AveragingEnabled     *bool  `yaml:"averaging_enabled,omitempty"`
	FreshnessThreshold   string `yaml:"freshness_threshold,omitempty"`

	PriceTTL      string `yaml:"price_ttl,omitempty"`
	QuoteTTL      string `yaml:"quote_ttl,omitempty"`
	BalanceTTL    string `yaml:"balance_ttl,omitempty"`
	CacheCapacity int    `yaml:"cache_capacity,omitempty"`

	FetchTimeout    string `yaml:"fetch_timeout,omitempty"`
	RefreshInterval string `yaml:"refresh_interval,omitempty"`

	MaxRetries      *int    `yaml:"max_retries,omitempty"`
	RetryBaseDelay  string  `yaml:"retry_base_delay,omitempty"`
	RetryMaxDelay   string  `yaml:"retry_max_delay,omitempty"`
	RetryMultiplier float64 `yaml:"retry_multiplier,omitempty"`

	FailureThreshold uint32 `yaml:"failure_threshold,omitempty"`
	RecoveryTimeout  string `yaml:"recovery_timeout,omitempty"`

	HyperliquidBaseURL string `yaml:"hyperliquid_base_url,omitempty"`
	WalDir             string `yaml:"wal_dir,omitempty"`

	TLSDomains   []string `yaml:"tls_domains,omitempty"`
	CertCacheDir string   `yaml:"cert_cache_dir,omitempty"`
}

type sourceTmp struct {
	ID                string `yaml:"id"`
	Enabled           *bool  `yaml:"enabled,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"`
	Priority          int    `yaml:"priority,omitempty"`
}

// Get loads the configuration from --config, or builds one from CLI
// flags when no file is given.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	listen := flag.String("listen", DefaultListenAddr, "HTTP listen address")
	simulate := flag.Bool("simulate", true, "record swaps without sending them")
	assetsFlag := flag.String("assets", "GALA,TOWN", "comma-separated asset symbols")
	stableFlag := flag.String("stable", "GUSDC", "USD-pegged quote asset symbol")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := withDefaults(configTmp{})
	cfg.ListenAddr = *listen
	cfg.SimulationMode = *simulate
	cfg.StableAsset = strings.TrimSpace(strings.ToUpper(*stableFlag))

	for _, symbol := range strings.Split(*assetsFlag, ",") {
		symbol = strings.TrimSpace(strings.ToUpper(symbol))
		if symbol == "" || symbol == cfg.StableAsset {
			continue
		}
		cfg.Assets = append(cfg.Assets, AssetConfig{
			Symbol:      symbol,
			Binance:     symbol + "USDT",
			Bybit:       symbol + "USDT",
			Hyperliquid: symbol,
		})
	}
	cfg.Assets = append(cfg.Assets, AssetConfig{Symbol: cfg.StableAsset, Stablecoin: true})

	return cfg, validate(cfg)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(f)
}

// Parse decodes a YAML document into a validated Config.
func Parse(raw []byte) (Config, error) {
	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, fmt.Errorf("decode yaml config: %w", err)
	}

	cfg := withDefaults(tmp)
	if tmp.VarianceThresholdStr != "" {
		threshold, err := decimal.NewFromString(tmp.VarianceThresholdStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'variance_threshold' param in yaml config (must be a decimal): %w", err)
		}
		cfg.VarianceThresholdPercent = threshold
	}
	if err := applyDurations(tmp, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, validate(cfg)
}

// applyDurations parses the duration-typed yaml params, which are kept
// as strings so values like "30s" work.
func applyDurations(tmp configTmp, cfg *Config) error {
	for _, p := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"freshness_threshold", tmp.FreshnessThreshold, &cfg.FreshnessThreshold},
		{"price_ttl", tmp.PriceTTL, &cfg.PriceTTL},
		{"quote_ttl", tmp.QuoteTTL, &cfg.QuoteTTL},
		{"balance_ttl", tmp.BalanceTTL, &cfg.BalanceTTL},
		{"fetch_timeout", tmp.FetchTimeout, &cfg.FetchTimeout},
		{"refresh_interval", tmp.RefreshInterval, &cfg.RefreshInterval},
		{"retry_base_delay", tmp.RetryBaseDelay, &cfg.RetryBaseDelay},
		{"retry_max_delay", tmp.RetryMaxDelay, &cfg.RetryMaxDelay},
		{"recovery_timeout", tmp.RecoveryTimeout, &cfg.RecoveryTimeout},
	} {
		if p.raw == "" {
			continue
		}
		d, err := time.ParseDuration(p.raw)
		if err != nil {
			return fmt.Errorf("incorrect '%s' param in yaml config (must be a duration like 30s): %w", p.name, err)
		}
		*p.dst = d
	}
	return nil
}

func withDefaults(tmp configTmp) Config {
	cfg := Config{
		ListenAddr:               DefaultListenAddr,
		SimulationMode:           true,
		Assets:                   tmp.Assets,
		Priority:                 DefaultPriority,
		StableAsset:              tmp.StableAsset,
		VarianceThresholdPercent: DefaultVarianceThreshold,
		AveragingEnabled:         true,
		FreshnessThreshold:       DefaultFreshnessThreshold,
		PriceTTL:                 DefaultPriceTTL,
		QuoteTTL:                 DefaultQuoteTTL,
		BalanceTTL:               DefaultBalanceTTL,
		CacheCapacity:            DefaultCacheCapacity,
		FetchTimeout:             DefaultFetchTimeout,
		RefreshInterval:          DefaultRefreshInterval,
		MaxRetries:               DefaultMaxRetries,
		RetryBaseDelay:           DefaultRetryBaseDelay,
		RetryMaxDelay:            DefaultRetryMaxDelay,
		RetryMultiplier:          DefaultRetryMultiplier,
		FailureThreshold:         DefaultFailureThreshold,
		RecoveryTimeout:          DefaultRecoveryTimeout,
		HyperliquidBaseURL:       DefaultHyperliquidAPIURL,
		WalDir:                   tmp.WalDir,
		TLSDomains:               tmp.TLSDomains,
		CertCacheDir:             tmp.CertCacheDir,
	}

	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if tmp.SimulationMode != nil {
		cfg.SimulationMode = *tmp.SimulationMode
	}
	if len(tmp.Priority) > 0 {
		cfg.Priority = tmp.Priority
	}
	if tmp.AveragingEnabled != nil {
		cfg.AveragingEnabled = *tmp.AveragingEnabled
	}
	if tmp.CacheCapacity > 0 {
		cfg.CacheCapacity = tmp.CacheCapacity
	}
	if tmp.MaxRetries != nil {
		cfg.MaxRetries = *tmp.MaxRetries
	}
	if tmp.RetryMultiplier > 0 {
		cfg.RetryMultiplier = tmp.RetryMultiplier
	}
	if tmp.FailureThreshold > 0 {
		cfg.FailureThreshold = tmp.FailureThreshold
	}
	if tmp.HyperliquidBaseURL != "" {
		cfg.HyperliquidBaseURL = tmp.HyperliquidBaseURL
	}

	cfg.Sources = sourcesWithDefaults(tmp.Sources, cfg.Priority)
	return cfg
}

// sourcesWithDefaults fills in every known source, enabled unless the
// config says otherwise.
func sourcesWithDefaults(tmp []sourceTmp, priority []string) []domain.SourceConfig {
	byID := make(map[string]sourceTmp, len(tmp))
	for _, s := range tmp {
		byID[s.ID] = s
	}

	known := []string{"binance", "bybit", "hyperliquid"}
	sources := make([]domain.SourceConfig, 0, len(known))
	for i, id := range known {
		rpm := DefaultRequestsPerMinute
		if id == "hyperliquid" {
			rpm = DefaultHyperliquidRPM
		}
		sc := domain.SourceConfig{
			ID:                id,
			Enabled:           true,
			RequestsPerMinute: rpm,
			Priority:          priorityOf(priority, id, i),
		}
		if s, ok := byID[id]; ok {
			if s.Enabled != nil {
				sc.Enabled = *s.Enabled
			}
			if s.RequestsPerMinute > 0 {
				sc.RequestsPerMinute = s.RequestsPerMinute
			}
			if s.Priority > 0 {
				sc.Priority = s.Priority
			}
		}
		sources = append(sources, sc)
	}
	return sources
}

func priorityOf(priority []string, id string, fallback int) int {
	for i, p := range priority {
		if p == id {
			return i + 1
		}
	}
	return fallback + 1
}

func validate(cfg Config) error {
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("config must list at least one asset")
	}
	seen := make(map[string]bool)
	for _, a := range cfg.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset entry without a symbol")
		}
		if seen[a.Symbol] {
			return fmt.Errorf("duplicate asset symbol %q", a.Symbol)
		}
		seen[a.Symbol] = true
	}
	if cfg.VarianceThresholdPercent.IsNegative() {
		return fmt.Errorf("variance_threshold must not be negative")
	}
	enabled := 0
	for _, s := range cfg.Sources {
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	return nil
}

// AssetIDs returns the shared ids of every configured asset.
func (c Config) AssetIDs() []domain.AssetID {
	ids := make([]domain.AssetID, 0, len(c.Assets))
	for _, a := range c.Assets {
		ids = append(ids, a.ID())
	}
	return ids
}

// Stablecoins returns the symbols explicitly configured as USD-pegged.
func (c Config) Stablecoins() []string {
	var out []string
	for _, a := range c.Assets {
		if a.Stablecoin {
			out = append(out, a.Symbol)
		}
	}
	return out
}

// SymbolsFor returns the asset-id to provider-symbol mapping for one
// source id.
func (c Config) SymbolsFor(source string) map[domain.AssetID]string {
	out := make(map[domain.AssetID]string)
	for _, a := range c.Assets {
		var sym string
		switch source {
		case "binance":
			sym = a.Binance
		case "bybit":
			sym = a.Bybit
		case "hyperliquid":
			sym = a.Hyperliquid
		}
		if sym != "" {
			out[a.ID()] = sym
		}
	}
	return out
}

// Quotas returns the per-source requests-per-minute map for the limiter.
func (c Config) Quotas() map[string]int {
	out := make(map[string]int, len(c.Sources))
	for _, s := range c.Sources {
		out[s.ID] = s.RequestsPerMinute
	}
	return out
}

// SourceEnabled reports whether the source id is enabled.
func (c Config) SourceEnabled(id string) bool {
	for _, s := range c.Sources {
		if s.ID == id {
			return s.Enabled
		}
	}
	return false
}

// StableAssetID returns the id of the configured USD-pegged quote asset.
func (c Config) StableAssetID() domain.AssetID {
	return domain.NewAssetID(c.StableAsset, "Unit", "none", "none")
}
