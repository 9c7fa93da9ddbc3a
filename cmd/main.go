// Command priceguard runs the multi-source price aggregation service
// for GalaChain assets. It fetches prices from Binance, Bybit and
// Hyperliquid, reconciles them into one authoritative price per asset
// and serves the result over HTTP with an SSE stream.
//
// Usage:
//
//	priceguard --config config.yaml
//	priceguard setup            (interactive configuration wizard)
//	priceguard (uses CLI arguments)
//
// Optional environment variables:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
//	BYBIT_API_KEY, BYBIT_API_SECRET
//	HYPERLIQUID_PRIVATE_KEY (required for live trading)
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/priceguard/config"
	"github.com/vadiminshakov/priceguard/internal/clients"
	"github.com/vadiminshakov/priceguard/internal/services/aggregator"
	"github.com/vadiminshakov/priceguard/internal/services/pricefeed"
	"github.com/vadiminshakov/priceguard/internal/services/reconciler"
	"github.com/vadiminshakov/priceguard/internal/services/trader"
	"github.com/vadiminshakov/priceguard/internal/setup"
	"github.com/vadiminshakov/priceguard/internal/storage/pricelog"
	"github.com/vadiminshakov/priceguard/internal/web"
	"github.com/vadiminshakov/priceguard/pkg/backoff"
	"github.com/vadiminshakov/priceguard/pkg/breaker"
	"github.com/vadiminshakov/priceguard/pkg/cache"
	"github.com/vadiminshakov/priceguard/pkg/ratelimit"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func loadConfig() (config.Config, error) {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			return config.Config{}, err
		}
		raw, err := os.ReadFile("config.gen.yaml")
		if err != nil {
			return config.Config{}, err
		}
		return config.Parse(raw)
	}
	return config.Get()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.Quotas())

	retry := backoff.New(
		backoff.WithMaxRetries(cfg.MaxRetries),
		backoff.WithBaseDelay(cfg.RetryBaseDelay),
		backoff.WithMaxDelay(cfg.RetryMaxDelay),
		backoff.WithMultiplier(cfg.RetryMultiplier),
	)

	breakerOpts := []breaker.Option{
		breaker.WithFailureThreshold(cfg.FailureThreshold),
		breaker.WithRecoveryTimeout(cfg.RecoveryTimeout),
		// a denial from our own rate limiter is not a dependency failure
		breaker.WithFailurePredicate(func(err error) bool {
			return !pricefeed.IsRateLimited(err)
		}),
	}
	sourceBreakers := breaker.NewRegistry(breakerOpts...)
	dexBreakers := breaker.NewRegistry(breakerOpts...)

	prices := cache.New(cache.WithCapacity(cfg.CacheCapacity))
	quotes := cache.New(cache.WithCapacity(cfg.CacheCapacity))
	balances := cache.New(cache.WithCapacity(cfg.CacheCapacity))

	gate := aggregator.NewFreshnessGate(cfg.FreshnessThreshold)

	hyperliquidKey := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
	if !cfg.SimulationMode && hyperliquidKey == "" {
		return errors.New("live trading requires HYPERLIQUID_PRIVATE_KEY; missing credentials never silently degrade to simulation")
	}

	trail, err := pricelog.NewWALTrail(cfg.WalDir)
	if err != nil {
		return err
	}
	defer trail.Close()

	dex, err := clients.NewHyperliquidClient(
		hyperliquidKey,
		cfg.HyperliquidBaseURL,
		cfg.SymbolsFor("hyperliquid"),
		cfg.StableAssetID(),
	)
	if err != nil {
		return err
	}

	var sources []pricefeed.Source
	if cfg.SourceEnabled(pricefeed.SourceBinance) {
		client := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		sources = append(sources, pricefeed.NewBinanceSource(client, limiter, cfg.SymbolsFor("binance"), cfg.Stablecoins()))
	}
	if cfg.SourceEnabled(pricefeed.SourceBybit) {
		client := clients.NewBybitClient(os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))
		sources = append(sources, pricefeed.NewBybitSource(client, limiter, cfg.SymbolsFor("bybit"), cfg.Stablecoins()))
	}
	if cfg.SourceEnabled(pricefeed.SourceHyperliquid) {
		sources = append(sources, pricefeed.NewHyperliquidSource(dex.Info(), limiter, cfg.SymbolsFor("hyperliquid"), cfg.Stablecoins()))
	}

	enabled := make(map[string]bool, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		enabled[sc.ID] = sc.Enabled
	}
	rec := reconciler.New(reconciler.Config{
		VarianceThresholdPercent: cfg.VarianceThresholdPercent,
		AveragingEnabled:         cfg.AveragingEnabled,
		Priority:                 cfg.Priority,
		Enabled:                  enabled,
	})

	agg := aggregator.New(sources, rec, sourceBreakers, retry, prices, gate, trail, logger, aggregator.Config{
		Assets:          cfg.AssetIDs(),
		Sources:         cfg.Sources,
		PriceTTL:        cfg.PriceTTL,
		FetchTimeout:    cfg.FetchTimeout,
		RefreshInterval: cfg.RefreshInterval,
	})

	trd := trader.New(dex, gate, dexBreakers, retry, quotes, balances, logger, trader.Config{
		QuoteTTL:       cfg.QuoteTTL,
		BalanceTTL:     cfg.BalanceTTL,
		SimulationMode: cfg.SimulationMode,
	})

	server := web.NewServer(cfg.ListenAddr, agg, trail, cfg.AssetIDs(), logger).WithBalances(trd)

	logger.Info("priceguard starting",
		zap.Int("sources", len(sources)),
		zap.Int("assets", len(cfg.Assets)),
		zap.Bool("simulation_mode", cfg.SimulationMode),
		zap.String("listen", cfg.ListenAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agg.Run(gctx)
	})
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.TLSDomains, cfg.CertCacheDir)
		}
		return server.Start(gctx)
	})

	return g.Wait()
}
