// Package trader is the trade-side boundary. It wraps the DEX SDK in
// caching, retry and circuit breaking, and refuses to move value unless
// every involved asset passes the freshness gate. Simulation mode is an
// explicit configuration flag, never inferred from missing credentials.
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/priceguard/internal/domain"
	"github.com/vadiminshakov/priceguard/internal/services/aggregator"
	"github.com/vadiminshakov/priceguard/pkg/backoff"
	"github.com/vadiminshakov/priceguard/pkg/breaker"
	"github.com/vadiminshakov/priceguard/pkg/cache"
)

// Breaker dependency ids for the DEX endpoints.
const (
	DepQuote    = "dex.quote"
	DepBalances = "dex.balances"
	DepSwap     = "dex.swap"
)

// Dex is the vendor SDK boundary the trader talks to.
type Dex interface {
	QuoteExactInput(ctx context.Context, assetIn, assetOut domain.AssetID, amount decimal.Decimal) (domain.Quote, error)
	UserAssets(ctx context.Context) ([]domain.AssetBalance, error)
	Swap(ctx context.Context, intent domain.SwapIntent) (orderID string, err error)
}

// Config holds the trader knobs.
type Config struct {
	QuoteTTL   time.Duration
	BalanceTTL time.Duration
	// SimulationMode makes Swap record the trade without sending it.
	SimulationMode bool
}

// Trader executes guarded quotes, balance lookups and swaps.
type Trader struct {
	dex      Dex
	gate     *aggregator.FreshnessGate
	breakers *breaker.Registry
	retry    *backoff.Policy
	quotes   *cache.Cache
	balances *cache.Cache
	logger   *zap.Logger
	cfg      Config
}

// New wires the trader.
func New(
	dex Dex,
	gate *aggregator.FreshnessGate,
	breakers *breaker.Registry,
	retry *backoff.Policy,
	quotes *cache.Cache,
	balances *cache.Cache,
	logger *zap.Logger,
	cfg Config,
) *Trader {
	return &Trader{
		dex:      dex,
		gate:     gate,
		breakers: breakers,
		retry:    retry,
		quotes:   quotes,
		balances: balances,
		logger:   logger,
		cfg:      cfg,
	}
}

// Quote returns the DEX answer for an exact-input swap, memoized for the
// quote TTL.
func (t *Trader) Quote(ctx context.Context, assetIn, assetOut domain.AssetID, amount decimal.Decimal) (domain.Quote, error) {
	key := fmt.Sprintf("quotes:%s:%s:%s", assetIn, assetOut, amount.String())
	if v, ok := t.quotes.Get(key); ok {
		return v.(domain.Quote), nil
	}

	result, err := t.breakers.Execute(DepQuote, func() (any, error) {
		return backoff.RetryWithData(t.retry, ctx, func(ctx context.Context) (domain.Quote, error) {
			return t.dex.QuoteExactInput(ctx, assetIn, assetOut, amount)
		})
	})
	if err != nil {
		return domain.Quote{}, errors.Wrap(err, "quote")
	}

	quote := result.(domain.Quote)
	t.quotes.Set(key, quote, t.cfg.QuoteTTL)
	return quote, nil
}

// Balances returns the wallet holdings, memoized for the balance TTL.
func (t *Trader) Balances(ctx context.Context) ([]domain.AssetBalance, error) {
	const key = "balances:user"
	if v, ok := t.balances.Get(key); ok {
		return v.([]domain.AssetBalance), nil
	}

	result, err := t.breakers.Execute(DepBalances, func() (any, error) {
		return backoff.RetryWithData(t.retry, ctx, func(ctx context.Context) ([]domain.AssetBalance, error) {
			return t.dex.UserAssets(ctx)
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "balances")
	}

	balances := result.([]domain.AssetBalance)
	t.balances.Set(key, balances, t.cfg.BalanceTTL)
	return balances, nil
}

// Swap executes (or simulates) intent. Both assets must pass the
// freshness gate first; a stale price aborts with ErrStalePrice before
// anything touches the chain.
func (t *Trader) Swap(ctx context.Context, intent domain.SwapIntent) (*domain.SwapResult, error) {
	if err := t.gate.Require(intent.AssetIn, intent.AssetOut); err != nil {
		return nil, err
	}
	if !intent.AmountIn.IsPositive() {
		return nil, errors.Errorf("swap amount must be positive, got %s", intent.AmountIn)
	}

	quote, err := t.Quote(ctx, intent.AssetIn, intent.AssetOut, intent.AmountIn)
	if err != nil {
		return nil, err
	}

	if t.cfg.SimulationMode {
		result := &domain.SwapResult{
			Intent:     intent,
			OutAmount:  quote.OutAmount,
			OrderID:    "sim-" + uuid.NewString(),
			Simulated:  true,
			ExecutedAt: time.Now(),
		}
		t.logger.Info("simulated swap",
			zap.String("intent", intent.String()),
			zap.String("out_amount", quote.OutAmount.String()),
		)
		return result, nil
	}

	orderID, err := t.breakers.Execute(DepSwap, func() (any, error) {
		// no retry here: a swap is not idempotent
		return t.dex.Swap(ctx, intent)
	})
	if err != nil {
		return nil, errors.Wrap(err, "swap")
	}

	// holdings changed, cached balances are no longer trustworthy
	t.balances.FlushAll()

	result := &domain.SwapResult{
		Intent:     intent,
		OutAmount:  quote.OutAmount,
		OrderID:    orderID.(string),
		ExecutedAt: time.Now(),
	}
	t.logger.Info("swap executed",
		zap.String("intent", intent.String()),
		zap.String("order_id", result.OrderID),
	)
	return result, nil
}
