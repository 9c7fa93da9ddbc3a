// Package reconciler combines per-source price observations for the same
// asset set into one authoritative price per asset.
package reconciler

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Config is the reconciliation policy, loaded once at startup.
type Config struct {
	// VarianceThresholdPercent is the spread above which averaging is
	// abandoned in favor of the priority list.
	VarianceThresholdPercent decimal.Decimal
	// AveragingEnabled allows recommending the mean when sources agree.
	AveragingEnabled bool
	// Priority lists source ids in preference order, used when sources
	// disagree. Off-chain market sources usually come before the
	// on-chain one, whose price can be skewed by thin liquidity.
	Priority []string
	// Enabled marks which sources may be recommended at all.
	Enabled map[string]bool
}

// DefaultConfig matches the shipped policy: 10% threshold, averaging on,
// off-chain sources preferred over the DEX.
func DefaultConfig() Config {
	return Config{
		VarianceThresholdPercent: decimal.NewFromInt(10),
		AveragingEnabled:         true,
		Priority:                 []string{"binance", "bybit", "hyperliquid"},
		Enabled: map[string]bool{
			"binance":     true,
			"bybit":       true,
			"hyperliquid": true,
		},
	}
}

// Reconciler derives authoritative prices from per-source results. It is
// a stateless function over its inputs; every pass recomputes from
// scratch.
type Reconciler struct {
	cfg Config
	now func() time.Time
}

// New creates a Reconciler with the given policy.
func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg, now: time.Now}
}

// Reconcile produces one ReconciledPrice per asset present in at least
// one source result. Assets absent from every source are absent from the
// output: absence is not an error and is never replaced by a default.
func (r *Reconciler) Reconcile(perSource []map[domain.AssetID]domain.PricePoint) map[domain.AssetID]domain.ReconciledPrice {
	byAsset := make(map[domain.AssetID]map[string]decimal.Decimal)
	for _, result := range perSource {
		for asset, point := range result {
			if !point.PriceUSD.IsPositive() {
				continue
			}
			if byAsset[asset] == nil {
				byAsset[asset] = make(map[string]decimal.Decimal)
			}
			byAsset[asset][point.Source] = point.PriceUSD
		}
	}

	now := r.now()
	out := make(map[domain.AssetID]domain.ReconciledPrice, len(byAsset))
	for asset, prices := range byAsset {
		out[asset] = r.reconcileAsset(asset, prices, now)
	}
	return out
}

func (r *Reconciler) reconcileAsset(asset domain.AssetID, prices map[string]decimal.Decimal, now time.Time) domain.ReconciledPrice {
	var (
		sum      decimal.Decimal
		min, max decimal.Decimal
		first    = true
	)
	for _, price := range prices {
		sum = sum.Add(price)
		if first {
			min, max = price, price
			first = false
			continue
		}
		if price.LessThan(min) {
			min = price
		}
		if price.GreaterThan(max) {
			max = price
		}
	}

	average := sum.Div(decimal.NewFromInt(int64(len(prices))))
	variance := decimal.Zero
	if average.IsPositive() {
		variance = max.Sub(min).Div(average).Mul(hundred)
	}

	rec := domain.ReconciledPrice{
		Asset:           asset,
		PerSource:       prices,
		VariancePercent: variance,
		ComputedAt:      now,
	}

	if r.cfg.AveragingEnabled && variance.LessThan(r.cfg.VarianceThresholdPercent) {
		rec.Recommended = average
		rec.RecommendedSource = domain.SourceAverage
		return rec
	}

	// sources disagree: walk the priority list and take the first
	// enabled source that reported this asset
	for _, sourceID := range r.cfg.Priority {
		if !r.cfg.Enabled[sourceID] {
			continue
		}
		if price, ok := prices[sourceID]; ok {
			rec.Recommended = price
			rec.RecommendedSource = sourceID
			return rec
		}
	}

	// priority list exhausted, fall back to the mean
	rec.Recommended = average
	rec.RecommendedSource = domain.SourceAverage
	return rec
}
