package pricefeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// HyperliquidSource reads on-chain mid prices from the Hyperliquid Info
// API. This is the DEX-side source: its prices reflect actual pool state
// and can be skewed by thin liquidity, which is why the default
// reconciliation priority prefers the off-chain market sources.
type HyperliquidSource struct {
	info    *hyperliquid.Info
	limiter Limiter
	book    assetBook
}

// NewHyperliquidSource creates the on-chain adapter. symbols maps shared
// asset ids to Hyperliquid coin names (e.g. "GALA").
func NewHyperliquidSource(info *hyperliquid.Info, limiter Limiter, symbols map[domain.AssetID]string, stablecoins []string) *HyperliquidSource {
	return &HyperliquidSource{
		info:    info,
		limiter: limiter,
		book:    newAssetBook(symbols, stablecoins),
	}
}

func (s *HyperliquidSource) ID() string { return SourceHyperliquid }

func (s *HyperliquidSource) FetchPrices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.PricePoint, error) {
	if !s.limiter.Allow(SourceHyperliquid) {
		return nil, rateLimited(SourceHyperliquid)
	}

	now := time.Now()
	out := make(map[domain.AssetID]domain.PricePoint, len(assets))
	byCoin := make(map[string]domain.AssetID)

	for _, asset := range assets {
		if s.book.isStable(asset) {
			out[asset] = stablePoint(asset, SourceHyperliquid, now)
			continue
		}
		if coin, ok := s.book.symbolFor(asset); ok {
			byCoin[coin] = asset
		}
	}
	if len(byCoin) == 0 {
		return out, nil
	}

	mids, err := s.info.AllMids(ctx)
	if err != nil {
		return nil, unavailable(SourceHyperliquid, err)
	}

	for coin, asset := range byCoin {
		mid, ok := mids[coin]
		if !ok || mid == "" {
			// the DEX has no market for this asset, leave it absent
			continue
		}
		price, err := decimal.NewFromString(mid)
		if err != nil || !price.IsPositive() {
			continue
		}
		out[asset] = domain.PricePoint{
			Asset:      asset,
			PriceUSD:   price,
			Source:     SourceHyperliquid,
			ObservedAt: now,
		}
	}
	return out, nil
}
