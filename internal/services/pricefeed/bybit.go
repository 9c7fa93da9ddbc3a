package pricefeed

import (
	"context"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// BybitSource fetches spot prices from the Bybit V5 market API. All
// tickers are pulled in one call and filtered locally, which keeps the
// adapter to a single request per fetch regardless of asset count.
type BybitSource struct {
	client  *bybit.Client
	limiter Limiter
	book    assetBook
}

// NewBybitSource creates the Bybit adapter. symbols maps shared asset
// ids to Bybit spot symbols (e.g. "GALAUSDT").
func NewBybitSource(client *bybit.Client, limiter Limiter, symbols map[domain.AssetID]string, stablecoins []string) *BybitSource {
	return &BybitSource{
		client:  client,
		limiter: limiter,
		book:    newAssetBook(symbols, stablecoins),
	}
}

func (s *BybitSource) ID() string { return SourceBybit }

func (s *BybitSource) FetchPrices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.PricePoint, error) {
	if !s.limiter.Allow(SourceBybit) {
		return nil, rateLimited(SourceBybit)
	}

	now := time.Now()
	out := make(map[domain.AssetID]domain.PricePoint, len(assets))
	bySymbol := make(map[string]domain.AssetID)

	for _, asset := range assets {
		if s.book.isStable(asset) {
			out[asset] = stablePoint(asset, SourceBybit, now)
			continue
		}
		if sym, ok := s.book.symbolFor(asset); ok {
			bySymbol[sym] = asset
		}
	}
	if len(bySymbol) == 0 {
		return out, nil
	}

	result, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, unavailable(SourceBybit, err)
	}

	for _, ticker := range result.Result.Spot.List {
		asset, ok := bySymbol[string(ticker.Symbol)]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(ticker.LastPrice)
		if err != nil || !price.IsPositive() {
			continue
		}
		out[asset] = domain.PricePoint{
			Asset:      asset,
			PriceUSD:   price,
			Source:     SourceBybit,
			ObservedAt: now,
		}
	}
	return out, nil
}
