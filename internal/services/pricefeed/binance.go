package pricefeed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// BinanceSource fetches spot prices from the Binance public ticker API.
type BinanceSource struct {
	client  *binance.Client
	limiter Limiter
	book    assetBook
}

// NewBinanceSource creates the Binance adapter. symbols maps shared asset
// ids to Binance ticker symbols (e.g. "GALAUSDT"); stablecoins lists
// asset symbols pinned to 1.0 USD.
func NewBinanceSource(client *binance.Client, limiter Limiter, symbols map[domain.AssetID]string, stablecoins []string) *BinanceSource {
	return &BinanceSource{
		client:  client,
		limiter: limiter,
		book:    newAssetBook(symbols, stablecoins),
	}
}

func (s *BinanceSource) ID() string { return SourceBinance }

func (s *BinanceSource) FetchPrices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.PricePoint, error) {
	if !s.limiter.Allow(SourceBinance) {
		return nil, rateLimited(SourceBinance)
	}

	now := time.Now()
	out := make(map[domain.AssetID]domain.PricePoint, len(assets))
	bySymbol := make(map[string]domain.AssetID)
	var query []string

	for _, asset := range assets {
		if s.book.isStable(asset) {
			out[asset] = stablePoint(asset, SourceBinance, now)
			continue
		}
		sym, ok := s.book.symbolFor(asset)
		if !ok {
			continue
		}
		query = append(query, sym)
		bySymbol[sym] = asset
	}
	if len(query) == 0 {
		return out, nil
	}

	prices, err := s.client.NewListPricesService().Symbols(query).Do(ctx)
	if err != nil {
		return nil, unavailable(SourceBinance, err)
	}

	for _, p := range prices {
		asset, ok := bySymbol[p.Symbol]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			// "no price" answers stay absent, never defaulted
			continue
		}
		out[asset] = domain.PricePoint{
			Asset:      asset,
			PriceUSD:   price,
			Source:     SourceBinance,
			ObservedAt: now,
		}
	}
	return out, nil
}
