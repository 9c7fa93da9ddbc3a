package pricefeed

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// assetBook maps shared asset ids to one provider's symbol vocabulary
// and records which assets are configured USD-pegged stablecoins.
type assetBook struct {
	symbols map[domain.AssetID]string
	stable  map[domain.AssetID]bool
}

func newAssetBook(symbols map[domain.AssetID]string, stablecoins []string) assetBook {
	book := assetBook{
		symbols: make(map[domain.AssetID]string, len(symbols)),
		stable:  make(map[domain.AssetID]bool),
	}
	for asset, sym := range symbols {
		book.symbols[asset] = sym
	}
	// stablecoins are configured by symbol and need no provider mapping
	for _, sc := range stablecoins {
		book.stable[domain.NewAssetID(strings.ToUpper(sc), "Unit", "none", "none")] = true
	}
	return book
}

func (b assetBook) symbolFor(asset domain.AssetID) (string, bool) {
	sym, ok := b.symbols[asset]
	return sym, ok
}

func (b assetBook) isStable(asset domain.AssetID) bool {
	return b.stable[asset]
}

// stablePoint pins an explicitly configured stablecoin to 1.0 USD.
func stablePoint(asset domain.AssetID, source string, now time.Time) domain.PricePoint {
	return domain.PricePoint{
		Asset:      asset,
		PriceUSD:   decimal.NewFromInt(1),
		Source:     source,
		ObservedAt: now,
	}
}
