package pricefeed

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

func priceOf(t *testing.T, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

var (
	gala  = domain.NewAssetID("GALA", "Unit", "none", "none")
	gusdc = domain.NewAssetID("GUSDC", "Unit", "none", "none")
)

func TestSourceError(t *testing.T) {
	t.Run("kind predicates", func(t *testing.T) {
		assert.True(t, IsRateLimited(rateLimited(SourceBinance)))
		assert.False(t, IsUnavailable(rateLimited(SourceBinance)))
		assert.True(t, IsUnavailable(unavailable(SourceBybit, errors.New("boom"))))
		assert.False(t, IsRateLimited(errors.New("plain")))
	})

	t.Run("wrapped errors are still recognized", func(t *testing.T) {
		err := errors.Wrap(unavailable(SourceHyperliquid, errors.New("timeout")), "fetch")
		assert.True(t, IsUnavailable(err))
	})
}

func TestAdapters_RateLimited(t *testing.T) {
	assets := []domain.AssetID{gala}

	sources := []Source{
		NewBinanceSource(nil, denyAll{}, map[domain.AssetID]string{gala: "GALAUSDT"}, nil),
		NewBybitSource(nil, denyAll{}, map[domain.AssetID]string{gala: "GALAUSDT"}, nil),
		NewHyperliquidSource(nil, denyAll{}, map[domain.AssetID]string{gala: "GALA"}, nil),
	}
	for _, src := range sources {
		t.Run(src.ID(), func(t *testing.T) {
			_, err := src.FetchPrices(context.Background(), assets)
			require.Error(t, err)
			assert.True(t, IsRateLimited(err), "denied call must surface as rate-limited, not invoke the provider")
		})
	}
}

func TestAdapters_StablecoinPinning(t *testing.T) {
	// only GUSDC is configured as a stablecoin; GALA is unsupported here,
	// so no provider call happens and the client may be nil
	src := NewBinanceSource(nil, allowAll{}, map[domain.AssetID]string{gusdc: "GUSDCUSDT"}, []string{"GUSDC"})

	out, err := src.FetchPrices(context.Background(), []domain.AssetID{gusdc})
	require.NoError(t, err)
	require.Contains(t, out, gusdc)
	assert.True(t, out[gusdc].PriceUSD.Equal(priceOf(t, "1")))
	assert.Equal(t, SourceBinance, out[gusdc].Source)
}

func TestAdapters_UnsupportedAssetsAbsent(t *testing.T) {
	unknown := domain.NewAssetID("WAT", "Unit", "none", "none")
	src := NewHyperliquidSource(nil, allowAll{}, map[domain.AssetID]string{}, nil)

	out, err := src.FetchPrices(context.Background(), []domain.AssetID{unknown})
	require.NoError(t, err)
	assert.Empty(t, out, "unsupported asset is absence, not an error")
}

func TestAssetBook(t *testing.T) {
	book := newAssetBook(map[domain.AssetID]string{gala: "GALAUSDT", gusdc: "GUSDCUSDT"}, []string{"gusdc"})

	sym, ok := book.symbolFor(gala)
	require.True(t, ok)
	assert.Equal(t, "GALAUSDT", sym)

	assert.True(t, book.isStable(gusdc), "stablecoin match is case-insensitive on the configured symbol")
	assert.False(t, book.isStable(gala))

	_, ok = book.symbolFor(domain.NewAssetID("WAT", "Unit", "none", "none"))
	assert.False(t, ok)
}
