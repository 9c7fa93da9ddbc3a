package pricelog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

func rec(symbol, price string) domain.ReconciledPrice {
	return domain.ReconciledPrice{
		Asset:             domain.NewAssetID(symbol, "Unit", "none", "none"),
		Recommended:       decimal.RequireFromString(price),
		RecommendedSource: domain.SourceAverage,
		ComputedAt:        time.Now().UTC(),
	}
}

func TestWALTrail(t *testing.T) {
	trail, err := NewWALTrail(t.TempDir())
	require.NoError(t, err)
	defer trail.Close()

	require.NoError(t, trail.Append(rec("GALA", "0.0185")))
	require.NoError(t, trail.Append(rec("TOWN", "0.004")))
	require.NoError(t, trail.Append(rec("GALA", "0.0190")))

	t.Run("after returns entries past the index", func(t *testing.T) {
		records, err := trail.After(0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.True(t, records[0].Price.Recommended.Equal(decimal.RequireFromString("0.0185")))

		records, err = trail.After(records[1].Index)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "GALA", records[0].Price.Asset.Symbol())
	})

	t.Run("after the newest index is empty", func(t *testing.T) {
		records, err := trail.After(trail.CurrentIndex())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("trail for filters by asset", func(t *testing.T) {
		records, err := trail.TrailFor(domain.NewAssetID("GALA", "Unit", "none", "none"), 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[1].Price.Recommended.Equal(decimal.RequireFromString("0.0190")))
	})

	t.Run("append requires an asset", func(t *testing.T) {
		err := trail.Append(domain.ReconciledPrice{})
		assert.Error(t, err)
	})
}
