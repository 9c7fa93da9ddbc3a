package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/priceguard/internal/domain"
	"github.com/vadiminshakov/priceguard/internal/services/aggregator"
	"go.uber.org/zap"
)

type fakePriceService struct {
	prices  map[domain.AssetID]domain.ReconciledPrice
	stale   map[domain.AssetID]bool
	sources []domain.SourceStatus
	err     error
}

func (f *fakePriceService) Prices(_ context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.ReconciledPrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[domain.AssetID]domain.ReconciledPrice)
	for _, a := range assets {
		if rec, ok := f.prices[a]; ok {
			out[a] = rec
		}
	}
	return out, nil
}

func (f *fakePriceService) Tradeable(assets ...domain.AssetID) error {
	for _, a := range assets {
		if f.stale[a] {
			return errors.Errorf("price for %s is stale", a.Symbol())
		}
	}
	return nil
}

func (f *fakePriceService) Status() []domain.SourceStatus {
	return f.sources
}

type fakeTrail struct {
	records []domain.ReconciledPriceRecord
}

func (f *fakeTrail) After(index uint64) ([]domain.ReconciledPriceRecord, error) {
	var out []domain.ReconciledPriceRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTrail) TrailFor(asset domain.AssetID, index uint64) ([]domain.ReconciledPriceRecord, error) {
	var out []domain.ReconciledPriceRecord
	for _, r := range f.records {
		if r.Index > index && r.Price.Asset == asset {
			out = append(out, r)
		}
	}
	return out, nil
}

func asset(symbol string) domain.AssetID {
	return domain.NewAssetID(symbol, "Unit", "none", "none")
}

func reconciled(symbol, price string) domain.ReconciledPrice {
	return domain.ReconciledPrice{
		Asset:             asset(symbol),
		Recommended:       decimal.RequireFromString(price),
		RecommendedSource: domain.SourceAverage,
		ComputedAt:        time.Now().UTC(),
	}
}

func newTestServer(svc *fakePriceService, trail trailReader) *Server {
	return NewServer(":0", svc, trail, []domain.AssetID{asset("GALA"), asset("TOWN")}, zap.NewNop())
}

func TestHandlePrices(t *testing.T) {
	svc := &fakePriceService{
		prices: map[domain.AssetID]domain.ReconciledPrice{
			asset("GALA"): reconciled("GALA", "0.0185"),
		},
	}
	srv := newTestServer(svc, nil)

	t.Run("priced asset present, unpriced asset null", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/prices?assets=GALA,TOWN", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var body map[string]*domain.ReconciledPrice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Contains(t, body, "GALA")
		require.Contains(t, body, "TOWN")
		require.NotNil(t, body["GALA"])
		assert.True(t, body["GALA"].Recommended.Equal(decimal.RequireFromString("0.0185")))
		assert.Nil(t, body["TOWN"], "missing price must serialize as null, never zero")
	})

	t.Run("no assets param falls back to configured set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/prices", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]*domain.ReconciledPrice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Len(t, body, 2)
	})

	t.Run("no price anywhere serializes every asset as null", func(t *testing.T) {
		cold := &fakePriceService{err: aggregator.ErrNoPrice}
		req := httptest.NewRequest(http.MethodGet, "/prices?assets=GALA,TOWN", nil)
		rr := httptest.NewRecorder()
		newTestServer(cold, nil).router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]*domain.ReconciledPrice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Contains(t, body, "GALA")
		require.Contains(t, body, "TOWN")
		assert.Nil(t, body["GALA"])
		assert.Nil(t, body["TOWN"])
	})

	t.Run("service error maps to 503", func(t *testing.T) {
		broken := &fakePriceService{err: errors.New("lookup timed out")}
		req := httptest.NewRequest(http.MethodGet, "/prices?assets=GALA", nil)
		rr := httptest.NewRecorder()
		newTestServer(broken, nil).router().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestHandleTradeable(t *testing.T) {
	svc := &fakePriceService{
		stale: map[domain.AssetID]bool{asset("TOWN"): true},
	}
	srv := newTestServer(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/tradeable?assets=GALA,TOWN", nil)
	rr := httptest.NewRecorder()
	srv.router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]tradeableResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body["GALA"].Tradeable)
	assert.False(t, body["TOWN"].Tradeable)
	assert.Contains(t, body["TOWN"].Reason, "stale")
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		sources    []domain.SourceStatus
		wantStatus string
		wantCode   int
	}{
		{
			name: "all closed is ok",
			sources: []domain.SourceStatus{
				{ID: "binance", Enabled: true, CircuitState: "closed"},
				{ID: "bybit", Enabled: true, CircuitState: "closed"},
			},
			wantStatus: "ok",
			wantCode:   http.StatusOK,
		},
		{
			name: "one open is degraded",
			sources: []domain.SourceStatus{
				{ID: "binance", Enabled: true, CircuitState: "open"},
				{ID: "bybit", Enabled: true, CircuitState: "closed"},
			},
			wantStatus: "degraded",
			wantCode:   http.StatusOK,
		},
		{
			name: "all open is down",
			sources: []domain.SourceStatus{
				{ID: "binance", Enabled: true, CircuitState: "open"},
				{ID: "bybit", Enabled: true, CircuitState: "open"},
			},
			wantStatus: "down",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "disabled sources do not count",
			sources: []domain.SourceStatus{
				{ID: "binance", Enabled: true, CircuitState: "closed"},
				{ID: "hyperliquid", Enabled: false, CircuitState: "open"},
			},
			wantStatus: "ok",
			wantCode:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakePriceService{sources: tt.sources}, nil)
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			srv.router().ServeHTTP(rr, req)

			require.Equal(t, tt.wantCode, rr.Code)
			var body healthResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestHandleAnalysis(t *testing.T) {
	trail := &fakeTrail{}
	for i := 1; i <= 20; i++ {
		trail.records = append(trail.records, domain.ReconciledPriceRecord{
			Index: uint64(i),
			Price: reconciled("GALA", decimal.NewFromFloat(0.01+float64(i)*0.001).String()),
		})
	}
	srv := newTestServer(&fakePriceService{}, trail)

	t.Run("computes indicators over the trail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analysis?asset=gala&period=5", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body analysisResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "GALA", body.Asset)
		assert.Equal(t, 20, body.Points)
		assert.NotEmpty(t, body.SMA)
		assert.NotEmpty(t, body.EMA)
		assert.NotEmpty(t, body.RSI)
	})

	t.Run("missing asset param is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analysis", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad period is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analysis?asset=GALA&period=one", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

type fakeBalances struct {
	balances []domain.AssetBalance
	err      error
}

func (f *fakeBalances) Balances(context.Context) ([]domain.AssetBalance, error) {
	return f.balances, f.err
}

func TestHandleBalances(t *testing.T) {
	t.Run("absent without a balance service", func(t *testing.T) {
		srv := newTestServer(&fakePriceService{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/balances", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("returns wallet holdings", func(t *testing.T) {
		srv := newTestServer(&fakePriceService{}, nil).WithBalances(&fakeBalances{
			balances: []domain.AssetBalance{{Symbol: "GALA", Quantity: decimal.RequireFromString("125.5"), Decimals: 8}},
		})
		req := httptest.NewRequest(http.MethodGet, "/balances", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body []domain.AssetBalance
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body, 1)
		assert.Equal(t, "GALA", body[0].Symbol)
	})

	t.Run("error maps to 503", func(t *testing.T) {
		srv := newTestServer(&fakePriceService{}, nil).WithBalances(&fakeBalances{err: errors.New("no account")})
		req := httptest.NewRequest(http.MethodGet, "/balances", nil)
		rr := httptest.NewRecorder()
		srv.router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, uint64(42), parseLastEventID("42", ""))
	assert.Equal(t, uint64(7), parseLastEventID("", "7"))
	assert.Equal(t, uint64(42), parseLastEventID("42", "7"), "header wins over query")
	assert.Equal(t, uint64(0), parseLastEventID("nope", ""))
	assert.Equal(t, uint64(0), parseLastEventID("", ""))
}
