package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SwapIntent describes a swap the caller wants to execute.
type SwapIntent struct {
	AssetIn  AssetID
	AssetOut AssetID
	AmountIn decimal.Decimal
}

func (s *SwapIntent) String() string {
	return fmt.Sprintf("%s -> %s amount: %s", s.AssetIn.Symbol(), s.AssetOut.Symbol(), s.AmountIn.String())
}

// Quote is the DEX answer for an exact-input swap.
type Quote struct {
	AssetIn     AssetID
	AssetOut    AssetID
	AmountIn    decimal.Decimal
	OutAmount   decimal.Decimal
	PriceImpact decimal.Decimal
	FeeTier     int
	QuotedAt    time.Time
}

// SwapResult is the outcome of an executed (or simulated) swap.
type SwapResult struct {
	Intent     SwapIntent
	OutAmount  decimal.Decimal
	OrderID    string
	Simulated  bool
	ExecutedAt time.Time
}

// AssetBalance is one entry of a wallet balance lookup.
type AssetBalance struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Decimals int             `json:"decimals"`
}
