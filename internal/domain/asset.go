// Package domain defines core data structures shared by the price
// aggregation and trading services.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetID uniquely identifies a tradable token. It is an opaque composite
// of symbol, unit, category and type, joined the way the DEX addresses
// tokens (e.g. "GALA|Unit|none|none"). Treated as immutable everywhere.
type AssetID string

// NewAssetID builds an AssetID from its four address parts.
func NewAssetID(symbol, unit, category, typ string) AssetID {
	return AssetID(strings.Join([]string{symbol, unit, category, typ}, "|"))
}

// Symbol returns the token symbol part of the id.
func (a AssetID) Symbol() string {
	s := string(a)
	if i := strings.IndexByte(s, '|'); i > 0 {
		return s[:i]
	}
	return s
}

func (a AssetID) String() string { return string(a) }

// PricePoint is a single observation of an asset's USD price from one
// source. Points are never mutated, newer observations supersede them.
type PricePoint struct {
	Asset      AssetID
	PriceUSD   decimal.Decimal
	Source     string
	ObservedAt time.Time
}
