package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceAverage is the synthetic source id used when the recommended
// price is the mean of all contributing sources.
const SourceAverage = "average"

// ReconciledPrice is the authoritative price for one asset, derived from
// every source that reported it during a reconciliation pass.
type ReconciledPrice struct {
	Asset             AssetID                    `json:"asset"`
	Recommended       decimal.Decimal            `json:"recommended"`
	RecommendedSource string                     `json:"recommended_source"`
	PerSource         map[string]decimal.Decimal `json:"per_source"`
	VariancePercent   decimal.Decimal            `json:"variance_percent"`
	ComputedAt        time.Time                  `json:"computed_at"`
}

// ReconciledPriceRecord pairs a reconciled price with its position in the
// price trail, so readers can resume from where they stopped.
type ReconciledPriceRecord struct {
	Index uint64
	Price ReconciledPrice
}
