package aggregator

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// ErrStalePrice blocks value-moving actions when the latest successful
// price update for an involved asset is too old. It must surface to the
// caller, never be silently swallowed.
var ErrStalePrice = errors.New("stale price: freshness threshold exceeded")

// FreshnessGate tracks when each asset's price was last successfully
// reconciled and refuses trade authorization past the threshold. The
// threshold is independent of any cache TTL: a cached price can still be
// too stale to trade on.
type FreshnessGate struct {
	mu        sync.RWMutex
	threshold time.Duration
	updatedAt map[domain.AssetID]time.Time
	now       func() time.Time
}

// NewFreshnessGate creates a gate with the given staleness threshold.
func NewFreshnessGate(threshold time.Duration) *FreshnessGate {
	return &FreshnessGate{
		threshold: threshold,
		updatedAt: make(map[domain.AssetID]time.Time),
		now:       time.Now,
	}
}

// MarkUpdated records a successful reconciliation for the given assets.
func (g *FreshnessGate) MarkUpdated(at time.Time, assets ...domain.AssetID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, asset := range assets {
		g.updatedAt[asset] = at
	}
}

// IsFresh reports whether asset's last update is younger than the
// threshold. An asset that was never updated is not fresh.
func (g *FreshnessGate) IsFresh(asset domain.AssetID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	at, ok := g.updatedAt[asset]
	if !ok {
		return false
	}
	return g.now().Sub(at) < g.threshold
}

// TimeSinceUpdate returns the age of asset's last update. ok is false if
// the asset never had one.
func (g *FreshnessGate) TimeSinceUpdate(asset domain.AssetID) (time.Duration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	at, ok := g.updatedAt[asset]
	if !ok {
		return 0, false
	}
	return g.now().Sub(at), true
}

// Require returns ErrStalePrice naming the first involved asset that
// fails the freshness check, or nil when all are fresh.
func (g *FreshnessGate) Require(assets ...domain.AssetID) error {
	for _, asset := range assets {
		if !g.IsFresh(asset) {
			return errors.Wrapf(ErrStalePrice, "asset %s", asset.Symbol())
		}
	}
	return nil
}
