// Package aggregator orchestrates the price pipeline: cache-first
// lookups, parallel rate-limited fetches from every enabled source, each
// guarded by retry and a circuit breaker, reconciliation of the results
// and publication of the authoritative prices. It also owns the
// freshness gate that trade-side callers must pass.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/priceguard/internal/domain"
	"github.com/vadiminshakov/priceguard/internal/services/pricefeed"
	"github.com/vadiminshakov/priceguard/internal/services/reconciler"
	"github.com/vadiminshakov/priceguard/pkg/backoff"
	"github.com/vadiminshakov/priceguard/pkg/breaker"
	"github.com/vadiminshakov/priceguard/pkg/cache"
)

// ErrNoPrice is returned when no source produced a price and no
// unexpired cached value exists. Callers must treat the asset as having
// no price, never substitute a default.
var ErrNoPrice = errors.New("no price available")

// Trail receives every published reconciled price for display and
// analysis. It is not part of the correctness path.
type Trail interface {
	Append(price domain.ReconciledPrice) error
}

// Config holds the aggregator knobs, read once at startup.
type Config struct {
	// Assets is the fixed asset set the bot trades.
	Assets []domain.AssetID
	// Sources carries the full source configuration, including disabled
	// entries, so health reporting can name them.
	Sources []domain.SourceConfig
	// PriceTTL bounds how long a reconciled price set is served from cache.
	PriceTTL time.Duration
	// FetchTimeout caps each source fetch including its retries.
	FetchTimeout time.Duration
	// RefreshInterval drives the background publisher loop.
	RefreshInterval time.Duration
}

// Aggregator implements the multi-source price pipeline.
type Aggregator struct {
	sources    []pricefeed.Source
	reconciler *reconciler.Reconciler
	breakers   *breaker.Registry
	retry      *backoff.Policy
	prices     *cache.Cache
	gate       *FreshnessGate
	trail      Trail
	logger     *zap.Logger
	cfg        Config

	mu          sync.RWMutex
	lastSuccess map[string]time.Time
}

// New wires the pipeline. trail may be nil.
func New(
	sources []pricefeed.Source,
	rec *reconciler.Reconciler,
	breakers *breaker.Registry,
	retry *backoff.Policy,
	prices *cache.Cache,
	gate *FreshnessGate,
	trail Trail,
	logger *zap.Logger,
	cfg Config,
) *Aggregator {
	return &Aggregator{
		sources:     sources,
		reconciler:  rec,
		breakers:    breakers,
		retry:       retry,
		prices:      prices,
		gate:        gate,
		trail:       trail,
		logger:      logger,
		cfg:         cfg,
		lastSuccess: make(map[string]time.Time),
	}
}

// Prices returns the authoritative price per requested asset. The cache
// is consulted first; on miss every enabled source is fetched in
// parallel and the reconciled result is published. Assets without a
// price are absent from the returned map.
func (a *Aggregator) Prices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.ReconciledPrice, error) {
	key := priceCacheKey(assets)
	if v, ok := a.prices.Get(key); ok {
		return v.(map[domain.AssetID]domain.ReconciledPrice), nil
	}
	return a.refresh(ctx, assets)
}

// Gate exposes the freshness gate for trade-side callers.
func (a *Aggregator) Gate() *FreshnessGate { return a.gate }

// Tradeable reports whether every involved asset passes the freshness
// gate. The returned error wraps ErrStalePrice and names the offender.
func (a *Aggregator) Tradeable(assets ...domain.AssetID) error {
	return a.gate.Require(assets...)
}

// refresh fetches, reconciles and publishes a fresh price set.
func (a *Aggregator) refresh(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.ReconciledPrice, error) {
	perSource := make([]map[domain.AssetID]domain.PricePoint, len(a.sources))

	// one task per source; reconciliation waits for all of them to
	// settle so a slow source never races a fast one
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			result, err := a.fetchOne(gctx, src, assets)
			if err != nil {
				a.logFetchFailure(src.ID(), err)
				return nil // absorb: one source failing must not sink the pass
			}
			perSource[i] = result
			a.markSuccess(src.ID())
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]map[domain.AssetID]domain.PricePoint, 0, len(perSource))
	for _, result := range perSource {
		if result != nil {
			succeeded = append(succeeded, result)
		}
	}

	if len(succeeded) == 0 {
		// all sources down: an unexpired cached value stays
		// authoritative, otherwise there is no price
		if v, ok := a.prices.Get(priceCacheKey(assets)); ok {
			return v.(map[domain.AssetID]domain.ReconciledPrice), nil
		}
		return nil, ErrNoPrice
	}

	reconciled := a.reconciler.Reconcile(succeeded)
	a.publish(assets, reconciled)
	return reconciled, nil
}

// fetchOne runs a single breaker-guarded fetch with internal retries.
// The retry loop is inside the breaker call, so however many attempts it
// makes the breaker counts one.
func (a *Aggregator) fetchOne(ctx context.Context, src pricefeed.Source, assets []domain.AssetID) (map[domain.AssetID]domain.PricePoint, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	result, err := a.breakers.Execute(src.ID(), func() (any, error) {
		return backoff.RetryWithData(a.retry, fetchCtx, func(ctx context.Context) (map[domain.AssetID]domain.PricePoint, error) {
			out, err := src.FetchPrices(ctx, assets)
			if err != nil && pricefeed.IsRateLimited(err) {
				// our own gate denied the call; retrying inside this
				// pass cannot help
				return nil, backoff.Permanent(err)
			}
			return out, err
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(map[domain.AssetID]domain.PricePoint), nil
}

func (a *Aggregator) publish(assets []domain.AssetID, reconciled map[domain.AssetID]domain.ReconciledPrice) {
	a.prices.Set(priceCacheKey(assets), reconciled, a.cfg.PriceTTL)

	for asset, rec := range reconciled {
		a.gate.MarkUpdated(rec.ComputedAt, asset)
	}

	if a.trail != nil {
		for _, rec := range reconciled {
			if err := a.trail.Append(rec); err != nil {
				a.logger.Warn("failed to append price trail", zap.Error(err))
			}
		}
	}

	for asset, rec := range reconciled {
		a.logger.Debug("price published",
			zap.String("asset", asset.Symbol()),
			zap.String("price", rec.Recommended.String()),
			zap.String("source", rec.RecommendedSource),
			zap.String("variance_pct", rec.VariancePercent.StringFixed(2)),
		)
	}
}

// Run drives the background publisher: the configured asset set is
// refreshed every RefreshInterval until ctx is cancelled, keeping the
// cache warm and the freshness clock moving.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	a.logger.Info("price aggregator started",
		zap.Int("sources", len(a.sources)),
		zap.Int("assets", len(a.cfg.Assets)),
		zap.Duration("refresh_interval", a.cfg.RefreshInterval),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("price aggregator stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.refresh(ctx, a.cfg.Assets); err != nil {
				a.logger.Warn("price refresh failed", zap.Error(err))
			}
		}
	}
}

// Status reports per-source health for the API layer.
func (a *Aggregator) Status() []domain.SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.cfg.Sources) > 0 {
		statuses := make([]domain.SourceStatus, 0, len(a.cfg.Sources))
		for _, sc := range a.cfg.Sources {
			statuses = append(statuses, domain.SourceStatus{
				ID:            sc.ID,
				Enabled:       sc.Enabled,
				LastSuccessAt: a.lastSuccess[sc.ID],
				CircuitState:  a.breakers.State(sc.ID),
			})
		}
		return statuses
	}

	statuses := make([]domain.SourceStatus, 0, len(a.sources))
	for _, src := range a.sources {
		statuses = append(statuses, domain.SourceStatus{
			ID:            src.ID(),
			Enabled:       true,
			LastSuccessAt: a.lastSuccess[src.ID()],
			CircuitState:  a.breakers.State(src.ID()),
		})
	}
	return statuses
}

func (a *Aggregator) markSuccess(sourceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSuccess[sourceID] = time.Now()
}

func (a *Aggregator) logFetchFailure(sourceID string, err error) {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		a.logger.Warn("source skipped, circuit open", zap.String("source", sourceID))
	case pricefeed.IsRateLimited(err):
		a.logger.Debug("source skipped, rate limited", zap.String("source", sourceID))
	default:
		a.logger.Warn("source fetch failed", zap.String("source", sourceID), zap.Error(err))
	}
}

func priceCacheKey(assets []domain.AssetID) string {
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, string(a))
	}
	sort.Strings(ids)
	return "prices:" + strings.Join(ids, ",")
}
