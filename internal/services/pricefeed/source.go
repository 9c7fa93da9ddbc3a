// Package pricefeed contains the price source adapters. Each adapter
// fetches raw USD prices for a fixed asset set from one provider and
// normalizes them into the shared domain types. Adapters never panic or
// leak provider errors across their boundary: every failure is a
// *SourceError.
package pricefeed

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

// Source ids, also used as rate-limiter and circuit-breaker dependency ids.
const (
	SourceBinance     = "binance"
	SourceBybit       = "bybit"
	SourceHyperliquid = "hyperliquid"
)

// Source is a single price provider.
type Source interface {
	ID() string
	// FetchPrices returns a price point per requested asset the source
	// knows about. Assets the source does not support or has no price
	// for are simply absent from the result, never defaulted.
	FetchPrices(ctx context.Context, assets []domain.AssetID) (map[domain.AssetID]domain.PricePoint, error)
}

// Limiter gates adapter calls per source id.
type Limiter interface {
	Allow(sourceID string) bool
}

// ErrorKind classifies adapter failures.
type ErrorKind int

const (
	// KindRateLimited means the local limiter denied the call; retry later.
	KindRateLimited ErrorKind = iota
	// KindUnavailable means the provider could not be reached or answered
	// with a transport/HTTP failure.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// SourceError is the only error type adapters return.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("source %s %s", e.Source, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Err }

func rateLimited(source string) *SourceError {
	return &SourceError{Source: source, Kind: KindRateLimited}
}

func unavailable(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindUnavailable, Err: err}
}

// IsRateLimited reports whether err is an adapter rate-limit denial.
func IsRateLimited(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == KindRateLimited
}

// IsUnavailable reports whether err is a provider transport failure.
func IsUnavailable(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == KindUnavailable
}
