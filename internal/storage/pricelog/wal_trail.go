// Package pricelog persists a bounded trail of published reconciled
// prices in a WAL. The trail feeds the SSE stream and the analysis
// endpoint; correctness never depends on it.
package pricelog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/priceguard/internal/domain"
)

const (
	DefaultDir   = "./wal/prices"
	segmentLimit = 1000
	maxSegments  = 10

	priceKeyPrefix = "price_"
)

// WALTrail is a WAL-backed price trail. Segment rotation keeps it
// bounded: old segments are dropped once maxSegments is exceeded.
type WALTrail struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALTrail initializes the trail under dir.
func NewWALTrail(dir string) (*WALTrail, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "price_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: false,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init price trail WAL")
	}

	return &WALTrail{wal: wal}, nil
}

// Append writes one reconciled price to the trail.
func (s *WALTrail) Append(price domain.ReconciledPrice) error {
	if s == nil || s.wal == nil {
		return errors.New("price trail is not initialized")
	}
	if price.Asset == "" {
		return fmt.Errorf("reconciled price asset is required")
	}

	payload, err := json.Marshal(price)
	if err != nil {
		return errors.Wrap(err, "marshal reconciled price")
	}

	key := fmt.Sprintf("%s%s", priceKeyPrefix, price.Asset)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// After returns every trail entry written after the provided WAL index.
func (s *WALTrail) After(index uint64) ([]domain.ReconciledPriceRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("price trail is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.ReconciledPriceRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, priceKeyPrefix) {
			continue
		}

		var price domain.ReconciledPrice
		if err := json.Unmarshal(payload, &price); err != nil {
			return nil, errors.Wrap(err, "decode reconciled price")
		}
		records = append(records, domain.ReconciledPriceRecord{
			Index: idx,
			Price: price,
		})
	}

	return records, nil
}

// TrailFor returns the trail entries for one asset written after index,
// newest last. Used by the analysis endpoint.
func (s *WALTrail) TrailFor(asset domain.AssetID, index uint64) ([]domain.ReconciledPriceRecord, error) {
	records, err := s.After(index)
	if err != nil {
		return nil, err
	}
	filtered := records[:0]
	for _, rec := range records {
		if rec.Price.Asset == asset {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALTrail) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALTrail) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("price trail is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
