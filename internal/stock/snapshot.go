// internal/stock/snapshot.go
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/logger"
)

// InsufficientError reports an add or increase that would exceed the
// cached closing stock for a product.
type InsufficientError struct {
	ProductName string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %s requested, %s available",
		e.ProductName, e.Requested, e.Available)
}

// Fetcher looks up the last recorded closing stock for one product.
// Satisfied by backend.Client.
type Fetcher interface {
	FetchLastClosingStock(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// Snapshot caches the last-known closing stock per product for one terminal
// session. It is a point-in-time cache, not authoritative: the backend
// re-validates at sale-submission time.
type Snapshot struct {
	fetcher    Fetcher
	quantities map[int64]decimal.Decimal
	productIDs []int64

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewSnapshot(fetcher Fetcher) *Snapshot {
	return &Snapshot{
		fetcher:    fetcher,
		quantities: make(map[int64]decimal.Decimal),
	}
}

// Load fetches closing stock for every product id. A failed lookup is
// non-fatal per item: the product degrades to quantity 0, which blocks its
// sale until the next refresh but keeps the rest of the catalog usable.
func (s *Snapshot) Load(ctx context.Context, productIDs []int64) {
	quantities := make(map[int64]decimal.Decimal, len(productIDs))
	failed := 0

	for _, id := range productIDs {
		qty, err := s.fetcher.FetchLastClosingStock(ctx, id)
		if err != nil {
			logger.LogWarn("Closing stock lookup failed for product %d, treating as 0: %v", id, err)
			quantities[id] = decimal.Zero
			failed++
			continue
		}
		quantities[id] = qty
	}

	s.mutex.Lock()
	s.quantities = quantities
	s.productIDs = append([]int64(nil), productIDs...)
	s.lastLoaded = time.Now()
	s.mutex.Unlock()

	logger.LogInfo("Stock snapshot loaded for %d products (%d lookups failed)", len(productIDs), failed)
}

// Refresh re-runs the closing-stock fetch for all known products.
// Issued after every completed sale.
func (s *Snapshot) Refresh(ctx context.Context) {
	s.mutex.RLock()
	ids := append([]int64(nil), s.productIDs...)
	s.mutex.RUnlock()

	s.Load(ctx, ids)
}

// Available returns the cached quantity for a product, defaulting to 0.
func (s *Snapshot) Available(productID int64) decimal.Decimal {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	qty, ok := s.quantities[productID]
	if !ok {
		return decimal.Zero
	}
	return qty
}

// CacheAge reports how stale the snapshot is.
func (s *Snapshot) CacheAge() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded)
}
