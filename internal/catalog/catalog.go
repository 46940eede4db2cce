package catalog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/logger"
)

// Product is one sellable item from the remote catalog. Prices are decimals;
// the two manual flags drive the terminal's entry workflow.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	CategoryID     int64           `json:"category_id"`
	CategoryName   string          `json:"category_name"`
	ManualQuantity bool            `json:"manual_quantity"`
	ManualPrice    bool            `json:"manual_price"`
}

// Service caches the product catalog for one terminal session.
type Service struct {
	products map[int64]Product
	ordered  []Product

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	return &Service{
		products: make(map[int64]Product),
	}
}

// Replace swaps in a freshly fetched catalog.
func (s *Service) Replace(products []Product) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.products = make(map[int64]Product, len(products))
	s.ordered = make([]Product, 0, len(products))
	for _, p := range products {
		s.products[p.ID] = p
		s.ordered = append(s.ordered, p)
	}
	s.lastLoaded = time.Now()

	logger.LogInfo("Catalog loaded: %d products", len(s.ordered))
}

// Get returns the product for an id.
func (s *Service) Get(id int64) (Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, fmt.Errorf("unknown product id %d", id)
	}
	return p, nil
}

// All returns the full catalog in backend order.
func (s *Service) All() []Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Product, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Filter narrows the catalog by category (0 = all categories) and a
// case-insensitive substring search over product names. This backs the
// terminal's category selector and free-text item search.
func (s *Service) Filter(categoryID int64, search string) []Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))

	var out []Product
	for _, p := range s.ordered {
		if categoryID != 0 && p.CategoryID != categoryID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CacheAge reports how stale the catalog is.
func (s *Service) CacheAge() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded)
}

// Count returns the number of cached products.
func (s *Service) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.ordered)
}
