// mock_backend.go - httptest stand-in for the remote retail API
package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/backend"
	"posterminal/internal/catalog"
)

// MockRetailBackend serves the three endpoints the terminal consumes:
// the catalog, per-product closing stock, and sale submission.
type MockRetailBackend struct {
	Server *httptest.Server

	mu       sync.RWMutex
	products []catalog.Product
	stocks   map[int64]decimal.Decimal
	sales    []backend.SaleRequest
	nextID   int64

	// Configuration for failure simulation
	ShouldFailSale       bool
	SaleFailureMessage   string
	ShouldFailStock      map[int64]bool
	SimulateNetworkDelay time.Duration

	// Counters for tracking
	ProductFetches int
	StockFetches   int
	SaleAttempts   int
}

// NewMockRetailBackend creates a mock backend pre-loaded with products
// and stock.
func NewMockRetailBackend(products []catalog.Product, stocks map[int64]decimal.Decimal) *MockRetailBackend {
	mock := &MockRetailBackend{
		products:        products,
		stocks:          stocks,
		ShouldFailStock: make(map[int64]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/products/with-category", mock.handleProducts)
	mux.HandleFunc("/sales/last-closing-stock/", mock.handleClosingStock)
	mux.HandleFunc("/sales/", mock.handleSales)

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockRetailBackend) Close() {
	m.Server.Close()
}

// URL returns the mock backend's base URL.
func (m *MockRetailBackend) URL() string {
	return m.Server.URL
}

func (m *MockRetailBackend) delay() {
	if m.SimulateNetworkDelay > 0 {
		time.Sleep(m.SimulateNetworkDelay)
	}
}

func (m *MockRetailBackend) handleProducts(w http.ResponseWriter, r *http.Request) {
	m.delay()

	m.mu.Lock()
	m.ProductFetches++
	products := m.products
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

func (m *MockRetailBackend) handleClosingStock(w http.ResponseWriter, r *http.Request) {
	m.delay()

	raw := strings.TrimPrefix(r.URL.Path, "/sales/last-closing-stock/")
	productID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, `{"message":"invalid product id"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.StockFetches++
	fail := m.ShouldFailStock[productID]
	qty, ok := m.stocks[productID]
	m.mu.Unlock()

	if fail {
		http.Error(w, `{"message":"stock lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		qty = decimal.Zero
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"product_id":%d,"closing_stock":"%s"}`, productID, qty.String())
}

func (m *MockRetailBackend) handleSales(w http.ResponseWriter, r *http.Request) {
	m.delay()

	if r.Method != http.MethodPost {
		http.Error(w, `{"message":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	m.mu.Lock()
	m.SaleAttempts++
	shouldFail := m.ShouldFailSale
	failureMsg := m.SaleFailureMessage
	m.mu.Unlock()

	if shouldFail {
		if failureMsg == "" {
			failureMsg = "sale rejected by backend"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": failureMsg})
		return
	}

	var sale backend.SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
		http.Error(w, `{"message":"invalid sale payload"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.sales = append(m.sales, sale)

	// Consume stock so a refresh observes the post-sale quantities.
	for _, item := range sale.Items {
		if current, ok := m.stocks[item.ProductID]; ok {
			m.stocks[item.ProductID] = current.Sub(item.Quantity)
		}
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

// Sales returns a copy of the submitted sales.
func (m *MockRetailBackend) Sales() []backend.SaleRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]backend.SaleRequest, len(m.sales))
	copy(out, m.sales)
	return out
}

// StockFetchCount returns how many closing-stock lookups were served.
func (m *MockRetailBackend) StockFetchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StockFetches
}

// SetStock overrides a product's stock level.
func (m *MockRetailBackend) SetStock(productID int64, qty decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[productID] = qty
}
