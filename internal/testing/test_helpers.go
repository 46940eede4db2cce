// test_helpers.go - end-to-end harness wiring the terminal against the
// mock retail backend
package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"posterminal/internal/backend"
	"posterminal/internal/catalog"
	"posterminal/internal/stock"
	"posterminal/internal/terminal"
)

// TestSuite runs one terminal session against a mock retail backend,
// exercised through the real HTTP surface.
type TestSuite struct {
	Backend  *MockRetailBackend
	Client   *backend.Client
	Session  *terminal.Session
	Server   *httptest.Server
	Catalog  *catalog.Service
	Snapshot *stock.Snapshot
	HTTP     *http.Client
}

// apiEnvelope mirrors middleware.APIResponse with raw data for re-decoding.
type apiEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func defaultProducts() []catalog.Product {
	return []catalog.Product{
		{ID: 1, Name: "Marlboro Red", UnitPrice: decimal.RequireFromString("5.00"), CategoryID: 1, CategoryName: "Cigarettes"},
		{ID: 2, Name: "Product B", UnitPrice: decimal.RequireFromString("3.00"), CategoryID: 2, CategoryName: "Bread"},
		{ID: 3, Name: "Bread Loaf", UnitPrice: decimal.RequireFromString("2.00"), CategoryID: 2, CategoryName: "Bread", ManualPrice: true},
	}
}

func defaultStocks() map[int64]decimal.Decimal {
	return map[int64]decimal.Decimal{
		1: decimal.NewFromInt(50),
		2: decimal.NewFromInt(50),
		3: decimal.NewFromInt(50),
	}
}

// NewTestSuite builds the whole stack: mock backend, real client, loaded
// catalog and stock snapshot, session, and the terminal HTTP server.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()
	return NewTestSuiteWith(t, defaultProducts(), defaultStocks())
}

func NewTestSuiteWith(t *testing.T, products []catalog.Product, stocks map[int64]decimal.Decimal) *TestSuite {
	t.Helper()

	mock := NewMockRetailBackend(products, stocks)
	client := backend.NewClient(mock.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fetched, err := client.FetchProducts(ctx)
	if err != nil {
		mock.Close()
		t.Fatalf("Failed to load catalog from mock backend: %v", err)
	}

	cat := catalog.NewService()
	cat.Replace(fetched)

	ids := make([]int64, 0, len(fetched))
	for _, p := range fetched {
		ids = append(ids, p.ID)
	}

	snap := stock.NewSnapshot(client)
	snap.Load(ctx, ids)

	session := terminal.NewSession(cat, snap, client, decimal.Zero, 1)

	router := mux.NewRouter()
	terminal.NewHandler(session).RegisterRoutes(router.PathPrefix("/api").Subrouter())
	server := httptest.NewServer(router)

	suite := &TestSuite{
		Backend:  mock,
		Client:   client,
		Session:  session,
		Server:   server,
		Catalog:  cat,
		Snapshot: snap,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}

	t.Cleanup(func() {
		server.Close()
		mock.Close()
	})

	return suite
}

// PostJSON sends a JSON request to the terminal API and decodes the
// success envelope into out (out may be nil).
func (s *TestSuite) PostJSON(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiErrorBody
		json.NewDecoder(resp.Body).Decode(&apiErr)
		t.Fatalf("%s %s returned %d: %s (%s)", method, path, resp.StatusCode, apiErr.Message, apiErr.Code)
	}

	if out != nil {
		var envelope apiEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decoding envelope for %s %s: %v", method, path, err)
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decoding data for %s %s: %v", method, path, err)
		}
	}

	return resp
}

// PostJSONExpectError sends a JSON request expecting a non-2xx response and
// returns the API error body.
func (s *TestSuite) PostJSONExpectError(t *testing.T, method, path string, body interface{}) (int, apiErrorBody) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		t.Fatalf("%s %s expected an error status, got %d", method, path, resp.StatusCode)
	}

	var apiErr apiErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp.StatusCode, apiErr
}

// AddItem is a shorthand for the item-grid click.
func (s *TestSuite) AddItem(t *testing.T, productID int64) terminal.AddOutcome {
	t.Helper()
	var outcome terminal.AddOutcome
	s.PostJSON(t, http.MethodPost, "/api/cart/items",
		map[string]int64{"product_id": productID}, &outcome)
	return outcome
}

// WaitForStockFetches polls until the mock backend has served at least n
// closing-stock lookups (the post-sale refresh is asynchronous).
func (s *TestSuite) WaitForStockFetches(t *testing.T, n int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Backend.StockFetchCount() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d stock fetches, saw %d", n, s.Backend.StockFetchCount())
}

// Quantity parses a decimal for test assertions.
func Quantity(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
