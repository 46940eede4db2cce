// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/catalog"
	"posterminal/internal/logger"
)

// Client talks to the remote retail backend. All requests share one JSON
// base endpoint; there is no auth in scope.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
}

// APIError is an error response from the retail backend. Message carries the
// backend's own wording so the operator sees it verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// SaleItem is one line of a sale submission.
type SaleItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleRequest is the POST /sales/ payload.
type SaleRequest struct {
	SalesDate     string          `json:"sales_date"`
	Items         []SaleItem      `json:"items"`
	PaymentMethod string          `json:"payment_method"`
	CustomerID    int64           `json:"customer_id"`
	UserID        int64           `json:"user_id"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	DiscountRate  decimal.Decimal `json:"discount_rate"`
}

// SaleResponse carries the identifier the backend assigned to the sale.
type SaleResponse struct {
	ID int64 `json:"id"`
}

type closingStockResponse struct {
	ProductID    int64           `json:"product_id"`
	ClosingStock decimal.Decimal `json:"closing_stock"`
}

// FetchProducts loads the catalog with per-product category and
// manual-entry flags.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.Product, error) {
	url := c.baseURL + "/products/with-category"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating products request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.readError(resp)
	}

	var products []catalog.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decoding products response: %w", err)
	}

	return products, nil
}

// FetchProductsWithRetry retries the catalog fetch with linear backoff.
// Used at startup where a cold backend is common.
func (c *Client) FetchProductsWithRetry(ctx context.Context, maxRetries int) ([]catalog.Product, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		products, err := c.FetchProducts(ctx)
		if err == nil {
			return products, nil
		}

		lastErr = err
		logger.LogWarn("Catalog fetch attempt %d failed: %v", attempt, err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch catalog after %d attempts: %w", maxRetries, lastErr)
}

// FetchLastClosingStock returns the last recorded closing stock for one
// product. Fractional values are legal for weighed goods.
func (c *Client) FetchLastClosingStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/sales/last-closing-stock/%d", c.baseURL, productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating closing-stock request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching closing stock for product %d: %w", productID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, c.readError(resp)
	}

	var out closingStockResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decoding closing stock for product %d: %w", productID, err)
	}

	return out.ClosingStock, nil
}

// SubmitSale posts one completed sale. It is deliberately single-shot:
// retrying a POST that may have landed would risk duplicate sales, and the
// sequencer keeps the operator's inputs so a failed attempt can be retried
// by hand.
func (c *Client) SubmitSale(ctx context.Context, sale SaleRequest) (SaleResponse, error) {
	url := c.baseURL + "/sales/"

	body, err := json.Marshal(sale)
	if err != nil {
		return SaleResponse{}, fmt.Errorf("marshaling sale request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SaleResponse{}, fmt.Errorf("creating sale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.LogInfo("Submitting sale: %d items, customer %d", len(sale.Items), sale.CustomerID)
	resp, err := c.http.Do(req)
	if err != nil {
		return SaleResponse{}, fmt.Errorf("submitting sale: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := c.readError(resp)
		logger.LogError("Sale submission rejected (HTTP %d): %v", resp.StatusCode, apiErr)
		return SaleResponse{}, apiErr
	}

	var out SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SaleResponse{}, fmt.Errorf("decoding sale response: %w", err)
	}

	logger.LogInfo("Sale %d accepted by backend", out.ID)
	return out, nil
}

// readError extracts the backend's message from a non-2xx response.
func (c *Client) readError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
		}
		if payload.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
