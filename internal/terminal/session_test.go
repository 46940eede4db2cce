package terminal

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"posterminal/internal/backend"
	"posterminal/internal/catalog"
	"posterminal/internal/checkout"
	"posterminal/internal/stock"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mapFetcher map[int64]string

func (m mapFetcher) FetchLastClosingStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	raw, ok := m[productID]
	if !ok {
		return decimal.Zero, errors.New("no stock record")
	}
	return decimal.RequireFromString(raw), nil
}

type stubSubmitter struct {
	nextID int64
}

func (s *stubSubmitter) SubmitSale(ctx context.Context, sale backend.SaleRequest) (backend.SaleResponse, error) {
	s.nextID++
	return backend.SaleResponse{ID: s.nextID}, nil
}

func newTestSession(t *testing.T, stocks mapFetcher) *Session {
	t.Helper()

	cat := catalog.NewService()
	cat.Replace([]catalog.Product{
		{ID: 1, Name: "Marlboro Red", UnitPrice: dec("5.00"), CategoryID: 1},
		{ID: 2, Name: "Bread Loaf", UnitPrice: dec("2.00"), CategoryID: 2, ManualPrice: true},
		{ID: 3, Name: "Product C", UnitPrice: dec("1.00"), CategoryID: 2},
	})

	snap := stock.NewSnapshot(stocks)
	snap.Load(context.Background(), []int64{1, 2, 3})

	return NewSession(cat, snap, &stubSubmitter{}, decimal.Zero, 1)
}

func TestAddItemDirect(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10", 2: "10", 3: "10"})

	outcome, err := s.AddItem(1)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if outcome.Pending {
		t.Fatal("direct product should not enter a pending entry state")
	}
	if len(outcome.Cart.Lines) != 1 || !outcome.Cart.Lines[0].Quantity.Equal(dec("1")) {
		t.Errorf("expected one line with quantity 1, got %+v", outcome.Cart.Lines)
	}
}

func TestAddItemUnknownProduct(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10"})
	if _, err := s.AddItem(99); err == nil {
		t.Error("expected error for unknown product")
	}
}

func TestStockScenario(t *testing.T) {
	// Snapshot for Product C = 3; cart already holds 2.
	s := newTestSession(t, mapFetcher{1: "10", 2: "10", 3: "3"})

	s.AddItem(3)
	s.AddItem(3)

	view := s.Cart()
	if !view.Lines[0].Quantity.Equal(dec("2")) {
		t.Fatalf("setup failed, expected quantity 2, got %s", view.Lines[0].Quantity)
	}

	// Adding 2 more would make 4 > 3: rejected, cart unchanged.
	if _, err := s.AdjustLine(0, 2); err == nil {
		t.Fatal("expected insufficient-stock rejection")
	} else {
		var stockErr *stock.InsufficientError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientError, got %v", err)
		}
	}
	if !s.Cart().Lines[0].Quantity.Equal(dec("2")) {
		t.Error("rejected adjustment must leave the cart unchanged")
	}

	// Adding 1 more makes exactly 3 <= 3: accepted.
	if _, err := s.AddItem(3); err != nil {
		t.Fatalf("adding up to the exact stock level must succeed: %v", err)
	}
	if !s.Cart().Lines[0].Quantity.Equal(dec("3")) {
		t.Errorf("expected quantity 3, got %s", s.Cart().Lines[0].Quantity)
	}

	// And one more over the line is rejected again.
	if _, err := s.AddItem(3); err == nil {
		t.Error("expected rejection past the stock level")
	}
}

func TestDecreaseBypassesStockCheck(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10", 2: "10", 3: "5"})
	s.AddItem(3)
	s.AddItem(3)
	s.AddItem(3)

	// Simulate the backend stock dropping below the cart quantity.
	snap := stock.NewSnapshot(mapFetcher{3: "1"})
	snap.Load(context.Background(), []int64{3})
	s.stock = snap

	// Decreasing must still work even though cart quantity exceeds stock.
	view, err := s.AdjustLine(0, -1)
	if err != nil {
		t.Fatalf("decrease must bypass the stock check: %v", err)
	}
	if !view.Lines[0].Quantity.Equal(dec("2")) {
		t.Errorf("expected quantity 2 after decrease, got %s", view.Lines[0].Quantity)
	}
}

func TestManualPriceFlowThroughSession(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10", 2: "10", 3: "10"})

	outcome, err := s.AddItem(2)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if !outcome.Pending || outcome.EntryState != "price_pending" {
		t.Fatalf("expected pending price entry, got %+v", outcome)
	}

	outcome, err = s.SubmitPrice("4.99")
	if err != nil {
		t.Fatalf("SubmitPrice failed: %v", err)
	}
	if outcome.Pending {
		t.Fatal("price entry should have resolved")
	}

	line := outcome.Cart.Lines[0]
	if !line.Quantity.Equal(dec("2.5")) {
		t.Errorf("expected derived quantity 2.5, got %s", line.Quantity)
	}
	if !line.UnitPrice.Equal(dec("1.996")) {
		t.Errorf("expected effective unit price 1.996, got %s", line.UnitPrice)
	}
	if !outcome.Cart.Totals.Total.Equal(dec("4.99")) {
		t.Errorf("cart total must stay exact at 4.99, got %s", outcome.Cart.Totals.Total)
	}
}

func TestManualEntryStockRejectionKeepsNothing(t *testing.T) {
	s := newTestSession(t, mapFetcher{2: "1"})

	s.AddItem(2)
	// 4.99 at unit price 2.00 derives quantity 2.5 > 1 available.
	if _, err := s.SubmitPrice("4.99"); err == nil {
		t.Fatal("expected insufficient-stock rejection")
	}
	if len(s.Cart().Lines) != 0 {
		t.Error("rejected manual entry must not reach the cart")
	}
}

func TestCancelEntry(t *testing.T) {
	s := newTestSession(t, mapFetcher{2: "10"})
	s.AddItem(2)
	s.CancelEntry()

	if st := s.Status(); st.EntryState != "idle" {
		t.Errorf("expected idle entry state after cancel, got %s", st.EntryState)
	}
	if len(s.Cart().Lines) != 0 {
		t.Error("cancelled entry must not reach the cart")
	}
}

func TestChargeFlowThroughSession(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10", 2: "10", 3: "10"})
	s.AddItem(1)
	s.AddItem(1)

	if err := s.OpenCharge(); err != nil {
		t.Fatalf("OpenCharge failed: %v", err)
	}

	result, err := s.ConfirmCharge(context.Background(), checkout.ChargeInputs{
		PaymentMethod: "cash", CustomerID: "1", AmountTendered: "20.00",
	})
	if err != nil {
		t.Fatalf("ConfirmCharge failed: %v", err)
	}
	if !result.Change.Equal(dec("10.00")) {
		t.Errorf("expected change 10.00, got %s", result.Change)
	}
	if len(s.Cart().Lines) != 0 {
		t.Error("cart must be empty after a committed sale")
	}

	html, err := s.ReceiptHTML()
	if err != nil {
		t.Fatalf("ReceiptHTML failed: %v", err)
	}
	if html == "" {
		t.Error("expected a rendered receipt")
	}

	if err := s.DismissChange(); err != nil {
		t.Fatalf("DismissChange failed: %v", err)
	}
	if _, err := s.ReceiptHTML(); err == nil {
		t.Error("receipt should be unavailable after dismissing the change display")
	}
}

func TestOpenChargeEmptyCart(t *testing.T) {
	s := newTestSession(t, mapFetcher{1: "10"})
	if err := s.OpenCharge(); !errors.Is(err, checkout.ErrCartEmpty) {
		t.Errorf("expected ErrCartEmpty, got %v", err)
	}
}
