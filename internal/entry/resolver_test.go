package entry

import (
	"testing"

	"github.com/shopspring/decimal"

	"posterminal/internal/catalog"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	directProduct = catalog.Product{ID: 1, Name: "Marlboro Red", UnitPrice: dec("5.00")}
	breadProduct  = catalog.Product{ID: 2, Name: "Bread Loaf", UnitPrice: dec("2.00"), ManualPrice: true}
	tomatoProduct = catalog.Product{ID: 3, Name: "Tomatoes", UnitPrice: dec("4.00"), ManualQuantity: true}
	weighed       = catalog.Product{ID: 4, Name: "Bulk Dough", UnitPrice: dec("3.00"), ManualPrice: true, ManualQuantity: true}
)

func TestDirectAddResolvesImmediately(t *testing.T) {
	r := NewResolver()

	res, resolved, err := r.Begin(directProduct)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !resolved {
		t.Fatal("direct product should resolve immediately")
	}
	if !res.Quantity.Equal(dec("1")) {
		t.Errorf("direct add quantity should be 1, got %s", res.Quantity)
	}
	if !res.UnitPrice.Equal(dec("5.00")) {
		t.Errorf("direct add should use catalog price, got %s", res.UnitPrice)
	}
	if res.ManualPrice {
		t.Error("direct add must not be marked manual price")
	}
	if r.State() != StateIdle {
		t.Errorf("resolver should return to idle, got %s", r.State())
	}
}

func TestPriceEntryDerivesQuantityAndEffectivePrice(t *testing.T) {
	r := NewResolver()

	if _, resolved, err := r.Begin(breadProduct); err != nil || resolved {
		t.Fatalf("expected pending price entry, resolved=%v err=%v", resolved, err)
	}
	if r.State() != StatePricePending {
		t.Fatalf("expected price_pending, got %s", r.State())
	}

	// unitPrice=2.00, enteredTotal=4.99: quantity = round(4.99/2.00, 2) = 2.50
	// and effective unit price = 4.99/2.50 = 1.996.
	res, resolved, err := r.SubmitPrice("4.99")
	if err != nil {
		t.Fatalf("SubmitPrice failed: %v", err)
	}
	if !resolved {
		t.Fatal("price-only product should resolve after price entry")
	}
	if !res.Quantity.Equal(dec("2.5")) {
		t.Errorf("expected derived quantity 2.5, got %s", res.Quantity)
	}
	if !res.UnitPrice.Equal(dec("1.996")) {
		t.Errorf("expected effective unit price 1.996, got %s", res.UnitPrice)
	}
	if !res.UnitPrice.Mul(res.Quantity).Equal(dec("4.99")) {
		t.Errorf("line total must stay exact at 4.99, got %s", res.UnitPrice.Mul(res.Quantity))
	}
	if !res.ManualPrice {
		t.Error("price entry must mark the resolution as manual price")
	}
}

func TestPriceEntryRoundsHalfUp(t *testing.T) {
	r := NewResolver()
	r.Begin(breadProduct)

	// 2.005 / 2.00 = 1.0025 -> rounds half-up at the 2nd decimal to 1.00.
	res, _, err := r.SubmitPrice("2.005")
	if err != nil {
		t.Fatalf("SubmitPrice failed: %v", err)
	}
	if !res.Quantity.Equal(dec("1")) {
		t.Errorf("expected quantity 1, got %s", res.Quantity)
	}

	r2 := NewResolver()
	r2.Begin(breadProduct)

	// 2.01 / 2.00 = 1.005 -> 1.01 (half rounds up).
	res2, _, err := r2.SubmitPrice("2.01")
	if err != nil {
		t.Fatalf("SubmitPrice failed: %v", err)
	}
	if !res2.Quantity.Equal(dec("1.01")) {
		t.Errorf("expected quantity 1.01, got %s", res2.Quantity)
	}
}

func TestPriceEntryRejectsInvalidInput(t *testing.T) {
	for _, input := range []string{"", "abc", "0", "-2.50"} {
		r := NewResolver()
		r.Begin(breadProduct)

		if _, _, err := r.SubmitPrice(input); err == nil {
			t.Errorf("expected rejection for price input %q", input)
		}
		if r.State() != StatePricePending {
			t.Errorf("rejected input must not change state, got %s", r.State())
		}
	}
}

func TestPriceEntryRejectsZeroCatalogPrice(t *testing.T) {
	unpriced := catalog.Product{ID: 9, Name: "Mystery Item", UnitPrice: decimal.Zero, ManualPrice: true}

	r := NewResolver()
	r.Begin(unpriced)

	_, resolved, err := r.SubmitPrice("4.99")
	if err == nil {
		t.Fatal("expected rejection for a product without a catalog price")
	}
	if resolved {
		t.Fatal("entry must not resolve without a catalog price")
	}
	if r.State() != StatePricePending {
		t.Errorf("rejected input must not change state, got %s", r.State())
	}
}

func TestQuantityEntry(t *testing.T) {
	r := NewResolver()

	if _, resolved, _ := r.Begin(tomatoProduct); resolved {
		t.Fatal("manual-quantity product should not resolve immediately")
	}
	if r.State() != StateQuantityPending {
		t.Fatalf("expected quantity_pending, got %s", r.State())
	}

	res, resolved, err := r.SubmitQuantity("2.5")
	if err != nil {
		t.Fatalf("SubmitQuantity failed: %v", err)
	}
	if !resolved {
		t.Fatal("quantity entry should resolve")
	}
	if !res.Quantity.Equal(dec("2.5")) {
		t.Errorf("expected quantity 2.5, got %s", res.Quantity)
	}
	if !res.UnitPrice.Equal(dec("4.00")) {
		t.Errorf("quantity-only entry keeps the catalog price, got %s", res.UnitPrice)
	}
	if res.ManualPrice {
		t.Error("quantity-only entry must not be marked manual price")
	}
}

func TestQuantityEntryRejectsInvalidInput(t *testing.T) {
	for _, input := range []string{"", "x", "0", "-1"} {
		r := NewResolver()
		r.Begin(tomatoProduct)

		if _, _, err := r.SubmitQuantity(input); err == nil {
			t.Errorf("expected rejection for quantity input %q", input)
		}
		if r.State() != StateQuantityPending {
			t.Errorf("rejected input must not change state, got %s", r.State())
		}
	}
}

func TestPriceThenQuantityChain(t *testing.T) {
	r := NewResolver()
	r.Begin(weighed)

	if _, resolved, err := r.SubmitPrice("6.00"); err != nil || resolved {
		t.Fatalf("price entry should chain into quantity entry, resolved=%v err=%v", resolved, err)
	}
	if r.State() != StateQuantityPending {
		t.Fatalf("expected quantity_pending after price, got %s", r.State())
	}

	res, resolved, err := r.SubmitQuantity("3")
	if err != nil {
		t.Fatalf("SubmitQuantity failed: %v", err)
	}
	if !resolved {
		t.Fatal("chain should resolve after quantity entry")
	}
	// 6.00 / 3.00 catalog price = qty 2, effective price 6.00/2 = 3.00;
	// the operator's explicit quantity then overrides the derived one.
	if !res.Quantity.Equal(dec("3")) {
		t.Errorf("operator quantity should win, got %s", res.Quantity)
	}
	if !res.ManualPrice {
		t.Error("chained resolution keeps the manual price flag")
	}
}

func TestCancelDiscardsPendingSelection(t *testing.T) {
	r := NewResolver()
	r.Begin(breadProduct)
	r.Cancel()

	if r.State() != StateIdle {
		t.Errorf("cancel should return to idle, got %s", r.State())
	}
	if _, ok := r.Pending(); ok {
		t.Error("no pending product should survive a cancel")
	}

	// A fresh add works after cancelling.
	if _, resolved, err := r.Begin(directProduct); err != nil || !resolved {
		t.Errorf("fresh add after cancel should work, resolved=%v err=%v", resolved, err)
	}
}

func TestBeginWhileEntryPendingIsRejected(t *testing.T) {
	r := NewResolver()
	r.Begin(breadProduct)

	if _, _, err := r.Begin(directProduct); err != ErrEntryInProgress {
		t.Errorf("expected ErrEntryInProgress, got %v", err)
	}
}

func TestSubmitWithoutPendingEntry(t *testing.T) {
	r := NewResolver()

	if _, _, err := r.SubmitPrice("2.00"); err != ErrNoPendingEntry {
		t.Errorf("expected ErrNoPendingEntry, got %v", err)
	}
	if _, _, err := r.SubmitQuantity("1"); err != ErrNoPendingEntry {
		t.Errorf("expected ErrNoPendingEntry, got %v", err)
	}
}
