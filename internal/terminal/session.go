// internal/terminal/session.go
package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/cart"
	"posterminal/internal/catalog"
	"posterminal/internal/checkout"
	"posterminal/internal/entry"
	"posterminal/internal/receipt"
	"posterminal/internal/stock"
)

// noticeTTL is how long an ephemeral operator message stays visible in the
// session status before auto-dismissing.
const noticeTTL = 5 * time.Second

// Session is one terminal's cart/checkout engine. It exclusively owns the
// cart state and the stock snapshot; every mutation funnels through its
// methods, serialized by one mutex (the UI drives discrete events, there is
// no concurrent cart mutation by design).
type Session struct {
	mu sync.Mutex

	catalog  *catalog.Service
	stock    *stock.Snapshot
	cart     *cart.Cart
	resolver *entry.Resolver
	seq      *checkout.Sequencer

	taxRate  decimal.Decimal
	notice   string
	noticeAt time.Time
}

func NewSession(cat *catalog.Service, snap *stock.Snapshot, submitter checkout.SaleSubmitter, taxRate decimal.Decimal, userID int64) *Session {
	c := cart.New()
	return &Session{
		catalog:  cat,
		stock:    snap,
		cart:     c,
		resolver: entry.NewResolver(),
		seq:      checkout.NewSequencer(c, submitter, snap, taxRate, userID),
		taxRate:  taxRate,
	}
}

// CartView is the cart panel: lines in insertion order plus derived totals.
type CartView struct {
	Lines  []cart.Line `json:"lines"`
	Totals cart.Totals `json:"totals"`
}

// AddOutcome reports what an add-item action did: either the item reached
// the cart, or the terminal is waiting on a manual price/quantity entry.
type AddOutcome struct {
	Pending    bool     `json:"pending"`
	EntryState string   `json:"entry_state"`
	Cart       CartView `json:"cart"`
}

// Status is the terminal's current state for the UI to poll.
type Status struct {
	EntryState    string                `json:"entry_state"`
	ChargeState   string                `json:"charge_state"`
	Notice        string                `json:"notice,omitempty"`
	ChargeInputs  checkout.ChargeInputs `json:"charge_inputs"`
	LastError     string                `json:"last_error,omitempty"`
	Cart          CartView              `json:"cart"`
	CatalogCount  int                   `json:"catalog_count"`
	StockCacheAge string                `json:"stock_cache_age"`
}

// Products filters the catalog for the item grid.
func (s *Session) Products(categoryID int64, search string) []catalog.Product {
	return s.catalog.Filter(categoryID, search)
}

// AddItem handles an item-grid click. Direct products go straight to the
// cart (stock permitting); products with manual flags park in the entry
// flow until the operator supplies the missing values.
func (s *Session) AddItem(productID int64) (AddOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.catalog.Get(productID)
	if err != nil {
		return s.outcome(), err
	}

	res, resolved, err := s.resolver.Begin(product)
	if err != nil {
		return s.outcome(), s.noted(err)
	}
	if !resolved {
		return s.outcome(), nil
	}

	return s.mergeResolution(res)
}

// SubmitPrice handles the manual total-price entry.
func (s *Session) SubmitPrice(text string) (AddOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, resolved, err := s.resolver.SubmitPrice(text)
	if err != nil {
		return s.outcome(), s.noted(err)
	}
	if !resolved {
		return s.outcome(), nil
	}

	return s.mergeResolution(res)
}

// SubmitQuantity handles the manual quantity entry.
func (s *Session) SubmitQuantity(text string) (AddOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, resolved, err := s.resolver.SubmitQuantity(text)
	if err != nil {
		return s.outcome(), s.noted(err)
	}
	if !resolved {
		return s.outcome(), nil
	}

	return s.mergeResolution(res)
}

// CancelEntry dismisses the manual-entry modal, discarding the pending
// selection.
func (s *Session) CancelEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver.Cancel()
}

// mergeResolution applies the stock check and merges a resolved add into
// the cart. Callers hold the mutex.
func (s *Session) mergeResolution(res entry.Resolution) (AddOutcome, error) {
	if err := s.checkStock(res.Product, res.Quantity); err != nil {
		return s.outcome(), s.noted(err)
	}

	if err := s.cart.AddOrMerge(res.Product.ID, res.Product.Name, res.UnitPrice, res.Quantity, res.ManualPrice); err != nil {
		return s.outcome(), s.noted(err)
	}

	return s.outcome(), nil
}

// checkStock rejects quantity-affecting transitions that would push the
// cart past the cached closing stock. Callers hold the mutex.
func (s *Session) checkStock(product catalog.Product, addQty decimal.Decimal) error {
	available := s.stock.Available(product.ID)
	requested := s.cart.QuantityOf(product.ID).Add(addQty)
	if requested.GreaterThan(available) {
		return &stock.InsufficientError{
			ProductName: product.Name,
			Requested:   requested,
			Available:   available,
		}
	}
	return nil
}

// Cart returns the current cart panel view.
func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartView()
}

// AdjustLine applies a +/- control click to a cart line. Increases are
// stock-checked; decreases are not (reducing a line can never oversell).
// The quantity floors at 1; removal goes through RemoveLine.
func (s *Session) AdjustLine(index int, delta int64) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := decimal.NewFromInt(delta)
	if d.IsPositive() {
		line, err := s.cart.Line(index)
		if err != nil {
			return s.cartView(), err
		}
		product, err := s.catalog.Get(line.ProductID)
		if err != nil {
			return s.cartView(), err
		}
		if err := s.checkStock(product, d); err != nil {
			return s.cartView(), s.noted(err)
		}
	}

	if _, err := s.cart.AdjustQuantity(index, d); err != nil {
		return s.cartView(), err
	}
	return s.cartView(), nil
}

// RemoveLine deletes a cart line.
func (s *Session) RemoveLine(index int) (CartView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cart.Remove(index); err != nil {
		return s.cartView(), err
	}
	return s.cartView(), nil
}

// OpenCharge opens the charge modal.
func (s *Session) OpenCharge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.seq.OpenCharge(); err != nil {
		return s.noted(err)
	}
	return nil
}

// ConfirmCharge runs the charge confirmation sequence. The session lock is
// held across the whole submission: the cart must not change while a sale is
// deciding its fate, so concurrent session calls queue behind the submission
// instead of observing the submitting state. The sequencer's own in-flight
// guards cover callers that drive it without a Session.
func (s *Session) ConfirmCharge(ctx context.Context, in checkout.ChargeInputs) (checkout.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.seq.Confirm(ctx, in)
	if err != nil {
		return checkout.Result{}, s.noted(err)
	}
	return result, nil
}

// DismissCharge closes the charge modal without confirming.
func (s *Session) DismissCharge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.DismissCharge()
}

// DismissChange closes the change display and discards the result.
func (s *Session) DismissChange() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.DismissChange()
}

// ReceiptHTML renders the printable receipt for the sale currently on the
// change display.
func (s *Session) ReceiptHTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.seq.Result()
	if !ok {
		return "", fmt.Errorf("no completed sale to print")
	}

	return receipt.Render(receipt.Data{
		Number:        receipt.NewNumber(),
		Date:          result.Completed,
		Lines:         result.Lines,
		Subtotal:      result.Totals.Subtotal,
		Tax:           result.Totals.Tax,
		Total:         result.Totals.Total,
		Tendered:      result.Tendered,
		Change:        result.Change,
		PaymentMethod: s.seq.Inputs().PaymentMethod,
	})
}

// Status snapshots the terminal state for the UI.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		EntryState:    s.resolver.State().String(),
		ChargeState:   s.seq.State().String(),
		Notice:        s.currentNotice(),
		ChargeInputs:  s.seq.Inputs(),
		LastError:     s.seq.LastError(),
		Cart:          s.cartView(),
		CatalogCount:  s.catalog.Count(),
		StockCacheAge: s.stock.CacheAge().Truncate(time.Second).String(),
	}
}

func (s *Session) cartView() CartView {
	return CartView{
		Lines:  s.cart.Lines(),
		Totals: s.cart.Totals(s.taxRate),
	}
}

func (s *Session) outcome() AddOutcome {
	return AddOutcome{
		Pending:    s.resolver.State() != entry.StateIdle,
		EntryState: s.resolver.State().String(),
		Cart:       s.cartView(),
	}
}

// noted records an ephemeral operator message and passes the error through.
func (s *Session) noted(err error) error {
	s.notice = err.Error()
	s.noticeAt = time.Now()
	return err
}

func (s *Session) currentNotice() string {
	if s.notice == "" || time.Since(s.noticeAt) > noticeTTL {
		return ""
	}
	return s.notice
}
