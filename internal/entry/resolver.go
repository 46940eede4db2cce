// internal/entry/resolver.go
package entry

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"posterminal/internal/catalog"
)

// State of the manual-entry flow for the current add-item action. The flow
// is a small tagged machine: Direct adds resolve immediately, products with
// manual flags pass through one or both pending states before resolving.
type State int

const (
	StateIdle State = iota
	StatePricePending
	StateQuantityPending
)

func (s State) String() string {
	switch s {
	case StatePricePending:
		return "price_pending"
	case StateQuantityPending:
		return "quantity_pending"
	default:
		return "idle"
	}
}

var (
	ErrNoPendingEntry  = errors.New("no manual entry in progress")
	ErrEntryInProgress = errors.New("finish or cancel the current manual entry first")
)

// Resolution is a fully determined add-item outcome, ready to merge into
// the cart once the stock check passes.
type Resolution struct {
	Product     catalog.Product
	UnitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	ManualPrice bool
}

// Resolver holds the in-progress manual entry for one terminal session.
type Resolver struct {
	state       State
	product     catalog.Product
	unitPrice   decimal.Decimal
	manualPrice bool
}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) State() State {
	return r.state
}

// Pending returns the product awaiting manual entry, if any.
func (r *Resolver) Pending() (catalog.Product, bool) {
	if r.state == StateIdle {
		return catalog.Product{}, false
	}
	return r.product, true
}

// Begin starts an add-item action. Products without manual flags resolve
// immediately with quantity 1; otherwise the resolver parks in the first
// pending state and the returned bool is false.
func (r *Resolver) Begin(p catalog.Product) (Resolution, bool, error) {
	if r.state != StateIdle {
		return Resolution{}, false, ErrEntryInProgress
	}

	switch {
	case p.ManualPrice:
		r.state = StatePricePending
		r.product = p
		r.unitPrice = p.UnitPrice
		r.manualPrice = false
		return Resolution{}, false, nil

	case p.ManualQuantity:
		r.state = StateQuantityPending
		r.product = p
		r.unitPrice = p.UnitPrice
		r.manualPrice = false
		return Resolution{}, false, nil

	default:
		return Resolution{
			Product:   p,
			UnitPrice: p.UnitPrice,
			Quantity:  decimal.NewFromInt(1),
		}, true, nil
	}
}

// SubmitPrice consumes the operator's total-price entry. The quantity is
// derived as enteredTotal / catalogUnitPrice rounded half-up to 2 decimal
// places, and the unit price stored on the line is recomputed as
// enteredTotal / roundedQuantity so the line total stays exact. A product
// that also requires manual quantity moves on to quantity entry instead of
// resolving.
func (r *Resolver) SubmitPrice(text string) (Resolution, bool, error) {
	if r.state != StatePricePending {
		return Resolution{}, false, ErrNoPendingEntry
	}

	total, err := decimal.NewFromString(text)
	if err != nil || !total.IsPositive() {
		return Resolution{}, false, fmt.Errorf("enter a valid total price for %s", r.product.Name)
	}

	// The division below needs a positive catalog price.
	if !r.product.UnitPrice.IsPositive() {
		return Resolution{}, false, fmt.Errorf("%s has no catalog price to derive a quantity from", r.product.Name)
	}

	quantity := total.Div(r.product.UnitPrice).Round(2)
	if !quantity.IsPositive() {
		return Resolution{}, false, fmt.Errorf("total price %s is too small for %s", total, r.product.Name)
	}

	effective := total.Div(quantity)

	if r.product.ManualQuantity {
		r.state = StateQuantityPending
		r.unitPrice = effective
		r.manualPrice = true
		return Resolution{}, false, nil
	}

	res := Resolution{
		Product:     r.product,
		UnitPrice:   effective,
		Quantity:    quantity,
		ManualPrice: true,
	}
	r.reset()
	return res, true, nil
}

// SubmitQuantity consumes the operator's quantity entry. Fractional values
// are legal for weighed goods.
func (r *Resolver) SubmitQuantity(text string) (Resolution, bool, error) {
	if r.state != StateQuantityPending {
		return Resolution{}, false, ErrNoPendingEntry
	}

	quantity, err := decimal.NewFromString(text)
	if err != nil || !quantity.IsPositive() {
		return Resolution{}, false, fmt.Errorf("enter a valid quantity for %s", r.product.Name)
	}

	res := Resolution{
		Product:     r.product,
		UnitPrice:   r.unitPrice,
		Quantity:    quantity,
		ManualPrice: r.manualPrice,
	}
	r.reset()
	return res, true, nil
}

// Cancel discards the pending selection. Dismissing the entry modal is a
// terminal state of the flow, nothing reaches the cart.
func (r *Resolver) Cancel() {
	r.reset()
}

func (r *Resolver) reset() {
	r.state = StateIdle
	r.product = catalog.Product{}
	r.unitPrice = decimal.Zero
	r.manualPrice = false
}
