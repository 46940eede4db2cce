// internal/checkout/sequencer.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"posterminal/internal/backend"
	"posterminal/internal/cart"
	"posterminal/internal/logger"
)

// State of the charge flow. One tagged value instead of a pile of modal
// booleans, so contradictory combinations cannot exist.
type State int

const (
	StateIdle State = iota
	StateChargeOpen
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateChargeOpen:
		return "charge_open"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

var (
	ErrCartEmpty          = errors.New("cart is empty")
	ErrNoChargeOpen       = errors.New("no charge in progress")
	ErrSubmissionInFlight = errors.New("a sale submission is already in progress")
)

// ValidationError is a locally detected input problem. No request is sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var customerIDPattern = regexp.MustCompile(`^[1-9][0-9]*$`)

// SaleSubmitter posts one completed sale. Satisfied by backend.Client.
type SaleSubmitter interface {
	SubmitSale(ctx context.Context, sale backend.SaleRequest) (backend.SaleResponse, error)
}

// Refresher re-fetches the stock snapshot. Satisfied by stock.Snapshot.
type Refresher interface {
	Refresh(ctx context.Context)
}

// ChargeInputs are the operator's payment entries. Preserved across a
// failed submission so a retry needs no re-typing.
type ChargeInputs struct {
	PaymentMethod  string `json:"payment_method"`
	CustomerID     string `json:"customer_id"`
	AmountTendered string `json:"amount_tendered"`
}

// Result of a completed sale, held until the operator dismisses the
// change display.
type Result struct {
	SaleID    int64           `json:"sale_id"`
	Change    decimal.Decimal `json:"change"`
	Tendered  decimal.Decimal `json:"tendered"`
	Totals    cart.Totals     `json:"totals"`
	Lines     []cart.Line     `json:"lines"`
	Completed time.Time       `json:"completed"`
}

// Sequencer orchestrates the charge confirmation flow: open modal,
// validate, submit, compute change, refresh stock. It owns the cart for the
// duration of a session; all mutation goes through it or the session that
// wraps it.
type Sequencer struct {
	cart      *cart.Cart
	submitter SaleSubmitter
	refresher Refresher
	taxRate   decimal.Decimal
	userID    int64

	state     State
	inputs    ChargeInputs
	lastError string
	result    *Result
	saving    bool

	// closed after the post-sale refresh completes; tests only
	refreshDone chan struct{}
}

func NewSequencer(c *cart.Cart, submitter SaleSubmitter, refresher Refresher, taxRate decimal.Decimal, userID int64) *Sequencer {
	return &Sequencer{
		cart:      c,
		submitter: submitter,
		refresher: refresher,
		taxRate:   taxRate,
		userID:    userID,
	}
}

func (s *Sequencer) State() State {
	return s.state
}

// LastError returns the most recent submission or validation failure
// message, empty when the last action succeeded.
func (s *Sequencer) LastError() string {
	return s.lastError
}

// Inputs returns the preserved charge inputs for retry prefill.
func (s *Sequencer) Inputs() ChargeInputs {
	return s.inputs
}

// Result returns the completed-sale result while the change display is up.
func (s *Sequencer) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// OpenCharge opens the charge modal. Rejected on an empty cart.
func (s *Sequencer) OpenCharge() error {
	if s.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	if s.cart.IsEmpty() {
		return ErrCartEmpty
	}

	s.state = StateChargeOpen
	s.lastError = ""
	return nil
}

// DismissCharge closes the charge modal without confirming. The cart is
// untouched; inputs are dropped.
func (s *Sequencer) DismissCharge() error {
	switch s.state {
	case StateChargeOpen, StateFailed:
		s.state = StateIdle
		s.inputs = ChargeInputs{}
		s.lastError = ""
		return nil
	case StateSubmitting:
		return ErrSubmissionInFlight
	default:
		return ErrNoChargeOpen
	}
}

// DismissChange closes the change display after a completed sale and
// discards the result.
func (s *Sequencer) DismissChange() error {
	if s.state != StateSucceeded {
		return ErrNoChargeOpen
	}
	s.state = StateIdle
	s.result = nil
	s.inputs = ChargeInputs{}
	return nil
}

// Confirm validates the payment inputs, submits the sale and computes the
// change. Validation short-circuits on the first failure, in order: cart
// non-empty, customer id, amount tendered. On success the cart is cleared
// and the stock snapshot refresh is issued after the sale response, never
// concurrently with it. On failure the cart and inputs survive for retry.
func (s *Sequencer) Confirm(ctx context.Context, in ChargeInputs) (Result, error) {
	switch s.state {
	case StateChargeOpen, StateFailed:
	case StateSubmitting:
		return Result{}, ErrSubmissionInFlight
	default:
		return Result{}, ErrNoChargeOpen
	}

	if s.saving {
		return Result{}, ErrSubmissionInFlight
	}

	s.inputs = in

	if s.cart.IsEmpty() {
		s.lastError = ErrCartEmpty.Error()
		return Result{}, ErrCartEmpty
	}

	if !customerIDPattern.MatchString(in.CustomerID) {
		return s.reject("customer id must be a positive whole number")
	}
	customerID, err := strconv.ParseInt(in.CustomerID, 10, 64)
	if err != nil {
		return s.reject("customer id must be a positive whole number")
	}

	totals := s.cart.Totals(s.taxRate)
	tendered, err := decimal.NewFromString(in.AmountTendered)
	if err != nil {
		return s.reject("amount tendered must be a number")
	}
	if tendered.LessThan(totals.Total) {
		return s.reject(fmt.Sprintf("amount tendered is below the total due: %s required", totals.Total.StringFixed(2)))
	}

	lines := s.cart.Lines()
	items := make([]backend.SaleItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, backend.SaleItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	sale := backend.SaleRequest{
		SalesDate:     time.Now().Format("2006-01-02"),
		Items:         items,
		PaymentMethod: in.PaymentMethod,
		CustomerID:    customerID,
		UserID:        s.userID,
		TaxRate:       decimal.Zero,
		DiscountRate:  decimal.Zero,
	}

	s.state = StateSubmitting
	s.saving = true

	resp, err := s.submitter.SubmitSale(ctx, sale)
	s.saving = false
	if err != nil {
		s.state = StateFailed
		s.lastError = submissionMessage(err)
		logger.LogError("Sale submission failed: %v", err)
		return Result{}, fmt.Errorf("submitting sale: %w", err)
	}

	result := Result{
		SaleID:    resp.ID,
		Change:    tendered.Sub(totals.Total),
		Tendered:  tendered,
		Totals:    totals,
		Lines:     lines,
		Completed: time.Now(),
	}

	s.cart.Clear()
	s.state = StateSucceeded
	s.result = &result
	s.lastError = ""

	logger.LogInfo("Sale %d completed: total %s, tendered %s, change %s",
		result.SaleID, totals.Total.StringFixed(2), tendered.StringFixed(2), result.Change.StringFixed(2))

	// Best-effort: a failed refresh never rolls back the committed sale.
	done := s.refreshDone
	go func() {
		s.refresher.Refresh(context.Background())
		if done != nil {
			close(done)
		}
	}()

	return result, nil
}

func (s *Sequencer) reject(reason string) (Result, error) {
	s.lastError = reason
	return Result{}, &ValidationError{Reason: reason}
}

// submissionMessage surfaces the backend's own wording when there is one,
// otherwise a generic fallback.
func submissionMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "sale could not be submitted, please try again"
}
