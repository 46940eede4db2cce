// internal/terminal/handlers.go
package terminal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"posterminal/internal/backend"
	"posterminal/internal/cart"
	"posterminal/internal/checkout"
	"posterminal/internal/entry"
	"posterminal/internal/middleware"
	"posterminal/internal/stock"
)

// Handler is the HTTP layer over one terminal session.
type Handler struct {
	session *Session
}

func NewHandler(session *Session) *Handler {
	return &Handler{session: session}
}

// RegisterRoutes mounts the terminal API on the provided router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/products", middleware.APIMiddleware(h.ListProducts)).Methods(http.MethodGet)

	r.HandleFunc("/cart", middleware.APIMiddleware(h.GetCart)).Methods(http.MethodGet)
	r.HandleFunc("/cart/items", middleware.APIMiddleware(h.AddItem)).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{index}/adjust", middleware.APIMiddleware(h.AdjustLine)).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{index}", middleware.APIMiddleware(h.RemoveLine)).Methods(http.MethodDelete)

	r.HandleFunc("/entry/price", middleware.APIMiddleware(h.SubmitPrice)).Methods(http.MethodPost)
	r.HandleFunc("/entry/quantity", middleware.APIMiddleware(h.SubmitQuantity)).Methods(http.MethodPost)
	r.HandleFunc("/entry", middleware.APIMiddleware(h.CancelEntry)).Methods(http.MethodDelete)

	r.HandleFunc("/charge", middleware.APIMiddleware(h.OpenCharge)).Methods(http.MethodPost)
	r.HandleFunc("/charge/confirm", middleware.APIMiddleware(h.ConfirmCharge)).Methods(http.MethodPost)
	r.HandleFunc("/charge", middleware.APIMiddleware(h.DismissCharge)).Methods(http.MethodDelete)
	r.HandleFunc("/charge/change", middleware.APIMiddleware(h.DismissChange)).Methods(http.MethodDelete)

	r.HandleFunc("/receipt", middleware.APIMiddleware(h.Receipt)).Methods(http.MethodGet)
	r.HandleFunc("/status", middleware.APIMiddleware(h.GetStatus)).Methods(http.MethodGet)
}

// --- request shapes ---

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
}

type manualEntryRequest struct {
	Value string `json:"value"`
}

type adjustRequest struct {
	Delta int64 `json:"delta"`
}

// ListProducts handles GET /products?category=&q=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if raw := r.URL.Query().Get("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
				"category must be numeric", "")
			return
		}
		categoryID = id
	}

	products := h.session.Products(categoryID, r.URL.Query().Get("q"))
	middleware.WriteAPISuccess(w, r, products)
}

// AddItem handles POST /cart/items (item-grid click)
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON request", err.Error())
		return
	}

	outcome, err := h.session.AddItem(req.ProductID)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, outcome)
}

// SubmitPrice handles POST /entry/price
func (h *Handler) SubmitPrice(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON request", err.Error())
		return
	}

	outcome, err := h.session.SubmitPrice(req.Value)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, outcome)
}

// SubmitQuantity handles POST /entry/quantity
func (h *Handler) SubmitQuantity(w http.ResponseWriter, r *http.Request) {
	var req manualEntryRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON request", err.Error())
		return
	}

	outcome, err := h.session.SubmitQuantity(req.Value)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, outcome)
}

// CancelEntry handles DELETE /entry
func (h *Handler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	h.session.CancelEntry()
	middleware.WriteAPISuccess(w, r, map[string]string{"status": "cancelled"})
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.session.Cart())
}

// AdjustLine handles POST /cart/items/{index}/adjust
func (h *Handler) AdjustLine(w http.ResponseWriter, r *http.Request) {
	index, ok := h.lineIndex(w, r)
	if !ok {
		return
	}

	var req adjustRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON request", err.Error())
		return
	}
	if req.Delta == 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"delta must be non-zero", "")
		return
	}

	view, err := h.session.AdjustLine(index, req.Delta)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, view)
}

// RemoveLine handles DELETE /cart/items/{index}
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	index, ok := h.lineIndex(w, r)
	if !ok {
		return
	}

	view, err := h.session.RemoveLine(index)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, view)
}

// OpenCharge handles POST /charge
func (h *Handler) OpenCharge(w http.ResponseWriter, r *http.Request) {
	if err := h.session.OpenCharge(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, h.session.Status())
}

// ConfirmCharge handles POST /charge/confirm
func (h *Handler) ConfirmCharge(w http.ResponseWriter, r *http.Request) {
	var req checkout.ChargeInputs
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON request", err.Error())
		return
	}

	result, err := h.session.ConfirmCharge(r.Context(), req)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, result)
}

// DismissCharge handles DELETE /charge
func (h *Handler) DismissCharge(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DismissCharge(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, h.session.Status())
}

// DismissChange handles DELETE /charge/change
func (h *Handler) DismissChange(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DismissChange(); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, h.session.Status())
}

// Receipt handles GET /receipt, returning the printable HTML document.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	html, err := h.session.ReceiptHTML()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// GetStatus handles GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.session.Status())
}

func (h *Handler) lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"line index must be numeric", "")
		return 0, false
	}
	return index, true
}

// writeSessionError maps engine errors onto the API error envelope. Every
// failure resolves to an operator-visible message; nothing here is fatal.
func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *stock.InsufficientError
	var validationErr *checkout.ValidationError
	var apiErr *backend.APIError

	switch {
	case errors.As(err, &stockErr):
		middleware.WriteAPIError(w, r, http.StatusConflict, "insufficient_stock", stockErr.Error(), "")
	case errors.As(err, &validationErr):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "validation_error", validationErr.Error(), "")
	case errors.As(err, &apiErr):
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "backend_error", apiErr.Error(), "")
	case errors.Is(err, checkout.ErrCartEmpty):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "cart_empty", err.Error(), "")
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		middleware.WriteAPIError(w, r, http.StatusConflict, "submission_in_flight", err.Error(), "")
	case errors.Is(err, checkout.ErrNoChargeOpen):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "no_charge_open", err.Error(), "")
	case errors.Is(err, entry.ErrEntryInProgress), errors.Is(err, entry.ErrNoPendingEntry):
		middleware.WriteAPIError(w, r, http.StatusConflict, "entry_state", err.Error(), "")
	case errors.Is(err, cart.ErrIndexOutOfRange):
		middleware.WriteAPIError(w, r, http.StatusNotFound, "line_not_found", err.Error(), "")
	default:
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "request_failed", err.Error(), "")
	}
}
