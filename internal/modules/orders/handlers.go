package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

// Fulfiller executes fulfillment of an open order
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID string) (*domain.FulfillmentResult, error)
}

// Handler handles order HTTP requests
type Handler struct {
	repo      *Repository
	fulfiller Fulfiller
	log       zerolog.Logger
}

// NewHandler creates a new orders handler. fulfiller may be nil when no
// submission venue is configured.
func NewHandler(repo *Repository, fulfiller Fulfiller, log zerolog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		fulfiller: fulfiller,
		log:       log.With().Str("handler", "orders").Logger(),
	}
}

// HandleList handles GET /api/orders with optional status and user filters
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	user := r.URL.Query().Get("user")

	var orders []domain.Order
	var err error

	switch {
	case status != "":
		s := domain.OrderStatus(status)
		if s != domain.OrderStatusCreated && !s.IsTerminal() {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		orders, err = h.repo.ListByStatus(s)
	case user != "":
		orders, err = h.repo.ListByUser(user)
	default:
		orders, err = h.repo.ListAll()
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list orders")
		http.Error(w, "Failed to retrieve orders", http.StatusInternalServerError)
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleGet handles GET /api/orders/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("order_id", id).Msg("Failed to get order")
		http.Error(w, "Failed to retrieve order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// HandleFulfill handles POST /api/orders/{id}/fulfill
func (h *Handler) HandleFulfill(w http.ResponseWriter, r *http.Request) {
	if h.fulfiller == nil {
		http.Error(w, "Fulfillment is not configured", http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	result, err := h.fulfiller.Fulfill(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrAlreadyResolved):
			http.Error(w, "Order already resolved", http.StatusConflict)
		case errors.Is(err, domain.ErrExpired):
			http.Error(w, "Order expired", http.StatusGone)
		case domain.IsTransient(err):
			h.log.Warn().Err(err).Str("order_id", id).Msg("Fulfillment attempt failed transiently")
			http.Error(w, "Fulfillment outcome unknown, retry later", http.StatusBadGateway)
		default:
			h.log.Error().Err(err).Str("order_id", id).Msg("Fulfillment failed")
			http.Error(w, "Fulfillment failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
