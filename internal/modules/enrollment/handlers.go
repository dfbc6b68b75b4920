package enrollment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"zenmode/internal/domain"
	"zenmode/internal/events"
)

// MonitorNotifier is implemented by the monitoring loop so enrollment changes
// take effect without waiting for the next tick.
type MonitorNotifier interface {
	Wake()
}

// Handler handles enrollment HTTP requests
type Handler struct {
	repo    *Repository
	monitor MonitorNotifier
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandler creates a new enrollment handler. monitor may be nil.
func NewHandler(repo *Repository, monitor MonitorNotifier, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		monitor: monitor,
		events:  eventManager,
		log:     log.With().Str("handler", "enrollment").Logger(),
	}
}

// HandleActivate handles POST /api/zen/activate
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	e, err := h.repo.Activate(req.UserAddress, req.Preferences)
	if err != nil {
		if domain.IsDataError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("user", req.UserAddress).Msg("Failed to activate zen mode")
		http.Error(w, "Failed to activate zen mode", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		h.events.Emit(events.ZenActivated, "enrollment", map[string]interface{}{
			"user_address": e.UserAddress,
			"maker_asset":  e.Preferences.MakerAsset,
			"taker_asset":  e.Preferences.TakerAsset,
		})
	}
	if h.monitor != nil {
		h.monitor.Wake()
	}

	writeJSON(w, http.StatusOK, toStatusResponse(e))
}

// HandleDeactivate handles POST /api/zen/deactivate
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req DeactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		http.Error(w, "user_address is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Deactivate(req.UserAddress); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Enrollment not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("user", req.UserAddress).Msg("Failed to deactivate zen mode")
		http.Error(w, "Failed to deactivate zen mode", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		h.events.Emit(events.ZenDeactivated, "enrollment", map[string]interface{}{
			"user_address": req.UserAddress,
		})
	}
	if h.monitor != nil {
		h.monitor.Wake()
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// HandleGetStatus handles GET /api/zen/{address}
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	e, err := h.repo.Get(address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Enrollment not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("user", address).Msg("Failed to get enrollment")
		http.Error(w, "Failed to get enrollment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(e))
}

func toStatusResponse(e *domain.Enrollment) StatusResponse {
	resp := StatusResponse{
		UserAddress: e.UserAddress,
		Active:      e.IsActive,
		Preferences: e.Preferences,
		CreatedAt:   e.CreatedAt.Unix(),
		UpdatedAt:   e.UpdatedAt.Unix(),
	}
	if e.LastCheckedAt != nil {
		ts := e.LastCheckedAt.Unix()
		resp.LastCheckedAt = &ts
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
