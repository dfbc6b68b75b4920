package enrollment

import (
	"zenmode/internal/domain"
)

// ActivateRequest is the payload for POST /api/zen/activate
type ActivateRequest struct {
	UserAddress string             `json:"user_address"`
	Preferences domain.Preferences `json:"preferences"`
}

// DeactivateRequest is the payload for POST /api/zen/deactivate
type DeactivateRequest struct {
	UserAddress string `json:"user_address"`
}

// StatusResponse describes one user's enrollment for the API
type StatusResponse struct {
	UserAddress   string             `json:"user_address"`
	Active        bool               `json:"active"`
	Preferences   domain.Preferences `json:"preferences"`
	LastCheckedAt *int64             `json:"last_checked_at,omitempty"`
	CreatedAt     int64              `json:"created_at"`
	UpdatedAt     int64              `json:"updated_at"`
}
