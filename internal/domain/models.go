// Package domain contains the core types shared across modules.
// It has no infrastructure dependencies.
package domain

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"time"
)

// Preferences holds the per-user parameters for automated order creation.
// Interpreted only by the policy evaluator and the order builder.
type Preferences struct {
	MakerAsset string `json:"maker_asset"`
	TakerAsset string `json:"taker_asset"`
	Amount     string `json:"amount"` // smallest-unit integer, decimal string
}

// Validate checks that all required preference fields are present and numeric.
// Called at the enrollment store boundary so malformed preferences are
// rejected at construction time rather than discovered mid-tick.
func (p Preferences) Validate() error {
	if strings.TrimSpace(p.MakerAsset) == "" {
		return &DataError{Field: "maker_asset", Reason: "missing maker asset"}
	}
	if strings.TrimSpace(p.TakerAsset) == "" {
		return &DataError{Field: "taker_asset", Reason: "missing taker asset"}
	}
	if _, err := p.AmountInt(); err != nil {
		return err
	}
	return nil
}

// AmountInt parses the target amount as an exact integer quantity.
func (p Preferences) AmountInt() (*big.Int, error) {
	s := strings.TrimSpace(p.Amount)
	if s == "" {
		return nil, &DataError{Field: "amount", Reason: "missing amount"}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &DataError{Field: "amount", Reason: "amount is not an integer"}
	}
	if n.Sign() <= 0 {
		return nil, &DataError{Field: "amount", Reason: "amount must be positive"}
	}
	return n, nil
}

// Enrollment is a user's active participation in zen mode.
// At most one enrollment row exists per user address.
type Enrollment struct {
	UserAddress   string      `json:"user_address"`
	Preferences   Preferences `json:"preferences"`
	IsActive      bool        `json:"is_active"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty"` // nil = never evaluated
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MarketData is a point-in-time market snapshot from the oracle.
type MarketData struct {
	Prices    map[string]float64 `json:"prices"`
	Volume    float64            `json:"volume"`
	Timestamp time.Time          `json:"timestamp"`
}

// Balance is a token holding in the token's smallest unit.
type Balance struct {
	Amount   *big.Int `json:"amount"`
	Decimals int      `json:"decimals"`
}

// OrderStatus tracks an order through its lifecycle.
// Created is the only non-terminal state; no transition leaves a terminal one.
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusFilled  OrderStatus = "filled"
	OrderStatusExpired OrderStatus = "expired"
	OrderStatusFailed  OrderStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusExpired || s == OrderStatusFailed
}

// OrderTerms are the fully-specified terms the maker commits to.
// The signature binds the maker to exactly these values.
type OrderTerms struct {
	Maker        string   `json:"maker"`
	MakerAsset   string   `json:"maker_asset"`
	TakerAsset   string   `json:"taker_asset"`
	MakingAmount *big.Int `json:"making_amount"`
	TakingAmount *big.Int `json:"taking_amount"`
	Nonce        uint64   `json:"nonce"`
	ExpiresAt    int64    `json:"expires_at"` // Unix seconds
}

// SignedOrder is an order artifact: terms plus the maker-side signature.
// Opaque to everything except the signer and the fulfillment executor.
type SignedOrder struct {
	Terms     OrderTerms `json:"terms"`
	Signature HexBytes   `json:"signature"`
}

// HexBytes marshals a byte slice as a 0x-prefixed hex string.
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// Order is a persisted signed limit order built on behalf of a maker.
// Immutable once created except for the status transition.
type Order struct {
	ID            string      `json:"id"`
	UserAddress   string      `json:"user_address"`
	MakerAsset    string      `json:"maker_asset"`
	TakerAsset    string      `json:"taker_asset"`
	MakingAmount  *big.Int    `json:"making_amount"`
	TakingAmount  *big.Int    `json:"taking_amount"`
	Nonce         uint64      `json:"nonce"`
	SignedPayload SignedOrder `json:"signed_payload"`
	Status        OrderStatus `json:"status"`
	FailureReason string      `json:"failure_reason,omitempty"`
	TxHash        string      `json:"tx_hash,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
}

// IsExpiredAt reports whether the order is logically expired at t.
// A Created order past its expiry is expired for all decision purposes,
// even before the persisted status has been corrected.
func (o *Order) IsExpiredAt(t time.Time) bool {
	return o.Status == OrderStatusCreated && t.After(o.ExpiresAt)
}

// FulfillmentResult is the outcome of a taker-side fulfillment attempt.
type FulfillmentResult struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	TxHash  string      `json:"tx_hash,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}
