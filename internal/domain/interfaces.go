package domain

import (
	"context"
	"time"
)

// EnrollmentStore is the narrow view of enrollment persistence the monitoring
// engine consumes. The store owns the rows; the engine holds no copy across
// ticks and re-reads the active set on every cycle.
type EnrollmentStore interface {
	// ListActive returns all active enrollments as a single consistent read.
	ListActive() ([]Enrollment, error)

	// MarkChecked records a successful evaluation-and-order cycle. Only
	// called after the corresponding order has been persisted.
	MarkChecked(userAddress string, ts time.Time) error
}

// OrderRepository is the single source of truth for order state. Status
// transitions are conditional on the current status so that concurrent
// writers cannot both move an order out of Created.
type OrderRepository interface {
	Create(order *Order) error
	GetByID(id string) (*Order, error)

	// MarkFilled transitions Created -> Filled recording the execution
	// receipt. Returns false when the order was not in Created.
	MarkFilled(id, txHash string) (bool, error)

	// MarkFailed transitions Created -> Failed recording the reason.
	// Returns false when the order was not in Created.
	MarkFailed(id, reason string) (bool, error)

	// MarkExpired transitions Created -> Expired. Returns false when the
	// order was not in Created.
	MarkExpired(id string) (bool, error)
}

// Oracle supplies market and balance snapshots. Failures are transient
// (service unavailable, timeout) or permanent (bad request); callers
// distinguish the two via IsTransient.
type Oracle interface {
	GetMarketSnapshot(ctx context.Context) (*MarketData, error)
	GetBalance(ctx context.Context, address, token string) (*Balance, error)
}

// PriceHistoryProvider supplies recent per-token prices, oldest first.
// Used by policy refinements that look at more than the current snapshot.
type PriceHistoryProvider interface {
	GetPriceHistory(ctx context.Context, token string, limit int) ([]float64, error)
}

// OrderSigner produces the maker-side signature over fully-specified order
// terms. The signing scheme is opaque to the rest of the system.
type OrderSigner interface {
	Address() string
	Sign(terms OrderTerms) ([]byte, error)
}

// SubmissionVenue executes a signed order on chain. Submit returns the
// execution receipt reference on success, ErrRejected on an explicit
// rejection, and a transient error (or ctx error) on timeout.
type SubmissionVenue interface {
	Submit(ctx context.Context, order SignedOrder) (string, error)
}
