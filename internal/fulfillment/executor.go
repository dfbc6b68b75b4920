// Package fulfillment executes open orders against a submission venue.
// Execution is idempotent: a filled order replays its stored receipt, and an
// attempt whose outcome is unknown leaves the order open for a retry.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/domain"
	"zenmode/internal/events"
	"zenmode/internal/locking"
)

// Executor fulfills orders one at a time per order id
type Executor struct {
	repo          domain.OrderRepository
	venue         domain.SubmissionVenue
	locks         *locking.Manager
	events        *events.Manager
	submitTimeout time.Duration
	log           zerolog.Logger

	now func() time.Time
}

// NewExecutor creates a fulfillment executor
func NewExecutor(repo domain.OrderRepository, venue domain.SubmissionVenue, locks *locking.Manager, eventManager *events.Manager, submitTimeout time.Duration, log zerolog.Logger) *Executor {
	return &Executor{
		repo:          repo,
		venue:         venue,
		locks:         locks,
		events:        eventManager,
		submitTimeout: submitTimeout,
		log:           log.With().Str("component", "fulfillment").Logger(),
		now:           time.Now,
	}
}

// Fulfill drives one order to a terminal status where possible.
//
//   - An order already filled returns its stored receipt again.
//   - Failed and expired orders return ErrAlreadyResolved and ErrExpired.
//   - A venue rejection marks the order failed and reports that outcome.
//   - A submission whose outcome is unknown (timeout, network) returns a
//     transient error and leaves the order open.
//
// Concurrent calls for the same order are serialized; the loser of the race
// observes whatever the winner decided.
func (e *Executor) Fulfill(ctx context.Context, orderID string) (*domain.FulfillmentResult, error) {
	e.locks.Acquire("order:" + orderID)
	defer e.locks.Release("order:" + orderID)

	order, err := e.repo.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusFilled:
		// Idempotent replay of the recorded outcome
		return &domain.FulfillmentResult{
			OrderID: order.ID,
			Status:  domain.OrderStatusFilled,
			TxHash:  order.TxHash,
		}, nil
	case domain.OrderStatusFailed:
		return nil, fmt.Errorf("order %s already failed: %w", order.ID, domain.ErrAlreadyResolved)
	case domain.OrderStatusExpired:
		return nil, fmt.Errorf("order %s: %w", order.ID, domain.ErrExpired)
	}

	if order.IsExpiredAt(e.now()) {
		if _, err := e.repo.MarkExpired(order.ID); err != nil {
			return nil, err
		}
		e.emit(events.OrderExpired, order.ID, nil)
		return nil, fmt.Errorf("order %s: %w", order.ID, domain.ErrExpired)
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	txHash, err := e.venue.Submit(submitCtx, order.SignedPayload)
	if err != nil {
		if errors.Is(err, domain.ErrRejected) {
			return e.recordFailure(order.ID, err)
		}
		// Unknown outcome: the order stays open so a later attempt can
		// settle it one way or the other.
		e.log.Warn().Err(err).Str("order_id", order.ID).Msg("Submission outcome unknown")
		if domain.IsTransient(err) {
			return nil, err
		}
		return nil, domain.Transient("submit", err)
	}

	ok, err := e.repo.MarkFilled(order.ID, txHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the transition race; report whatever won
		return e.resolveSettled(order.ID)
	}

	e.log.Info().Str("order_id", order.ID).Str("tx_hash", txHash).Msg("Order filled")
	e.emit(events.OrderFilled, order.ID, map[string]interface{}{"tx_hash": txHash})

	return &domain.FulfillmentResult{
		OrderID: order.ID,
		Status:  domain.OrderStatusFilled,
		TxHash:  txHash,
	}, nil
}

func (e *Executor) recordFailure(orderID string, cause error) (*domain.FulfillmentResult, error) {
	ok, err := e.repo.MarkFailed(orderID, cause.Error())
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.resolveSettled(orderID)
	}

	e.log.Warn().Err(cause).Str("order_id", orderID).Msg("Order failed")
	e.emit(events.OrderFailed, orderID, map[string]interface{}{"reason": cause.Error()})

	return &domain.FulfillmentResult{
		OrderID: orderID,
		Status:  domain.OrderStatusFailed,
		Reason:  cause.Error(),
	}, nil
}

// resolveSettled re-reads an order that reached a terminal status through
// another writer and reports that outcome.
func (e *Executor) resolveSettled(orderID string) (*domain.FulfillmentResult, error) {
	order, err := e.repo.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusFilled:
		return &domain.FulfillmentResult{
			OrderID: order.ID,
			Status:  domain.OrderStatusFilled,
			TxHash:  order.TxHash,
		}, nil
	case domain.OrderStatusFailed:
		return nil, fmt.Errorf("order %s already failed: %w", order.ID, domain.ErrAlreadyResolved)
	case domain.OrderStatusExpired:
		return nil, fmt.Errorf("order %s: %w", order.ID, domain.ErrExpired)
	default:
		return nil, fmt.Errorf("order %s in unexpected status %s after settlement race", order.ID, order.Status)
	}
}

func (e *Executor) emit(eventType events.EventType, orderID string, data map[string]interface{}) {
	if e.events == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["order_id"] = orderID
	e.events.Emit(eventType, "fulfillment", data)
}
