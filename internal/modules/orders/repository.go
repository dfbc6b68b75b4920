package orders

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

// Repository handles order persistence and status transitions. All status
// transitions are compare-and-set against the single open status so that
// concurrent writers cannot overwrite a terminal outcome.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new order repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

const orderColumns = "id, user_address, maker_asset, taker_asset, making_amount, taking_amount, nonce, signed_payload, status, failure_reason, tx_hash, expires_at, created_at"

// Create inserts a new order in the open status
func (r *Repository) Create(order *domain.Order) error {
	payloadJSON, err := json.Marshal(order.SignedPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal signed payload: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(
		query,
		order.ID,
		order.UserAddress,
		order.MakerAsset,
		order.TakerAsset,
		order.MakingAmount.String(),
		order.TakingAmount.String(),
		int64(order.Nonce),
		string(payloadJSON),
		string(order.Status),
		order.FailureReason,
		order.TxHash,
		order.ExpiresAt.Unix(),
		order.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	r.log.Info().
		Str("order_id", order.ID).
		Str("user", order.UserAddress).
		Str("making_amount", order.MakingAmount.String()).
		Msg("Order created")
	return nil
}

// GetByID retrieves an order. An open order whose expiry has passed is
// transitioned to expired before being returned, so callers never observe a
// stale open order.
func (r *Repository) GetByID(id string) (*domain.Order, error) {
	order, err := r.fetch(id)
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderStatusCreated && order.IsExpiredAt(time.Now()) {
		if _, err := r.MarkExpired(id); err != nil {
			return nil, err
		}
		return r.fetch(id)
	}
	return order, nil
}

func (r *Repository) fetch(id string) (*domain.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOpen returns all orders still in the open status, oldest first
func (r *Repository) ListOpen() ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY created_at ASC", string(domain.OrderStatusCreated))
}

// ListByUser returns all orders for a user, newest first
func (r *Repository) ListByUser(userAddress string) ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE user_address = ? ORDER BY created_at DESC", userAddress)
}

// ListByStatus returns all orders with the given status, newest first
func (r *Repository) ListByStatus(status domain.OrderStatus) ([]domain.Order, error) {
	return r.list("SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY created_at DESC", string(status))
}

// ListAll returns every order, newest first
func (r *Repository) ListAll() ([]domain.Order, error) {
	return r.list("SELECT " + orderColumns + " FROM orders ORDER BY created_at DESC")
}

func (r *Repository) list(query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// LatestCreatedAt returns the creation time of the user's most recent order,
// or nil when the user has no orders.
func (r *Repository) LatestCreatedAt(userAddress string) (*time.Time, error) {
	var createdAt sql.NullInt64
	err := r.db.QueryRow(
		"SELECT MAX(created_at) FROM orders WHERE user_address = ?",
		userAddress,
	).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest order time: %w", err)
	}
	if !createdAt.Valid {
		return nil, nil
	}
	t := time.Unix(createdAt.Int64, 0)
	return &t, nil
}

// MarkFilled transitions an open order to filled, recording the receipt.
// Returns false when the order was no longer open.
func (r *Repository) MarkFilled(id, txHash string) (bool, error) {
	return r.transition(id, domain.OrderStatusFilled, "UPDATE orders SET status = ?, tx_hash = ? WHERE id = ? AND status = ?",
		string(domain.OrderStatusFilled), txHash, id, string(domain.OrderStatusCreated))
}

// MarkFailed transitions an open order to failed with a reason.
// Returns false when the order was no longer open.
func (r *Repository) MarkFailed(id, reason string) (bool, error) {
	return r.transition(id, domain.OrderStatusFailed, "UPDATE orders SET status = ?, failure_reason = ? WHERE id = ? AND status = ?",
		string(domain.OrderStatusFailed), reason, id, string(domain.OrderStatusCreated))
}

// MarkExpired transitions an open order to expired.
// Returns false when the order was no longer open.
func (r *Repository) MarkExpired(id string) (bool, error) {
	return r.transition(id, domain.OrderStatusExpired, "UPDATE orders SET status = ? WHERE id = ? AND status = ?",
		string(domain.OrderStatusExpired), id, string(domain.OrderStatusCreated))
}

func (r *Repository) transition(id string, to domain.OrderStatus, query string, args ...interface{}) (bool, error) {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition order to %s: %w", to, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	r.log.Info().Str("order_id", id).Str("status", string(to)).Msg("Order transitioned")
	return true, nil
}

// ExpireStale transitions every open order whose expiry has passed.
// Returns the number of orders expired.
func (r *Repository) ExpireStale(now time.Time) (int64, error) {
	result, err := r.db.Exec(
		"UPDATE orders SET status = ? WHERE status = ? AND expires_at <= ?",
		string(domain.OrderStatusExpired), string(domain.OrderStatusCreated), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale orders: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var makingAmount, takingAmount, payloadJSON, status string
	var failureReason, txHash sql.NullString
	var nonce, expiresAt, createdAt int64

	err := row.Scan(
		&o.ID,
		&o.UserAddress,
		&o.MakerAsset,
		&o.TakerAsset,
		&makingAmount,
		&takingAmount,
		&nonce,
		&payloadJSON,
		&status,
		&failureReason,
		&txHash,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	var ok bool
	o.MakingAmount, ok = new(big.Int).SetString(makingAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid making_amount %q", makingAmount)
	}
	o.TakingAmount, ok = new(big.Int).SetString(takingAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid taking_amount %q", takingAmount)
	}

	if err := json.Unmarshal([]byte(payloadJSON), &o.SignedPayload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed payload: %w", err)
	}

	o.Nonce = uint64(nonce)
	o.Status = domain.OrderStatus(status)
	o.FailureReason = failureReason.String
	o.TxHash = txHash.String
	o.ExpiresAt = time.Unix(expiresAt, 0)
	o.CreatedAt = time.Unix(createdAt, 0)
	return &o, nil
}
