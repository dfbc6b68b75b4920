package enrollment

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

// Repository handles enrollment persistence
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new enrollment repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "enrollment").Logger(),
	}
}

const enrollmentColumns = "user_address, preferences, is_active, last_checked_at, created_at, updated_at"

// Activate enrolls a user, or reactivates and replaces the preferences of an
// existing enrollment. Preferences are validated before anything is written.
func (r *Repository) Activate(userAddress string, prefs domain.Preferences) (*domain.Enrollment, error) {
	if userAddress == "" {
		return nil, &domain.DataError{Field: "user_address", Reason: "must not be empty"}
	}
	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preferences: %w", err)
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO enrollments (user_address, preferences, is_active, last_checked_at, created_at, updated_at)
		VALUES (?, ?, 1, NULL, ?, ?)
		ON CONFLICT(user_address) DO UPDATE SET
			preferences = excluded.preferences,
			is_active = 1,
			last_checked_at = NULL,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.Exec(query, userAddress, string(prefsJSON), now, now); err != nil {
		return nil, fmt.Errorf("failed to activate enrollment: %w", err)
	}

	r.log.Info().Str("user", userAddress).Msg("Zen mode activated")
	return r.Get(userAddress)
}

// Deactivate marks a user's enrollment inactive. Deactivating a user who is
// not enrolled returns domain.ErrNotFound.
func (r *Repository) Deactivate(userAddress string) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(
		"UPDATE enrollments SET is_active = 0, updated_at = ? WHERE user_address = ?",
		now, userAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate enrollment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	r.log.Info().Str("user", userAddress).Msg("Zen mode deactivated")
	return nil
}

// Get retrieves a single enrollment by user address
func (r *Repository) Get(userAddress string) (*domain.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE user_address = ?"

	e, err := scanEnrollment(r.db.QueryRow(query, userAddress))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// ListActive returns all active enrollments, oldest first
func (r *Repository) ListActive() ([]domain.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE is_active = 1 ORDER BY created_at ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, rows.Err()
}

// CountActive returns the number of active enrollments
func (r *Repository) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM enrollments WHERE is_active = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active enrollments: %w", err)
	}
	return count, nil
}

// MarkChecked records when monitoring last acted for a user
func (r *Repository) MarkChecked(userAddress string, ts time.Time) error {
	_, err := r.db.Exec(
		"UPDATE enrollments SET last_checked_at = ?, updated_at = ? WHERE user_address = ?",
		ts.Unix(), time.Now().Unix(), userAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to mark enrollment checked: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var prefsJSON string
	var isActive int
	var lastChecked sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&e.UserAddress, &prefsJSON, &isActive, &lastChecked, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(prefsJSON), &e.Preferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}

	e.IsActive = isActive == 1
	if lastChecked.Valid {
		t := time.Unix(lastChecked.Int64, 0)
		e.LastCheckedAt = &t
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}
