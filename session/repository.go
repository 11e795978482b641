package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"traindesk/roles"
)

// ErrSessionNotFound signals that no session exists for the identifier.
var ErrSessionNotFound = errors.New("session: not found")

// Repository handles data access for sessions.
type Repository interface {
	Create(ctx context.Context, s Session) (Session, error)
	GetByID(ctx context.Context, id string) (Session, error)
	Close(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed session repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new active session.
func (r *PGRepository) Create(ctx context.Context, s Session) (Session, error) {
	const insertSQL = `
		INSERT INTO sessions (id, user_type, user_id, login_time, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, user_type, user_id, login_time, logout_time, is_active
	`

	created, err := scanSession(r.pool.QueryRow(ctx, insertSQL, s.ID, s.UserType, s.UserID, s.LoginTime))
	if err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}

	return created, nil
}

// GetByID retrieves a session by identifier.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Session, error) {
	const selectSQL = `
		SELECT id, user_type, user_id, login_time, logout_time, is_active
		FROM sessions
		WHERE id = $1
	`

	s, err := scanSession(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("session: get: %w", err)
	}

	return s, nil
}

// Close stamps logout_time and clears is_active. Closing an already-closed
// session changes nothing, which makes logout idempotent.
func (r *PGRepository) Close(ctx context.Context, id string, at time.Time) error {
	const updateSQL = `
		UPDATE sessions
		SET logout_time = COALESCE(logout_time, $1), is_active = FALSE
		WHERE id = $2
	`

	tag, err := r.pool.Exec(ctx, updateSQL, at, id)
	if err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s          Session
		userType   string
		logoutTime *time.Time
	)
	err := row.Scan(&s.ID, &userType, &s.UserID, &s.LoginTime, &logoutTime, &s.IsActive)
	if err != nil {
		return Session{}, err
	}

	s.UserType = roles.Kind(userType)
	s.LogoutTime = logoutTime
	return s, nil
}
