package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound signals the login email or id is absent from the
	// role table that was asked.
	ErrAccountNotFound = errors.New("roles: account not found")
	// ErrDuplicateLoginEmail signals the email already exists in that role table.
	ErrDuplicateLoginEmail = errors.New("roles: login email already exists")
)

// Repository handles data access for the role tables.
type Repository interface {
	GetByEmail(ctx context.Context, kind Kind, email string) (Account, error)
	GetByID(ctx context.Context, kind Kind, id string) (Account, error)
	CreateOwner(ctx context.Context, id, email, passwordHash string) (Account, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed role repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// tableFor maps a role kind onto its table. The switch is the closed variant
// set; anything else is a programming error surfaced as such.
func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindAdmin:
		return "admins", nil
	case KindSupervisor:
		return "supervisors", nil
	case KindTrainee:
		return "trainees", nil
	case KindOwner:
		return "owners", nil
	default:
		return "", fmt.Errorf("roles: no table for kind %q", kind)
	}
}

// GetByEmail retrieves an account by login email from the table named by kind.
func (r *PGRepository) GetByEmail(ctx context.Context, kind Kind, email string) (Account, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Account{}, err
	}

	selectSQL := fmt.Sprintf(`
		SELECT id, login_email, password_hash, employee_id, created_at, updated_at
		FROM %s
		WHERE login_email = $1
	`, table)

	account, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("roles: get %s by email: %w", kind, err)
	}

	account.Kind = kind
	return account, nil
}

// GetByID retrieves an account by id from the table named by kind.
func (r *PGRepository) GetByID(ctx context.Context, kind Kind, id string) (Account, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Account{}, err
	}

	selectSQL := fmt.Sprintf(`
		SELECT id, login_email, password_hash, employee_id, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, table)

	account, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("roles: get %s by id: %w", kind, err)
	}

	account.Kind = kind
	return account, nil
}

// CreateOwner inserts a platform owner credential. Owners are not provisioned
// through registration approval, so they get their own write path.
func (r *PGRepository) CreateOwner(ctx context.Context, id, email, passwordHash string) (Account, error) {
	const insertSQL = `
		INSERT INTO owners (id, login_email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, login_email, password_hash, employee_id, created_at, updated_at
	`

	account, err := scanAccount(r.pool.QueryRow(ctx, insertSQL, id, strings.ToLower(email), passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateLoginEmail
		}
		return Account{}, fmt.Errorf("roles: create owner: %w", err)
	}

	account.Kind = KindOwner
	return account, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		account    Account
		employeeID *string
	)
	err := row.Scan(
		&account.ID,
		&account.LoginEmail,
		&account.PasswordHash,
		&employeeID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	account.EmployeeID = employeeID
	return account, nil
}
