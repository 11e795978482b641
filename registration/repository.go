package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRequestNotFound signals that no request exists for the identifier.
	ErrRequestNotFound = errors.New("registration: request not found")
	// ErrDuplicateAdminEmail signals that a request (any status) or a live
	// admin credential already carries the proposed admin email.
	ErrDuplicateAdminEmail = errors.New("registration: admin email already exists")
	// ErrInvalidState signals an illegal lifecycle transition, e.g. approving
	// a request that is no longer pending.
	ErrInvalidState = errors.New("registration: request is not pending")
)

// Repository handles data access for registration requests.
type Repository interface {
	Insert(ctx context.Context, req Request) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, filters Filters) ([]Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	MarkReviewed(ctx context.Context, tx pgx.Tx, id string, status Status, reviewedBy string, at time.Time) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed registration repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `
	id, status, submitted_at, reviewed_at, reviewed_by,
	company_name, crn, industry, company_size, description, branches, tax_no, linkedin_url, logo_ref,
	admin_email, admin_password_hash, admin_first_name, admin_last_name, admin_phone, admin_position
`

// Insert stores a new pending request with its application snapshot.
func (r *PGRepository) Insert(ctx context.Context, req Request) (Request, error) {
	insertSQL := `
		INSERT INTO registration_requests (
			id, status, submitted_at,
			company_name, crn, industry, company_size, description, branches, tax_no, linkedin_url, logo_ref,
			admin_email, admin_password_hash, admin_first_name, admin_last_name, admin_phone, admin_position
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING ` + requestColumns

	c := req.Application.Company
	a := req.Application.Admin
	created, err := scanRequest(r.pool.QueryRow(ctx, insertSQL,
		req.ID, req.Status, req.SubmittedAt,
		c.Name, c.CRN, c.Industry, c.Size, c.Description, c.Branches, c.TaxNo, c.LinkedIn, c.LogoRef,
		a.LoginEmail, a.PasswordHash, a.FirstName, a.LastName, a.Phone, a.Position,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Request{}, ErrDuplicateAdminEmail
		}
		return Request{}, fmt.Errorf("registration: insert request: %w", err)
	}

	return created, nil
}

// GetByID retrieves a request by identifier.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Request, error) {
	selectSQL := `SELECT ` + requestColumns + ` FROM registration_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("registration: get request: %w", err)
	}

	return req, nil
}

// List returns requests in submission-time descending order, optionally
// filtered by status.
func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Request, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM registration_requests`
	args := []any{}
	if filters.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filters.Status)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY submitted_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("registration: list requests: %w", err)
	}
	defer rows.Close()

	requests := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("registration: scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// GetForUpdate locks the request row inside the caller's transaction so a
// concurrent review of the same request waits and then fails the pending
// guard instead of double-provisioning.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	selectSQL := `SELECT ` + requestColumns + ` FROM registration_requests WHERE id = $1 FOR UPDATE`

	req, err := scanRequest(tx.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("registration: lock request: %w", err)
	}

	return req, nil
}

// MarkReviewed records the terminal transition. The update is conditional on
// the row still being pending; losing that race yields ErrInvalidState.
func (r *PGRepository) MarkReviewed(ctx context.Context, tx pgx.Tx, id string, status Status, reviewedBy string, at time.Time) error {
	const updateSQL = `
		UPDATE registration_requests
		SET status = $1, reviewed_at = $2, reviewed_by = $3, updated_at = $2
		WHERE id = $4 AND status = 'pending'
	`

	tag, err := tx.Exec(ctx, updateSQL, status, at, reviewedBy, id)
	if err != nil {
		return fmt.Errorf("registration: mark reviewed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidState
	}

	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req        Request
		reviewedAt *time.Time
		reviewedBy *string
	)
	err := row.Scan(
		&req.ID,
		&req.Status,
		&req.SubmittedAt,
		&reviewedAt,
		&reviewedBy,
		&req.Application.Company.Name,
		&req.Application.Company.CRN,
		&req.Application.Company.Industry,
		&req.Application.Company.Size,
		&req.Application.Company.Description,
		&req.Application.Company.Branches,
		&req.Application.Company.TaxNo,
		&req.Application.Company.LinkedIn,
		&req.Application.Company.LogoRef,
		&req.Application.Admin.LoginEmail,
		&req.Application.Admin.PasswordHash,
		&req.Application.Admin.FirstName,
		&req.Application.Admin.LastName,
		&req.Application.Admin.Phone,
		&req.Application.Admin.Position,
	)
	if err != nil {
		return Request{}, err
	}

	req.ReviewedAt = reviewedAt
	req.ReviewedBy = reviewedBy
	return req, nil
}
