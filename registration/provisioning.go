package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProvisioningError reports a mid-transaction provisioning failure. By the
// time it is surfaced the transaction has been rolled back, so no partial
// entities are visible and the request is still pending.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("registration: provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// EmployeeSeed is the employee row created during provisioning. CompanyID is
// deliberately absent: the employee is inserted before its company exists and
// linked in a later step of the same transaction.
type EmployeeSeed struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Position  string
}

// CompanySeed is the company row created during provisioning. AdminID is
// patched in after the admin row exists.
type CompanySeed struct {
	ID                    string
	RegistrationRequestID string
	Name                  string
	CRN                   string
	Industry              string
	Size                  string
	Description           string
	Branches              string
	TaxNo                 string
	LinkedIn              string
	LogoRef               string
}

// AdminSeed is the admin credential row created during provisioning.
type AdminSeed struct {
	ID           string
	EmployeeID   string
	LoginEmail   string
	PasswordHash string
}

// Provisioner enumerates the writes of the cycle-breaking insert order.
// Emp.CompanyRef, Company.AdminRef and Admin.EmployeeRef form a 3-cycle, so
// the two forward references are left unset on insert and patched once their
// targets exist. Every method runs inside the caller's transaction.
type Provisioner interface {
	AdminEmailTaken(ctx context.Context, tx pgx.Tx, email string) (bool, error)
	InsertEmployee(ctx context.Context, tx pgx.Tx, seed EmployeeSeed) error
	InsertCompany(ctx context.Context, tx pgx.Tx, seed CompanySeed) error
	InsertAdmin(ctx context.Context, tx pgx.Tx, seed AdminSeed) error
	SetCompanyAdmin(ctx context.Context, tx pgx.Tx, companyID, adminID string) error
	SetEmployeeCompany(ctx context.Context, tx pgx.Tx, employeeID, companyID string) error
}

// PGProvisioner implements Provisioner against PostgreSQL.
type PGProvisioner struct{}

// NewProvisioner creates the PostgreSQL provisioner.
func NewProvisioner() *PGProvisioner {
	return &PGProvisioner{}
}

// AdminEmailTaken reports whether the proposed login email already exists in
// the admins table.
func (p *PGProvisioner) AdminEmailTaken(ctx context.Context, tx pgx.Tx, email string) (bool, error) {
	var taken bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE login_email = $1)`, email).Scan(&taken); err != nil {
		return false, fmt.Errorf("registration: check admin email: %w", err)
	}
	return taken, nil
}

// InsertEmployee inserts the administrator's employee row with company_id
// unset.
func (p *PGProvisioner) InsertEmployee(ctx context.Context, tx pgx.Tx, seed EmployeeSeed) error {
	const insertSQL = `
		INSERT INTO employees (id, first_name, last_name, email, phone, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := tx.Exec(ctx, insertSQL, seed.ID, seed.FirstName, seed.LastName, seed.Email, seed.Phone, seed.Position); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAdminEmail
		}
		return fmt.Errorf("registration: insert employee: %w", err)
	}

	return nil
}

// InsertCompany inserts the company row with admin_id unset. The unique
// constraint on registration_request_id caps provisioning at once per request
// even if the pending guard were ever bypassed.
func (p *PGProvisioner) InsertCompany(ctx context.Context, tx pgx.Tx, seed CompanySeed) error {
	const insertSQL = `
		INSERT INTO companies (id, registration_request_id, name, crn, industry, company_size, description, branches, tax_no, linkedin_url, logo_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if _, err := tx.Exec(ctx, insertSQL,
		seed.ID, seed.RegistrationRequestID, seed.Name, seed.CRN, seed.Industry, seed.Size,
		seed.Description, seed.Branches, seed.TaxNo, seed.LinkedIn, seed.LogoRef,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrInvalidState
		}
		return fmt.Errorf("registration: insert company: %w", err)
	}

	return nil
}

// InsertAdmin inserts the admin credential referencing the employee from the
// first step.
func (p *PGProvisioner) InsertAdmin(ctx context.Context, tx pgx.Tx, seed AdminSeed) error {
	const insertSQL = `
		INSERT INTO admins (id, employee_id, login_email, password_hash)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := tx.Exec(ctx, insertSQL, seed.ID, seed.EmployeeID, seed.LoginEmail, seed.PasswordHash); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAdminEmail
		}
		return fmt.Errorf("registration: insert admin: %w", err)
	}

	return nil
}

// SetCompanyAdmin patches the company's admin reference, closing one edge of
// the triangle.
func (p *PGProvisioner) SetCompanyAdmin(ctx context.Context, tx pgx.Tx, companyID, adminID string) error {
	tag, err := tx.Exec(ctx, `UPDATE companies SET admin_id = $1 WHERE id = $2`, adminID, companyID)
	if err != nil {
		return fmt.Errorf("registration: link company admin: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("registration: link company admin: company %s missing", companyID)
	}
	return nil
}

// SetEmployeeCompany patches the employee's company reference, closing the
// last edge of the triangle.
func (p *PGProvisioner) SetEmployeeCompany(ctx context.Context, tx pgx.Tx, employeeID, companyID string) error {
	tag, err := tx.Exec(ctx, `UPDATE employees SET company_id = $1 WHERE id = $2`, companyID, employeeID)
	if err != nil {
		return fmt.Errorf("registration: link employee company: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("registration: link employee company: employee %s missing", employeeID)
	}
	return nil
}
