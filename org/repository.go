package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrEmployeeNotFound signals the employee does not exist.
	ErrEmployeeNotFound = errors.New("org: employee not found")
	// ErrCompanyNotFound signals the company does not exist.
	ErrCompanyNotFound = errors.New("org: company not found")
	// ErrDuplicateDepartment signals the department name is taken within the company.
	ErrDuplicateDepartment = errors.New("org: department name already exists in company")
	// ErrDuplicateGroup signals the group name is taken within the department.
	ErrDuplicateGroup = errors.New("org: group name already exists in department")
	// ErrTriangleBroken signals a provisioned company whose reference cycle
	// does not close; provisioning guarantees this never happens.
	ErrTriangleBroken = errors.New("org: company reference triangle does not close")
)

// Repository handles data access for the organizational graph.
type Repository interface {
	GetEmployee(ctx context.Context, id string) (Employee, error)
	GetCompany(ctx context.Context, id string) (Company, error)
	GetCompanyByRegistrationRequest(ctx context.Context, requestID string) (Company, error)
	ListCompanies(ctx context.Context, limit int) ([]Company, error)
	ResolveTriangle(ctx context.Context, companyID string) (Triangle, error)
	CreateDepartment(ctx context.Context, dept Department) (Department, error)
	CreateGroup(ctx context.Context, group Group) (Group, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed org repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetEmployee retrieves an employee by id.
func (r *PGRepository) GetEmployee(ctx context.Context, id string) (Employee, error) {
	const selectSQL = `
		SELECT id, first_name, last_name, email, phone, position, emp_code, company_id, created_at, updated_at
		FROM employees
		WHERE id = $1
	`

	emp, err := scanEmployee(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, fmt.Errorf("org: get employee: %w", err)
	}

	return emp, nil
}

const companyColumns = `
	id, registration_request_id, admin_id, name, crn, industry, company_size,
	description, branches, tax_no, linkedin_url, logo_ref, created_at, updated_at
`

// GetCompany retrieves a company by id.
func (r *PGRepository) GetCompany(ctx context.Context, id string) (Company, error) {
	selectSQL := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

	company, err := scanCompany(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrCompanyNotFound
		}
		return Company{}, fmt.Errorf("org: get company: %w", err)
	}

	return company, nil
}

// GetCompanyByRegistrationRequest retrieves the company provisioned from a
// request, if any. The linkage is unique by schema.
func (r *PGRepository) GetCompanyByRegistrationRequest(ctx context.Context, requestID string) (Company, error) {
	selectSQL := `SELECT ` + companyColumns + ` FROM companies WHERE registration_request_id = $1`

	company, err := scanCompany(r.pool.QueryRow(ctx, selectSQL, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrCompanyNotFound
		}
		return Company{}, fmt.Errorf("org: get company by request: %w", err)
	}

	return company, nil
}

// ListCompanies returns up to limit companies, newest first.
func (r *PGRepository) ListCompanies(ctx context.Context, limit int) ([]Company, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	selectSQL := `SELECT ` + companyColumns + ` FROM companies ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, selectSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("org: list companies: %w", err)
	}
	defer rows.Close()

	companies := []Company{}
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("org: scan company: %w", err)
		}
		companies = append(companies, company)
	}

	return companies, rows.Err()
}

// ResolveTriangle walks Company -> Admin -> Employee -> Company in one query
// and verifies the cycle closes on the origin row.
func (r *PGRepository) ResolveTriangle(ctx context.Context, companyID string) (Triangle, error) {
	const selectSQL = `
		SELECT c.id, a.id, e.id, e.company_id
		FROM companies c
		JOIN admins a ON a.id = c.admin_id
		JOIN employees e ON e.id = a.employee_id
		WHERE c.id = $1
	`

	var (
		t             Triangle
		roundTripping *string
	)
	err := r.pool.QueryRow(ctx, selectSQL, companyID).Scan(&t.CompanyID, &t.AdminID, &t.EmployeeID, &roundTripping)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Triangle{}, ErrTriangleBroken
		}
		return Triangle{}, fmt.Errorf("org: resolve triangle: %w", err)
	}
	if roundTripping == nil || *roundTripping != t.CompanyID {
		return Triangle{}, ErrTriangleBroken
	}

	return t, nil
}

// CreateDepartment inserts a department under a company.
func (r *PGRepository) CreateDepartment(ctx context.Context, dept Department) (Department, error) {
	const insertSQL = `
		INSERT INTO departments (id, name, company_id, admin_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, company_id, admin_id, num_groups, num_members, created_at, updated_at
	`

	var created Department
	err := r.pool.QueryRow(ctx, insertSQL, dept.ID, dept.Name, dept.CompanyID, dept.AdminID).Scan(
		&created.ID, &created.Name, &created.CompanyID, &created.AdminID,
		&created.NumGroups, &created.NumMembers, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Department{}, ErrDuplicateDepartment
		}
		return Department{}, fmt.Errorf("org: create department: %w", err)
	}

	return created, nil
}

// CreateGroup inserts a group under a department and bumps the department's
// group count in the same transaction.
func (r *PGRepository) CreateGroup(ctx context.Context, group Group) (Group, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Group{}, fmt.Errorf("org: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO org_groups (id, name, department_id, supervisor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, department_id, supervisor_id, num_members, created_at, updated_at
	`

	var created Group
	err = tx.QueryRow(ctx, insertSQL, group.ID, group.Name, group.DepartmentID, group.SupervisorID).Scan(
		&created.ID, &created.Name, &created.DepartmentID, &created.SupervisorID,
		&created.NumMembers, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Group{}, ErrDuplicateGroup
		}
		return Group{}, fmt.Errorf("org: create group: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE departments SET num_groups = num_groups + 1, updated_at = now() WHERE id = $1`, group.DepartmentID); err != nil {
		return Group{}, fmt.Errorf("org: bump group count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Group{}, fmt.Errorf("org: commit group: %w", err)
	}

	return created, nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var (
		emp       Employee
		empCode   *string
		companyID *string
	)
	err := row.Scan(
		&emp.ID, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Phone,
		&emp.Position, &empCode, &companyID, &emp.CreatedAt, &emp.UpdatedAt,
	)
	if err != nil {
		return Employee{}, err
	}

	emp.EmpCode = empCode
	emp.CompanyID = companyID
	return emp, nil
}

func scanCompany(row pgx.Row) (Company, error) {
	var (
		company Company
		adminID *string
	)
	err := row.Scan(
		&company.ID, &company.RegistrationRequestID, &adminID,
		&company.Name, &company.CRN, &company.Industry, &company.Size,
		&company.Description, &company.Branches, &company.TaxNo, &company.LinkedIn, &company.LogoRef,
		&company.CreatedAt, &company.UpdatedAt,
	)
	if err != nil {
		return Company{}, err
	}

	company.AdminID = adminID
	return company, nil
}
