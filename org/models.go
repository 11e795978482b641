package org

import "time"

// Position is the fixed role enumeration an employee can hold within a
// company.
type Position string

const (
	PositionAdmin      Position = "admin"
	PositionSupervisor Position = "supervisor"
	PositionTrainee    Position = "trainee"
)

// Employee is the domain representation of a staff member. CompanyID is
// nullable at the type level to allow the provisioning insert order; once
// provisioning completes it is always set.
type Employee struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Position  Position
	EmpCode   *string
	CompanyID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Company mirrors the companies table. AdminID is nullable at the type level
// for the same reason as Employee.CompanyID and is always set after
// provisioning.
type Company struct {
	ID                    string
	RegistrationRequestID string
	AdminID               *string
	Name                  string
	CRN                   string
	Industry              string
	Size                  string
	Description           string
	Branches              string
	TaxNo                 string
	LinkedIn              string
	LogoRef               string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Department is an employee sub-grouping under a company, owned by the
// company admin. Department names are unique per company.
type Department struct {
	ID         string
	Name       string
	CompanyID  string
	AdminID    string
	NumGroups  int
	NumMembers int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Group is a sub-grouping under a department, optionally led by a supervisor.
// Group names are unique per department.
type Group struct {
	ID           string
	Name         string
	DepartmentID string
	SupervisorID *string
	NumMembers   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Triangle is the resolved cross-reference cycle for a provisioned company:
// Company.AdminID -> Admin.EmployeeID -> Employee.CompanyID -> Company.ID.
type Triangle struct {
	CompanyID  string
	AdminID    string
	EmployeeID string
}

// Closed reports whether the three references resolve back to the origin.
func (t Triangle) Closed() bool {
	return t.CompanyID != "" && t.AdminID != "" && t.EmployeeID != ""
}
