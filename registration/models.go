package registration

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a registration request. Both approved and
// rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CompanySnapshot holds the company facts captured at submission time.
type CompanySnapshot struct {
	Name        string
	CRN         string
	Industry    string
	Size        string
	Description string
	Branches    string
	TaxNo       string
	LinkedIn    string
	LogoRef     string
}

// AdminSnapshot holds the proposed administrator credential and profile. The
// password is hashed before the snapshot is ever persisted; plaintext never
// reaches storage.
type AdminSnapshot struct {
	LoginEmail   string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Position     string
}

// Application is the immutable snapshot embedded in a request. Only the
// request's status and review fields change after creation.
type Application struct {
	Company CompanySnapshot
	Admin   AdminSnapshot
}

// Request mirrors the registration_requests table.
type Request struct {
	ID          string
	Status      Status
	Application Application
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	ReviewedBy  *string
}

// SubmitRequest contains applicant-supplied registration data.
type SubmitRequest struct {
	CompanyName    string `json:"company_name"`
	CRN            string `json:"crn"`
	Industry       string `json:"industry"`
	CompanySize    string `json:"company_size"`
	Description    string `json:"description"`
	Branches       string `json:"branches"`
	TaxNo          string `json:"tax_no"`
	LinkedIn       string `json:"linkedin"`
	LogoRef        string `json:"logo_ref"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminPhone     string `json:"admin_phone"`
	AdminPosition  string `json:"admin_position"`
}

// ProvisionResult carries the three entity ids materialized by an approval.
type ProvisionResult struct {
	EmployeeID string
	CompanyID  string
	AdminID    string
}

// Filters narrows request listings.
type Filters struct {
	Status Status
	Limit  int
}

// ValidationError reports the required submission fields that were absent.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registration: missing required fields: %s", strings.Join(e.Fields, ", "))
}
