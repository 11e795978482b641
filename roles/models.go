package roles

import (
	"fmt"
	"strings"
	"time"
)

// Kind names one of the role tables a credential can live in. The set is
// closed: every lookup goes through a validated variant, never a free-form
// table name.
type Kind string

const (
	KindAdmin      Kind = "admin"
	KindSupervisor Kind = "supervisor"
	KindTrainee    Kind = "trainee"
	KindOwner      Kind = "owner"
)

// ParseKind normalizes and validates a caller-supplied role name.
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("roles: unknown role %q", s)
	}
	return kind, nil
}

// Valid reports whether the kind is one of the enumerated role tables.
func (k Kind) Valid() bool {
	switch k {
	case KindAdmin, KindSupervisor, KindTrainee, KindOwner:
		return true
	default:
		return false
	}
}

// Account is the domain representation of one role-table row. Admin,
// Supervisor and Trainee rows reference exactly one Employee; Owner rows are
// platform staff and carry no employee reference.
type Account struct {
	ID           string
	Kind         Kind
	LoginEmail   string
	PasswordHash string
	EmployeeID   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
