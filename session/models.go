package session

import (
	"time"

	"traindesk/roles"
)

// Session is one login record. UserType names the role table that UserID
// resolves against; a session is never valid for any other role table.
// Sessions are closed at logout, never deleted.
type Session struct {
	ID         string
	UserType   roles.Kind
	UserID     string
	LoginTime  time.Time
	LogoutTime *time.Time
	IsActive   bool
}

// LoginRequest contains login credentials plus the role table to check.
type LoginRequest struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult bundles the signed token and the session it is bound to.
type LoginResult struct {
	Token   string
	Session Session
}

// Principal is the identity proven by a validated token.
type Principal struct {
	Role      roles.Kind
	SubjectID string
	SessionID string
}
