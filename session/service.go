package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"traindesk/credential"
	"traindesk/db"
	"traindesk/roles"
)

var (
	// ErrInvalidCredentials signals wrong role, email or password. The three
	// cases share one error so callers can't probe which part failed.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	// ErrInvalidToken signals a token that fails parsing, is expired, or is
	// not backed by a live session of the claimed role.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrForbiddenRole signals a valid principal of the wrong role kind.
	ErrForbiddenRole = errors.New("session: role not permitted")
)

// Service authenticates any of the role kinds through one session entity.
type Service struct {
	sessions    Repository
	accounts    roles.Repository
	jwtSecret   []byte
	idGenerator func() string
	now         func() time.Time
	tokenTTL    time.Duration
	opTimeout   time.Duration
}

// NewService creates the session service.
func NewService(sessions Repository, accounts roles.Repository, jwtSecret string) *Service {
	return &Service{
		sessions:    sessions,
		accounts:    accounts,
		jwtSecret:   []byte(jwtSecret),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
		tokenTTL:    24 * time.Hour,
		opTimeout:   5 * time.Second,
	}
}

// WithIDGenerator overrides session id allocation.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTokenTTL overrides how long minted tokens stay valid.
func (s *Service) WithTokenTTL(d time.Duration) *Service {
	if d > 0 {
		s.tokenTTL = d
	}
	return s
}

// WithOpTimeout overrides the per-operation store deadline.
func (s *Service) WithOpTimeout(d time.Duration) *Service {
	if d > 0 {
		s.opTimeout = d
	}
	return s
}

// Authenticate verifies the credential against exactly the role table named
// by the request and opens a session pointed at that table.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (LoginResult, error) {
	kind, err := roles.ParseKind(req.Role)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if req.Email == "" || req.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, kind, req.Email)
	if err != nil {
		if errors.Is(err, roles.ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, db.TranslateTimeout(err)
	}

	if !credential.Verify(req.Password, account.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	created, err := s.sessions.Create(ctx, Session{
		ID:        s.idGenerator(),
		UserType:  kind,
		UserID:    account.ID,
		LoginTime: s.now().UTC(),
		IsActive:  true,
	})
	if err != nil {
		return LoginResult{}, db.TranslateTimeout(err)
	}

	token, err := s.generateToken(created)
	if err != nil {
		return LoginResult{}, fmt.Errorf("session: generate token: %w", err)
	}

	return LoginResult{Token: token, Session: created}, nil
}

// Logout closes the session. Logging out an already-inactive session is a
// no-op, not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return db.TranslateTimeout(s.sessions.Close(ctx, sessionID, s.now().UTC()))
}

// Validate proves role and identity for a signed token. The backing session
// must still exist, be active, and carry the same role discriminator and
// subject the token claims; a token minted for one role table never validates
// against another.
func (s *Service) Validate(ctx context.Context, tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return Principal{}, ErrInvalidToken
	}
	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return Principal{}, ErrInvalidToken
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	kind, err := roles.ParseKind(roleStr)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	backing, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, db.TranslateTimeout(err)
	}
	if !backing.IsActive || backing.UserType != kind || backing.UserID != subject {
		return Principal{}, ErrInvalidToken
	}

	// The subject must still resolve in the role table the session names.
	if _, err := s.accounts.GetByID(ctx, kind, subject); err != nil {
		if errors.Is(err, roles.ErrAccountNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, db.TranslateTimeout(err)
	}

	return Principal{Role: kind, SubjectID: subject, SessionID: sessionID}, nil
}

// RequireRole validates the token and additionally demands a specific role
// kind, so an admin-only resource check fails for any other role's token.
func (s *Service) RequireRole(ctx context.Context, tokenString string, kind roles.Kind) (Principal, error) {
	principal, err := s.Validate(ctx, tokenString)
	if err != nil {
		return Principal{}, err
	}
	if principal.Role != kind {
		return Principal{}, ErrForbiddenRole
	}
	return principal, nil
}

func (s *Service) generateToken(sess Session) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  sess.UserID,
		"sid":  sess.ID,
		"role": string(sess.UserType),
		"exp":  now.Add(s.tokenTTL).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
