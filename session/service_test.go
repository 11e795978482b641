package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"traindesk/credential"
	"traindesk/roles"
)

func seedAccount(t *testing.T, accounts *fakeAccountRepo, kind roles.Kind, email, password string) roles.Account {
	t.Helper()
	hash, err := credential.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return accounts.add(kind, email, hash)
}

func TestAuthenticateAndValidate(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := NewService(sessions, accounts, "test-secret")

	admin := seedAccount(t, accounts, roles.KindAdmin, "a@x.com", "supersafe1")

	ctx := context.Background()
	result, err := svc.Authenticate(ctx, LoginRequest{Role: "Admin", Email: "a@x.com", Password: "supersafe1"})
	if err != nil {
		t.Fatalf("authenticate: unexpected error: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected token")
	}
	if !result.Session.IsActive {
		t.Fatal("expected active session")
	}
	if result.Session.UserType != roles.KindAdmin {
		t.Fatalf("expected admin discriminator, got %s", result.Session.UserType)
	}
	if result.Session.UserID != admin.ID {
		t.Fatalf("expected session subject %s, got %s", admin.ID, result.Session.UserID)
	}

	principal, err := svc.Validate(ctx, result.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if principal.Role != roles.KindAdmin || principal.SubjectID != admin.ID {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if principal.SessionID != result.Session.ID {
		t.Fatalf("expected session binding %s, got %s", result.Session.ID, principal.SessionID)
	}
}

func TestAuthenticate_UniformFailureShape(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := NewService(sessions, accounts, "test-secret")

	seedAccount(t, accounts, roles.KindAdmin, "a@x.com", "supersafe1")

	ctx := context.Background()
	cases := []LoginRequest{
		{Role: "Admin", Email: "a@x.com", Password: "wrongpassword"},
		{Role: "Admin", Email: "unknown@x.com", Password: "whatever"},
		{Role: "Trainee", Email: "a@x.com", Password: "supersafe1"}, // right credential, wrong role table
		{Role: "sysadmin", Email: "a@x.com", Password: "supersafe1"},
		{Role: "Admin", Email: "", Password: ""},
	}
	for _, req := range cases {
		if _, err := svc.Authenticate(ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("login %+v: expected ErrInvalidCredentials, got %v", req, err)
		}
	}
	if len(sessions.byID) != 0 {
		t.Fatal("failed logins must not create sessions")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := NewService(sessions, accounts, "test-secret")

	seedAccount(t, accounts, roles.KindSupervisor, "s@x.com", "supersafe1")
	result, err := svc.Authenticate(context.Background(), LoginRequest{Role: "Supervisor", Email: "s@x.com", Password: "supersafe1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := svc.Logout(context.Background(), result.Session.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	closed, _ := sessions.GetByID(context.Background(), result.Session.ID)
	if closed.IsActive {
		t.Fatal("expected session inactive after logout")
	}
	if closed.LogoutTime == nil {
		t.Fatal("expected logout time to be stamped")
	}

	first := *closed.LogoutTime
	if err := svc.Logout(context.Background(), result.Session.ID); err != nil {
		t.Fatalf("second logout must be a no-op, got %v", err)
	}
	again, _ := sessions.GetByID(context.Background(), result.Session.ID)
	if again.LogoutTime == nil || !again.LogoutTime.Equal(first) {
		t.Fatal("second logout must not move the logout time")
	}

	// Token bound to a closed session no longer validates.
	if _, err := svc.Validate(context.Background(), result.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestValidate_RejectsGarbageTokens(t *testing.T) {
	svc := NewService(newFakeSessionRepo(), newFakeAccountRepo(), "test-secret")

	for _, tok := range []string{"", "garbage", "aaa.bbb.ccc"} {
		if _, err := svc.Validate(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestValidate_RejectsForeignSecret(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	minting := NewService(sessions, accounts, "other-secret")
	verifying := NewService(sessions, accounts, "test-secret")

	seedAccount(t, accounts, roles.KindAdmin, "a@x.com", "supersafe1")
	result, err := minting.Authenticate(context.Background(), LoginRequest{Role: "Admin", Email: "a@x.com", Password: "supersafe1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if _, err := verifying.Validate(context.Background(), result.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestRequireRole_BlocksCrossRoleAccess(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := NewService(sessions, accounts, "test-secret")

	seedAccount(t, accounts, roles.KindTrainee, "t@x.com", "supersafe1")
	result, err := svc.Authenticate(context.Background(), LoginRequest{Role: "Trainee", Email: "t@x.com", Password: "supersafe1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if _, err := svc.RequireRole(context.Background(), result.Token, roles.KindAdmin); !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("trainee token against admin resource: expected ErrForbiddenRole, got %v", err)
	}
	if _, err := svc.RequireRole(context.Background(), result.Token, roles.KindTrainee); err != nil {
		t.Fatalf("trainee token against trainee resource: %v", err)
	}
}

func TestValidate_SubjectRemovedFromRoleTable(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	svc := NewService(sessions, accounts, "test-secret")

	acct := seedAccount(t, accounts, roles.KindOwner, "o@x.com", "supersafe1")
	result, err := svc.Authenticate(context.Background(), LoginRequest{Role: "Owner", Email: "o@x.com", Password: "supersafe1"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	accounts.remove(roles.KindOwner, acct.ID)
	if _, err := svc.Validate(context.Background(), result.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted subject, got %v", err)
	}
}

type fakeAccountRepo struct {
	byKey  map[string]roles.Account
	nextID int
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byKey: make(map[string]roles.Account)}
}

func key(kind roles.Kind, id string) string { return string(kind) + "/" + id }

func (f *fakeAccountRepo) add(kind roles.Kind, email, passwordHash string) roles.Account {
	f.nextID++
	account := roles.Account{
		ID:           fmt.Sprintf("%s-%d", kind, f.nextID),
		Kind:         kind,
		LoginEmail:   strings.ToLower(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.byKey[key(kind, account.ID)] = account
	return account
}

func (f *fakeAccountRepo) remove(kind roles.Kind, id string) {
	delete(f.byKey, key(kind, id))
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, kind roles.Kind, email string) (roles.Account, error) {
	for _, account := range f.byKey {
		if account.Kind == kind && account.LoginEmail == strings.ToLower(email) {
			return account, nil
		}
	}
	return roles.Account{}, roles.ErrAccountNotFound
}

func (f *fakeAccountRepo) GetByID(_ context.Context, kind roles.Kind, id string) (roles.Account, error) {
	account, ok := f.byKey[key(kind, id)]
	if !ok {
		return roles.Account{}, roles.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccountRepo) CreateOwner(_ context.Context, id, email, passwordHash string) (roles.Account, error) {
	account := roles.Account{
		ID:           id,
		Kind:         roles.KindOwner,
		LoginEmail:   strings.ToLower(email),
		PasswordHash: passwordHash,
	}
	f.byKey[key(roles.KindOwner, id)] = account
	return account, nil
}

type fakeSessionRepo struct {
	byID map[string]Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: make(map[string]Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, s Session) (Session, error) {
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionRepo) Close(_ context.Context, id string, at time.Time) error {
	s, ok := f.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.LogoutTime == nil {
		s.LogoutTime = &at
	}
	s.IsActive = false
	f.byID[id] = s
	return nil
}
