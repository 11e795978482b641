package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"traindesk/org"
	"traindesk/registration"
	"traindesk/roles"
	"traindesk/session"
)

type stubRegistrationService struct {
	submitted  []registration.SubmitRequest
	submitErr  error
	approveErr error
	approved   []string
	reviewers  []string
	requests   map[string]registration.Request
}

func (s *stubRegistrationService) Submit(_ context.Context, req registration.SubmitRequest) (registration.Request, error) {
	if s.submitErr != nil {
		return registration.Request{}, s.submitErr
	}
	s.submitted = append(s.submitted, req)
	return registration.Request{ID: "req-1", Status: registration.StatusPending, SubmittedAt: time.Now()}, nil
}

func (s *stubRegistrationService) Get(_ context.Context, id string) (registration.Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return registration.Request{}, registration.ErrRequestNotFound
	}
	return req, nil
}

func (s *stubRegistrationService) List(_ context.Context, _ registration.Filters) ([]registration.Request, error) {
	out := make([]registration.Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	return out, nil
}

func (s *stubRegistrationService) Approve(_ context.Context, requestID, reviewedBy string) (registration.ProvisionResult, error) {
	if s.approveErr != nil {
		return registration.ProvisionResult{}, s.approveErr
	}
	s.approved = append(s.approved, requestID)
	s.reviewers = append(s.reviewers, reviewedBy)
	return registration.ProvisionResult{EmployeeID: "emp-1", CompanyID: "co-1", AdminID: "adm-1"}, nil
}

func (s *stubRegistrationService) Reject(_ context.Context, _, _ string) error {
	return nil
}

type stubSessionService struct {
	principal session.Principal
	authErr   error
	loginErr  error
}

func (s *stubSessionService) Authenticate(_ context.Context, req session.LoginRequest) (session.LoginResult, error) {
	if s.loginErr != nil {
		return session.LoginResult{}, s.loginErr
	}
	return session.LoginResult{
		Token:   "tok",
		Session: session.Session{ID: "sess-1", UserType: roles.Kind(req.Role), UserID: "user-1", IsActive: true},
	}, nil
}

func (s *stubSessionService) Logout(_ context.Context, _ string) error { return nil }

func (s *stubSessionService) Validate(_ context.Context, _ string) (session.Principal, error) {
	if s.authErr != nil {
		return session.Principal{}, s.authErr
	}
	return s.principal, nil
}

func (s *stubSessionService) RequireRole(_ context.Context, _ string, kind roles.Kind) (session.Principal, error) {
	if s.authErr != nil {
		return session.Principal{}, s.authErr
	}
	if s.principal.Role != kind {
		return session.Principal{}, session.ErrForbiddenRole
	}
	return s.principal, nil
}

type stubOrgService struct {
	companies map[string]org.Company
	employees map[string]org.Employee
}

func (s *stubOrgService) GetEmployee(_ context.Context, id string) (org.Employee, error) {
	emp, ok := s.employees[id]
	if !ok {
		return org.Employee{}, org.ErrEmployeeNotFound
	}
	return emp, nil
}

func (s *stubOrgService) GetCompany(_ context.Context, id string) (org.Company, error) {
	co, ok := s.companies[id]
	if !ok {
		return org.Company{}, org.ErrCompanyNotFound
	}
	return co, nil
}

func (s *stubOrgService) ListCompanies(_ context.Context, _ int) ([]org.Company, error) {
	return nil, nil
}

func (s *stubOrgService) CreateDepartment(_ context.Context, params org.CreateDepartmentParams) (org.Department, error) {
	return org.Department{ID: "dep-1", Name: params.Name, CompanyID: params.CompanyID}, nil
}

func (s *stubOrgService) CreateGroup(_ context.Context, params org.CreateGroupParams) (org.Group, error) {
	return org.Group{ID: "grp-1", Name: params.Name, DepartmentID: params.DepartmentID}, nil
}

func newTestServer(reg *stubRegistrationService, sess *stubSessionService, orgSvc *stubOrgService) *Server {
	if reg == nil {
		reg = &stubRegistrationService{requests: map[string]registration.Request{}}
	}
	if sess == nil {
		sess = &stubSessionService{principal: session.Principal{Role: roles.KindOwner, SubjectID: "owner-1"}}
	}
	if orgSvc == nil {
		orgSvc = &stubOrgService{companies: map[string]org.Company{}, employees: map[string]org.Employee{}}
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Server{
		registrationService: reg,
		sessionService:      sess,
		orgService:          orgSvc,
		log:                 log,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitRegistrationCreated(t *testing.T) {
	reg := &stubRegistrationService{requests: map[string]registration.Request{}}
	srv := newTestServer(reg, nil, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/registration-requests", registration.SubmitRequest{
		CompanyName:   "Globex",
		CRN:           "CRN-1",
		Industry:      "logistics",
		CompanySize:   "50-100",
		AdminEmail:    "ana@globex.test",
		AdminPassword: "correct horse",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if len(reg.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(reg.submitted))
	}

	var resp submitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q, want pending", resp.Status)
	}
}

func TestSubmitRegistrationValidationError(t *testing.T) {
	reg := &stubRegistrationService{
		submitErr: &registration.ValidationError{Fields: []string{"company_name", "admin_email"}},
	}
	srv := newTestServer(reg, nil, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/registration-requests", registration.SubmitRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Fields) != 2 {
		t.Errorf("fields = %v, want two entries", resp.Fields)
	}
}

func TestApproveStampsReviewer(t *testing.T) {
	reg := &stubRegistrationService{requests: map[string]registration.Request{}}
	sess := &stubSessionService{principal: session.Principal{Role: roles.KindOwner, SubjectID: "owner-42"}}
	srv := newTestServer(reg, sess, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/registration-requests/req-9/approve", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(reg.approved) != 1 || reg.approved[0] != "req-9" {
		t.Fatalf("approved = %v, want [req-9]", reg.approved)
	}
	if reg.reviewers[0] != "owner-42" {
		t.Errorf("reviewer = %q, want owner-42", reg.reviewers[0])
	}

	var resp provisionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CompanyID == "" || resp.AdminID == "" || resp.EmployeeID == "" {
		t.Errorf("incomplete provision response: %+v", resp)
	}
}

func TestApproveForbiddenForNonOwner(t *testing.T) {
	reg := &stubRegistrationService{requests: map[string]registration.Request{}}
	sess := &stubSessionService{principal: session.Principal{Role: roles.KindAdmin, SubjectID: "adm-1"}}
	srv := newTestServer(reg, sess, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/registration-requests/req-9/approve", nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(reg.approved) != 0 {
		t.Errorf("approve reached the service despite forbidden role")
	}
}

func TestApproveAlreadyProcessedConflict(t *testing.T) {
	reg := &stubRegistrationService{approveErr: registration.ErrInvalidState}
	srv := newTestServer(reg, nil, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/registration-requests/req-9/approve", nil)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestLoginMapsInvalidCredentials(t *testing.T) {
	sess := &stubSessionService{loginErr: session.ErrInvalidCredentials}
	srv := newTestServer(nil, sess, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/auth/login", session.LoginRequest{
		Role: "admin", Email: "ana@globex.test", Password: "wrong",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginReturnsTokenAndSession(t *testing.T) {
	srv := newTestServer(nil, nil, nil)

	rec := doRequest(t, srv.routes(), http.MethodPost, "/api/auth/login", session.LoginRequest{
		Role: "trainee", Email: "t@globex.test", Password: "correct horse",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.SessionID == "" {
		t.Errorf("incomplete login response: %+v", resp)
	}
	if resp.Role != "trainee" {
		t.Errorf("role = %q, want trainee", resp.Role)
	}
}

func TestGetCompanyNotFound(t *testing.T) {
	sess := &stubSessionService{principal: session.Principal{Role: roles.KindAdmin, SubjectID: "adm-1"}}
	srv := newTestServer(nil, sess, nil)

	rec := doRequest(t, srv.routes(), http.MethodGet, "/api/companies/nope", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUnauthenticatedReadRejected(t *testing.T) {
	sess := &stubSessionService{authErr: session.ErrInvalidToken}
	srv := newTestServer(nil, sess, nil)

	rec := doRequest(t, srv.routes(), http.MethodGet, "/api/employees/emp-1", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
