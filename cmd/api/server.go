package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"traindesk/db"
	"traindesk/org"
	"traindesk/registration"
	"traindesk/roles"
	"traindesk/session"
)

// RegistrationService is the slice of registration.Service the handlers use.
type RegistrationService interface {
	Submit(ctx context.Context, req registration.SubmitRequest) (registration.Request, error)
	Get(ctx context.Context, id string) (registration.Request, error)
	List(ctx context.Context, filters registration.Filters) ([]registration.Request, error)
	Approve(ctx context.Context, requestID, reviewedBy string) (registration.ProvisionResult, error)
	Reject(ctx context.Context, requestID, reviewedBy string) error
}

// SessionService is the slice of session.Service the handlers use.
type SessionService interface {
	Authenticate(ctx context.Context, req session.LoginRequest) (session.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	Validate(ctx context.Context, token string) (session.Principal, error)
	RequireRole(ctx context.Context, token string, kind roles.Kind) (session.Principal, error)
}

// OrgService is the slice of org.Service the handlers use.
type OrgService interface {
	GetEmployee(ctx context.Context, id string) (org.Employee, error)
	GetCompany(ctx context.Context, id string) (org.Company, error)
	ListCompanies(ctx context.Context, limit int) ([]org.Company, error)
	CreateDepartment(ctx context.Context, params org.CreateDepartmentParams) (org.Department, error)
	CreateGroup(ctx context.Context, params org.CreateGroupParams) (org.Group, error)
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	registrationService RegistrationService
	sessionService      SessionService
	orgService          OrgService
	log                 *logrus.Logger
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	r.Use(requestID, requestLogger(s.log))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/registration-requests", s.handleSubmitRegistration).Methods(http.MethodPost)
	api.HandleFunc("/registration-requests", s.handleListRegistrations).Methods(http.MethodGet)
	api.HandleFunc("/registration-requests/{id}", s.handleGetRegistration).Methods(http.MethodGet)
	api.HandleFunc("/registration-requests/{id}/approve", s.handleApproveRegistration).Methods(http.MethodPost)
	api.HandleFunc("/registration-requests/{id}/reject", s.handleRejectRegistration).Methods(http.MethodPost)

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	api.HandleFunc("/companies/{id}", s.handleGetCompany).Methods(http.MethodGet)
	api.HandleFunc("/employees/{id}", s.handleGetEmployee).Methods(http.MethodGet)
	api.HandleFunc("/companies/{id}/departments", s.handleCreateDepartment).Methods(http.MethodPost)
	api.HandleFunc("/departments/{id}/groups", s.handleCreateGroup).Methods(http.MethodPost)

	return r
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var req registration.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	created, err := s.registrationService.Submit(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{ID: created.ID, Status: string(created.Status)})
}

type requestResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	CompanyName string  `json:"company_name"`
	CRN         string  `json:"crn"`
	Industry    string  `json:"industry"`
	CompanySize string  `json:"company_size"`
	AdminEmail  string  `json:"admin_email"`
	SubmittedAt string  `json:"submitted_at"`
	ReviewedAt  *string `json:"reviewed_at,omitempty"`
	ReviewedBy  *string `json:"reviewed_by,omitempty"`
}

func toRequestResponse(req registration.Request) requestResponse {
	resp := requestResponse{
		ID:          req.ID,
		Status:      string(req.Status),
		CompanyName: req.Application.Company.Name,
		CRN:         req.Application.Company.CRN,
		Industry:    req.Application.Company.Industry,
		CompanySize: req.Application.Company.Size,
		AdminEmail:  req.Application.Admin.LoginEmail,
		SubmittedAt: req.SubmittedAt.Format(time.RFC3339),
		ReviewedBy:  req.ReviewedBy,
	}
	if req.ReviewedAt != nil {
		at := req.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &at
	}
	return resp
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireRole(r, roles.KindOwner); err != nil {
		s.writeDomainError(w, err)
		return
	}

	filters := registration.Filters{}
	if status := r.URL.Query().Get("status"); status != "" {
		filters.Status = registration.Status(status)
	}

	items, err := s.registrationService.List(r.Context(), filters)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]requestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toRequestResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireRole(r, roles.KindOwner); err != nil {
		s.writeDomainError(w, err)
		return
	}

	req, err := s.registrationService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

type provisionResponse struct {
	EmployeeID string `json:"employee_id"`
	CompanyID  string `json:"company_id"`
	AdminID    string `json:"admin_id"`
}

func (s *Server) handleApproveRegistration(w http.ResponseWriter, r *http.Request) {
	principal, err := s.requireRole(r, roles.KindOwner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	result, err := s.registrationService.Approve(r.Context(), mux.Vars(r)["id"], principal.SubjectID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, provisionResponse{
		EmployeeID: result.EmployeeID,
		CompanyID:  result.CompanyID,
		AdminID:    result.AdminID,
	})
}

func (s *Server) handleRejectRegistration(w http.ResponseWriter, r *http.Request) {
	principal, err := s.requireRole(r, roles.KindOwner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.registrationService.Reject(r.Context(), mux.Vars(r)["id"], principal.SubjectID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	result, err := s.sessionService.Authenticate(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		SessionID: result.Session.ID,
		Role:      string(result.Session.UserType),
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if err := s.sessionService.Logout(r.Context(), req.SessionID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type companyResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	CRN      string  `json:"crn"`
	Industry string  `json:"industry"`
	Size     string  `json:"company_size"`
	AdminID  *string `json:"admin_id"`
	LogoRef  string  `json:"logo_ref,omitempty"`
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticated(r); err != nil {
		s.writeDomainError(w, err)
		return
	}

	company, err := s.orgService.GetCompany(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, companyResponse{
		ID:       company.ID,
		Name:     company.Name,
		CRN:      company.CRN,
		Industry: company.Industry,
		Size:     company.Size,
		AdminID:  company.AdminID,
		LogoRef:  company.LogoRef,
	})
}

type employeeResponse struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Position  string  `json:"position"`
	CompanyID *string `json:"company_id"`
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticated(r); err != nil {
		s.writeDomainError(w, err)
		return
	}

	emp, err := s.orgService.GetEmployee(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, employeeResponse{
		ID:        emp.ID,
		FirstName: emp.FirstName,
		LastName:  emp.LastName,
		Email:     emp.Email,
		Position:  string(emp.Position),
		CompanyID: emp.CompanyID,
	})
}

type createDepartmentRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	principal, err := s.requireRole(r, roles.KindAdmin)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req createDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	dept, err := s.orgService.CreateDepartment(r.Context(), org.CreateDepartmentParams{
		Name:      req.Name,
		CompanyID: mux.Vars(r)["id"],
		AdminID:   principal.SubjectID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": dept.ID, "name": dept.Name})
}

type createGroupRequest struct {
	Name         string  `json:"name"`
	SupervisorID *string `json:"supervisor_id"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireRole(r, roles.KindAdmin); err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	group, err := s.orgService.CreateGroup(r.Context(), org.CreateGroupParams{
		Name:         req.Name,
		DepartmentID: mux.Vars(r)["id"],
		SupervisorID: req.SupervisorID,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": group.ID, "name": group.Name})
}

// authenticated validates the bearer token and returns the principal.
func (s *Server) authenticated(r *http.Request) (session.Principal, error) {
	return s.sessionService.Validate(r.Context(), bearerToken(r))
}

// requireRole validates the bearer token and demands a specific role kind.
func (s *Server) requireRole(r *http.Request, kind roles.Kind) (session.Principal, error) {
	return s.sessionService.RequireRole(r.Context(), bearerToken(r), kind)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// writeDomainError maps domain errors onto the HTTP surface. Credential and
// token failures all collapse to one 401 body so callers can't probe which
// part failed.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var verr *registration.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "missing required fields", verr.Fields)
	case errors.Is(err, registration.ErrDuplicateAdminEmail),
		errors.Is(err, org.ErrDuplicateDepartment),
		errors.Is(err, org.ErrDuplicateGroup):
		writeError(w, http.StatusConflict, "already exists", nil)
	case errors.Is(err, registration.ErrInvalidState):
		writeError(w, http.StatusConflict, "request already processed", nil)
	case errors.Is(err, registration.ErrRequestNotFound),
		errors.Is(err, org.ErrCompanyNotFound),
		errors.Is(err, org.ErrEmployeeNotFound),
		errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil)
	case errors.Is(err, session.ErrForbiddenRole):
		writeError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, db.ErrTimeout):
		writeError(w, http.StatusServiceUnavailable, "store timeout, retry", nil)
	default:
		if s.log != nil {
			s.log.WithError(err).Error("unhandled domain error")
		}
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, fields []string) {
	writeJSON(w, status, errorResponse{Error: msg, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
