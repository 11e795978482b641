package org

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service exposes business-level operations on the organizational graph.
type Service struct {
	repo        Repository
	idGenerator func() string
}

// NewService builds a Service using the provided repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides id allocation.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// GetEmployee returns the employee for the given identifier.
func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// GetCompany returns the company for the given identifier.
func (s *Service) GetCompany(ctx context.Context, id string) (Company, error) {
	return s.repo.GetCompany(ctx, id)
}

// GetCompanyByRegistrationRequest returns the company provisioned from a
// registration request.
func (s *Service) GetCompanyByRegistrationRequest(ctx context.Context, requestID string) (Company, error) {
	return s.repo.GetCompanyByRegistrationRequest(ctx, requestID)
}

// ListCompanies returns up to limit companies.
func (s *Service) ListCompanies(ctx context.Context, limit int) ([]Company, error) {
	return s.repo.ListCompanies(ctx, limit)
}

// ResolveTriangle resolves and verifies the company's reference cycle.
func (s *Service) ResolveTriangle(ctx context.Context, companyID string) (Triangle, error) {
	return s.repo.ResolveTriangle(ctx, companyID)
}

// CreateDepartmentParams contains write parameters for a new department.
type CreateDepartmentParams struct {
	Name      string
	CompanyID string
	AdminID   string
}

// CreateDepartment creates a department under the admin's company.
func (s *Service) CreateDepartment(ctx context.Context, params CreateDepartmentParams) (Department, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Department{}, fmt.Errorf("org: department name required")
	}
	if params.CompanyID == "" || params.AdminID == "" {
		return Department{}, fmt.Errorf("org: company and admin ids required")
	}

	return s.repo.CreateDepartment(ctx, Department{
		ID:        s.idGenerator(),
		Name:      name,
		CompanyID: params.CompanyID,
		AdminID:   params.AdminID,
	})
}

// CreateGroupParams contains write parameters for a new group.
type CreateGroupParams struct {
	Name         string
	DepartmentID string
	SupervisorID *string
}

// CreateGroup creates a group under a department.
func (s *Service) CreateGroup(ctx context.Context, params CreateGroupParams) (Group, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Group{}, fmt.Errorf("org: group name required")
	}
	if params.DepartmentID == "" {
		return Group{}, fmt.Errorf("org: department id required")
	}

	return s.repo.CreateGroup(ctx, Group{
		ID:           s.idGenerator(),
		Name:         name,
		DepartmentID: params.DepartmentID,
		SupervisorID: params.SupervisorID,
	})
}
