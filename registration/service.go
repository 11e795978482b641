package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"traindesk/credential"
	"traindesk/db"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier dispatches fire-and-forget events after a review completes.
// Dispatch failures are logged and never affect the review outcome.
type Notifier interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]any) error
}

// Service owns the registration request lifecycle and the provisioning step
// that turns an approved application into live organizational entities.
type Service struct {
	pool        TxBeginner
	repo        Repository
	provisioner Provisioner
	notifier    Notifier
	log         *logrus.Logger
	idGenerator func() string
	now         func() time.Time
	opTimeout   time.Duration
}

// NewService creates the registration service. notifier and log may be nil.
func NewService(pool TxBeginner, repo Repository, provisioner Provisioner, notifier Notifier, log *logrus.Logger) *Service {
	if provisioner == nil {
		provisioner = NewProvisioner()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		provisioner: provisioner,
		notifier:    notifier,
		log:         log,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
		opTimeout:   5 * time.Second,
	}
}

// WithIDGenerator overrides id allocation. Ids are allocated client-side so
// rows can reference each other before every row exists.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithClock overrides the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithOpTimeout overrides the per-operation store deadline.
func (s *Service) WithOpTimeout(d time.Duration) *Service {
	s.opTimeout = d
	return s
}

// Submit validates and stores a new pending registration request. The admin
// password is hashed here; the repository only ever sees the digest.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Request, error) {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"company_name", req.CompanyName},
		{"crn", req.CRN},
		{"industry", req.Industry},
		{"company_size", req.CompanySize},
		{"admin_email", req.AdminEmail},
		{"admin_password", req.AdminPassword},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Request{}, &ValidationError{Fields: missing}
	}

	passwordHash, err := credential.Hash(req.AdminPassword)
	if err != nil {
		return Request{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	pending := Request{
		ID:          s.idGenerator(),
		Status:      StatusPending,
		SubmittedAt: s.now().UTC(),
		Application: Application{
			Company: CompanySnapshot{
				Name:        strings.TrimSpace(req.CompanyName),
				CRN:         strings.TrimSpace(req.CRN),
				Industry:    strings.TrimSpace(req.Industry),
				Size:        strings.TrimSpace(req.CompanySize),
				Description: req.Description,
				Branches:    req.Branches,
				TaxNo:       req.TaxNo,
				LinkedIn:    req.LinkedIn,
				LogoRef:     req.LogoRef,
			},
			Admin: AdminSnapshot{
				LoginEmail:   strings.ToLower(strings.TrimSpace(req.AdminEmail)),
				PasswordHash: passwordHash,
				FirstName:    strings.TrimSpace(req.AdminFirstName),
				LastName:     strings.TrimSpace(req.AdminLastName),
				Phone:        strings.TrimSpace(req.AdminPhone),
				Position:     strings.TrimSpace(req.AdminPosition),
			},
		},
	}

	created, err := s.repo.Insert(ctx, pending)
	if err != nil {
		return Request{}, db.TranslateTimeout(err)
	}

	return created, nil
}

// Get retrieves a request by id.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Request{}, db.TranslateTimeout(err)
	}
	return req, nil
}

// List returns requests in submission-time descending order.
func (s *Service) List(ctx context.Context, filters Filters) ([]Request, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	items, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, db.TranslateTimeout(err)
	}
	return items, nil
}

// Approve provisions the three cross-referencing entities for a pending
// request and marks it approved, all inside one transaction. Either the
// transaction commits with the full triangle and the approved status, or it
// rolls back leaving the request pending and zero new entities.
func (s *Service) Approve(ctx context.Context, requestID, reviewedBy string) (ProvisionResult, error) {
	if requestID == "" {
		return ProvisionResult{}, fmt.Errorf("registration: approve missing request id")
	}
	if reviewedBy == "" {
		return ProvisionResult{}, fmt.Errorf("registration: approve missing reviewer id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ProvisionResult{}, db.TranslateTimeout(fmt.Errorf("registration: begin tx: %w", err))
	}
	// Rollback runs on an uncancellable context: caller cancellation must not
	// skip the cleanup that keeps partial entities invisible.
	defer tx.Rollback(context.WithoutCancel(ctx))

	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return ProvisionResult{}, db.TranslateTimeout(err)
	}
	if req.Status != StatusPending {
		return ProvisionResult{}, ErrInvalidState
	}

	result, err := s.provision(ctx, tx, req)
	if err != nil {
		return ProvisionResult{}, db.TranslateTimeout(err)
	}

	if err := s.repo.MarkReviewed(ctx, tx, requestID, StatusApproved, reviewedBy, s.now().UTC()); err != nil {
		return ProvisionResult{}, db.TranslateTimeout(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ProvisionResult{}, db.TranslateTimeout(fmt.Errorf("registration: commit approval: %w", err))
	}

	s.dispatch(ctx, "registration.approved", map[string]any{
		"request_id":  requestID,
		"company_id":  result.CompanyID,
		"admin_id":    result.AdminID,
		"employee_id": result.EmployeeID,
		"reviewed_by": reviewedBy,
	})

	return result, nil
}

// provision runs the fixed cycle-breaking insert order inside tx:
// employee (no company ref), company (no admin ref), admin, then the two
// reference patches. All three ids are allocated up front.
func (s *Service) provision(ctx context.Context, tx pgx.Tx, req Request) (ProvisionResult, error) {
	admin := req.Application.Admin
	company := req.Application.Company

	taken, err := s.provisioner.AdminEmailTaken(ctx, tx, admin.LoginEmail)
	if err != nil {
		return ProvisionResult{}, &ProvisioningError{Step: "email precheck", Err: err}
	}
	if taken {
		return ProvisionResult{}, ErrDuplicateAdminEmail
	}

	result := ProvisionResult{
		EmployeeID: s.idGenerator(),
		CompanyID:  s.idGenerator(),
		AdminID:    s.idGenerator(),
	}

	if err := s.provisioner.InsertEmployee(ctx, tx, EmployeeSeed{
		ID:        result.EmployeeID,
		FirstName: admin.FirstName,
		LastName:  admin.LastName,
		Email:     admin.LoginEmail,
		Phone:     admin.Phone,
		Position:  "admin",
	}); err != nil {
		return ProvisionResult{}, wrapProvisionStep("insert employee", err)
	}

	if err := s.provisioner.InsertCompany(ctx, tx, CompanySeed{
		ID:                    result.CompanyID,
		RegistrationRequestID: req.ID,
		Name:                  company.Name,
		CRN:                   company.CRN,
		Industry:              company.Industry,
		Size:                  company.Size,
		Description:           company.Description,
		Branches:              company.Branches,
		TaxNo:                 company.TaxNo,
		LinkedIn:              company.LinkedIn,
		LogoRef:               company.LogoRef,
	}); err != nil {
		return ProvisionResult{}, wrapProvisionStep("insert company", err)
	}

	if err := s.provisioner.InsertAdmin(ctx, tx, AdminSeed{
		ID:           result.AdminID,
		EmployeeID:   result.EmployeeID,
		LoginEmail:   admin.LoginEmail,
		PasswordHash: admin.PasswordHash,
	}); err != nil {
		return ProvisionResult{}, wrapProvisionStep("insert admin", err)
	}

	if err := s.provisioner.SetCompanyAdmin(ctx, tx, result.CompanyID, result.AdminID); err != nil {
		return ProvisionResult{}, wrapProvisionStep("link company admin", err)
	}

	if err := s.provisioner.SetEmployeeCompany(ctx, tx, result.EmployeeID, result.CompanyID); err != nil {
		return ProvisionResult{}, wrapProvisionStep("link employee company", err)
	}

	return result, nil
}

// Reject marks a pending request rejected with no further side effects.
func (s *Service) Reject(ctx context.Context, requestID, reviewedBy string) error {
	if requestID == "" {
		return fmt.Errorf("registration: reject missing request id")
	}
	if reviewedBy == "" {
		return fmt.Errorf("registration: reject missing reviewer id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return db.TranslateTimeout(fmt.Errorf("registration: begin tx: %w", err))
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return db.TranslateTimeout(err)
	}
	if req.Status != StatusPending {
		return ErrInvalidState
	}

	if err := s.repo.MarkReviewed(ctx, tx, requestID, StatusRejected, reviewedBy, s.now().UTC()); err != nil {
		return db.TranslateTimeout(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return db.TranslateTimeout(fmt.Errorf("registration: commit rejection: %w", err))
	}

	s.dispatch(ctx, "registration.rejected", map[string]any{
		"request_id":  requestID,
		"reviewed_by": reviewedBy,
	})

	return nil
}

// dispatch notifies fire-and-forget; failure is logged, never surfaced.
func (s *Service) dispatch(ctx context.Context, eventType string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(context.WithoutCancel(ctx), eventType, payload); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("notification dispatch failed")
	}
}

// wrapProvisionStep keeps sentinel errors (duplicate email, invalid state)
// matchable while tagging infrastructure failures with the step that broke.
func wrapProvisionStep(step string, err error) error {
	if errors.Is(err, ErrDuplicateAdminEmail) || errors.Is(err, ErrInvalidState) {
		return err
	}
	return &ProvisioningError{Step: step, Err: err}
}
