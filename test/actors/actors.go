package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"traindesk/registration"
	"traindesk/session"
)

// Applicant keeps submitting registration requests with unique and sometimes
// colliding admin emails. Collisions must surface as the duplicate sentinel,
// never as a second pending row.
func Applicant(ctx context.Context, svc *registration.Service, tag string, stop <-chan struct{}) error {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n++
		email := fmt.Sprintf("stress-%s-%d@example.com", tag, n)
		if rand.Intn(4) == 0 && n > 1 {
			// deliberately reuse an earlier email to provoke the unique guard
			email = fmt.Sprintf("stress-%s-%d@example.com", tag, rand.Intn(n)+1)
		}
		_, err := svc.Submit(ctx, registration.SubmitRequest{
			CompanyName:   fmt.Sprintf("Stress Co %s-%d", tag, n),
			CRN:           fmt.Sprintf("CRN-%s-%d", tag, n),
			Industry:      "stress-testing",
			CompanySize:   "10-50",
			AdminEmail:    email,
			AdminPassword: "stress-password",
		})
		switch {
		case err == nil:
		case errors.Is(err, registration.ErrDuplicateAdminEmail):
			// expected under reuse
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			// chaos can kill the backend mid-statement; retry on the next loop
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Reviewer races other reviewers over the same pending requests. Losing a race
// must produce the invalid-state sentinel, never a second company.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, svc *registration.Service, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var requestID string
		err := pool.QueryRow(ctx,
			`SELECT id FROM registration_requests WHERE status = 'pending' ORDER BY random() LIMIT 1`,
		).Scan(&requestID)
		if errors.Is(err, pgx.ErrNoRows) {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if rand.Intn(5) == 0 {
			err = svc.Reject(ctx, requestID, ownerID)
		} else {
			_, err = svc.Approve(ctx, requestID, ownerID)
		}
		switch {
		case err == nil:
		case errors.Is(err, registration.ErrInvalidState):
			// lost the race, expected
		case errors.Is(err, registration.ErrDuplicateAdminEmail):
			// another approval claimed the email first
		case errors.Is(err, registration.ErrRequestNotFound):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			// transient infrastructure failure under chaos
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// LoginCycler authenticates the seeded owner, validates the token, and logs
// out again, over and over. The session discriminator must hold throughout.
func LoginCycler(ctx context.Context, svc *session.Service, role, email, password string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		result, err := svc.Authenticate(ctx, session.LoginRequest{Role: role, Email: email, Password: password})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, session.ErrInvalidCredentials) {
				return fmt.Errorf("login cycler: seeded credentials rejected: %w", err)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if _, err := svc.Validate(ctx, result.Token); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, session.ErrInvalidToken) {
				return fmt.Errorf("login cycler: fresh token rejected: %w", err)
			}
		}

		_ = svc.Logout(ctx, result.Session.ID)
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Impostor hammers the login path with wrong passwords and wrong roles. Every
// attempt must fail with the uniform credential error and open no session.
func Impostor(ctx context.Context, svc *session.Service, email string, stop <-chan struct{}) error {
	roles := []string{"admin", "supervisor", "trainee", "owner", "superuser"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := svc.Authenticate(ctx, session.LoginRequest{
			Role:     roles[rand.Intn(len(roles))],
			Email:    email,
			Password: "definitely-wrong",
		})
		switch {
		case err == nil:
			return fmt.Errorf("impostor: login with wrong password succeeded for %s", email)
		case errors.Is(err, session.ErrInvalidCredentials):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			// transient infrastructure failure under chaos
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}
