package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each must return zero rows on a healthy
// database; any row is a counterexample.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_company_per_request",
			SQL: `SELECT registration_request_id, COUNT(*) FROM companies
                  GROUP BY registration_request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_approved_request_has_company",
			SQL: `SELECT r.id FROM registration_requests r
                  LEFT JOIN companies c ON c.registration_request_id = r.id
                  WHERE r.status = 'approved' AND c.id IS NULL`,
		},
		{
			Name: "O3_non_approved_request_has_no_company",
			SQL: `SELECT r.id FROM registration_requests r
                  JOIN companies c ON c.registration_request_id = r.id
                  WHERE r.status <> 'approved'`,
		},
		{
			Name: "O4_triangle_closed",
			SQL: `SELECT c.id FROM companies c
                  LEFT JOIN admins a ON a.id = c.admin_id
                  LEFT JOIN employees e ON e.id = a.employee_id
                  WHERE c.admin_id IS NULL
                     OR a.id IS NULL
                     OR e.id IS NULL
                     OR e.company_id IS DISTINCT FROM c.id`,
		},
		{
			Name: "O5_terminal_requests_reviewed",
			SQL: `SELECT id, status FROM registration_requests
                  WHERE (status IN ('approved','rejected') AND (reviewed_at IS NULL OR reviewed_by IS NULL))
                     OR (status = 'pending' AND (reviewed_at IS NOT NULL OR reviewed_by IS NOT NULL))`,
		},
		{
			Name: "O6_no_employee_with_two_roles",
			SQL: `SELECT employee_id FROM (
                      SELECT employee_id FROM admins
                      UNION ALL SELECT employee_id FROM supervisors
                      UNION ALL SELECT employee_id FROM trainees
                      UNION ALL SELECT employee_id FROM owners WHERE employee_id IS NOT NULL
                  ) roles
                  GROUP BY employee_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_session_discriminator_resolves",
			SQL: `SELECT s.id, s.user_type FROM sessions s
                  WHERE s.is_active AND NOT EXISTS (
                      SELECT 1 FROM admins a WHERE s.user_type = 'admin' AND a.id = s.user_id
                      UNION ALL
                      SELECT 1 FROM supervisors sv WHERE s.user_type = 'supervisor' AND sv.id = s.user_id
                      UNION ALL
                      SELECT 1 FROM trainees t WHERE s.user_type = 'trainee' AND t.id = s.user_id
                      UNION ALL
                      SELECT 1 FROM owners o WHERE s.user_type = 'owner' AND o.id = s.user_id
                  )`,
		},
		{
			Name: "O8_closed_sessions_stay_closed",
			SQL:  `SELECT id FROM sessions WHERE logout_time IS NOT NULL AND is_active`,
		},
		{
			Name: "O9_no_plaintext_passwords",
			SQL: `SELECT id FROM registration_requests WHERE admin_password_hash NOT LIKE '$2%'
                  UNION ALL
                  SELECT id FROM admins WHERE password_hash NOT LIKE '$2%'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
