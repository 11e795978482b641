package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTimeout signals that a store operation exceeded its bounded deadline.
// The whole operation is safe to retry; no partial state is left visible.
var ErrTimeout = errors.New("db: store timeout")

// NewPool constructs a pgx connection pool using the provided connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("db: empty connection string")
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// TranslateTimeout converts a context deadline failure into ErrTimeout so that
// services surface one retryable error shape regardless of which query hit the
// deadline. Other errors pass through unchanged.
func TranslateTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
