// Package notify persists fire-and-forget notification events. Dispatch
// happens after the triggering transaction commits; a failed dispatch is the
// caller's to log, never to roll back on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one dispatched notification.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// PGDispatcher stores notification events in PostgreSQL.
type PGDispatcher struct {
	pool        *pgxpool.Pool
	idGenerator func() string
}

// NewDispatcher creates a PostgreSQL-backed dispatcher.
func NewDispatcher(pool *pgxpool.Pool) *PGDispatcher {
	return &PGDispatcher{
		pool:        pool,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// Dispatch records the event. The write runs under its own short deadline so
// a slow notifications table cannot stall the caller.
func (d *PGDispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]any) error {
	if eventType == "" {
		return fmt.Errorf("notify: empty event type")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := d.pool.Exec(ctx,
		`INSERT INTO notifications (id, type, payload) VALUES ($1, $2, $3)`,
		d.idGenerator(), eventType, body,
	); err != nil {
		return fmt.Errorf("notify: insert notification: %w", err)
	}

	return nil
}
