// Package audit records who changed what in the audit_log table.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey struct{}

// WithUser returns a context carrying the acting user's ID.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the acting user's ID, or uuid.Nil for system actions.
func UserFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKey{}).(uuid.UUID)
	return id
}

// Entry is one audit record.
type Entry struct {
	UserID     uuid.UUID // uuid.Nil takes the user from the context
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Changes    map[string]any
}

// Recorder writes audit entries. Failures are logged, never returned, so an
// audit outage does not fail the audited operation.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder creates an audit recorder. A nil pool gives a recorder that
// only logs.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{pool: pool, logger: logger}
}

// Record stores the entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.UserID == uuid.Nil {
		e.UserID = UserFrom(ctx)
	}
	var userID *uuid.UUID
	if e.UserID != uuid.Nil {
		userID = &e.UserID
	}

	if r.pool == nil {
		r.logger.Info("audit", "action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID)
		return
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, action, entity_type, entity_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), userID, e.Action, e.EntityType, e.EntityID, e.Changes, time.Now().UTC())
	if err != nil {
		r.logger.Error("failed to write audit log",
			slog.String("action", e.Action),
			slog.String("entity_type", e.EntityType),
			slog.String("entity_id", e.EntityID.String()),
			slog.String("error", err.Error()),
		)
	}
}
