// Package postgres is the durable audit sink. Appends join a transaction
// riding the context so the audit row commits or rolls back with the
// triggering business mutation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"chronicle/internal/recorder"
	txcontext "chronicle/pkg/platform/tx"
)

// Store implements recorder.Sink on the audit_events table.
type Store struct {
	db *sql.DB
}

// Open connects a pgx stdlib pool and returns a store on it.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing pool, typically one shared with the host.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer prefers the caller's transaction over the pool so the audit write
// shares the mutation's atomic unit.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one audit event. Duplicate IDs are ignored so redelivery
// stays idempotent.
func (s *Store) Append(ctx context.Context, event recorder.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			id, target_type, target_id, object_repr, event_kind,
			changed_fields, actor_id, actor_ref, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	var changed any
	if event.ChangedFields != nil {
		changed = []byte(event.ChangedFields)
	}

	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.TargetType,
		event.TargetID,
		event.ObjectRepr,
		string(event.Kind),
		changed,
		nullable(event.ActorID),
		nullable(event.ActorRef),
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent events across all targets.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]recorder.AuditEvent, error) {
	query := `
		SELECT id, target_type, target_id, object_repr, event_kind,
			   changed_fields, actor_id, actor_ref, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListByTarget returns one entity's events in occurrence order.
func (s *Store) ListByTarget(ctx context.Context, targetType, targetID string) ([]recorder.AuditEvent, error) {
	query := `
		SELECT id, target_type, target_id, object_repr, event_kind,
			   changed_fields, actor_id, actor_ref, occurred_at
		FROM audit_events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Health pings the underlying pool.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]recorder.AuditEvent, error) {
	var events []recorder.AuditEvent

	for rows.Next() {
		var (
			event    recorder.AuditEvent
			kind     string
			changed  []byte
			actorID  sql.NullString
			actorRef sql.NullString
		)
		err := rows.Scan(
			&event.ID,
			&event.TargetType,
			&event.TargetID,
			&event.ObjectRepr,
			&kind,
			&changed,
			&actorID,
			&actorRef,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Kind = recorder.Kind(kind)
		if changed != nil {
			event.ChangedFields = changed
		}
		event.ActorID = actorID.String
		event.ActorRef = actorRef.String

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
