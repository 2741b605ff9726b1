package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists audit events to the audit_events table. Events are
// append-only; there is no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (category, occurred_at, action, actor, tenant_code,
			subject, entity_type, entity_id, old_status, new_status, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var entityID any
	if event.EntityID != uuid.Nil {
		entityID = event.EntityID
	}
	_, err := s.db.ExecContext(ctx, query,
		string(event.Category), event.Timestamp, event.Action, event.Actor,
		event.TenantCode, event.Subject, event.EntityType, entityID,
		event.OldStatus, event.NewStatus, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListBySubject returns the trail for one subject in occurrence order.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	query := `
		SELECT category, occurred_at, action, actor, tenant_code,
			subject, entity_type, entity_id, old_status, new_status, reason, request_id
		FROM audit_events
		WHERE subject = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var event Event
		var category string
		var occurredAt time.Time
		var entityID uuid.NullUUID
		if err := rows.Scan(&category, &occurredAt, &event.Action, &event.Actor,
			&event.TenantCode, &event.Subject, &event.EntityType, &entityID,
			&event.OldStatus, &event.NewStatus, &event.Reason, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = EventCategory(category)
		event.Timestamp = occurredAt
		if entityID.Valid {
			event.EntityID = entityID.UUID
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
