package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// PostgresStore persists the audit trail in PostgreSQL. The seq column gives
// a total append order independent of timestamps, which can collide.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, occurred_at, action, category, principal, actor, credential_index, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, string(event.Action), string(event.Category),
		event.Principal.String(), event.Actor.String(), event.CredentialIndex, event.Score,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPrincipal(ctx context.Context, principal id.Principal) ([]Event, error) {
	query := `
		SELECT id, occurred_at, action, category, principal, actor, credential_index, score
		FROM audit_events
		WHERE principal = $1
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, principal.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events by principal: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]Event, error) {
	query := `
		SELECT id, occurred_at, action, category, principal, actor, credential_index, score
		FROM audit_events
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := []Event{}
	for rows.Next() {
		var (
			event            Event
			eventID          uuid.UUID
			action, category string
			principal, actor string
		)
		if err := rows.Scan(&eventID, &event.Timestamp, &action, &category,
			&principal, &actor, &event.CredentialIndex, &event.Score); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = eventID
		event.Action = Action(action)
		event.Category = EventCategory(category)
		event.Principal = id.Principal(principal)
		event.Actor = id.Principal(actor)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
