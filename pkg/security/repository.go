package security

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore writes audit events to the security_events table.
type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

// Save is shaped to be handed to AuditLogger.SetPersistFunc. Blank optional
// fields are stored as NULL.
func (s *EventStore) Save(ctx context.Context, e SecurityEvent) error {
	const q = `
		INSERT INTO security_events
			(event_type, service, environment, severity, subject_type, subject_value,
			 ip_address, user_agent, request_id, details, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10::jsonb, $11)`

	if _, err := s.db.Exec(ctx, q,
		string(e.Event), e.Service, e.Environment, string(e.Severity),
		e.SubjectType, e.SubjectValue,
		e.IP, e.UserAgent, e.RequestID,
		detailsJSON(e.Details), e.Timestamp,
	); err != nil {
		return fmt.Errorf("save %s event: %w", e.Event, err)
	}
	return nil
}
