package db

import (
	"context"
	"fmt"

	"exam-portal/logger"
	"exam-portal/models"
)

// LogEvent adds an entry to the audit_events table. Failures are logged, never returned.
func (s *Store) LogEvent(ctx context.Context, actor, action, target, notes string) {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO audit_events (action, actor, target, notes)
		VALUES ($1, $2, $3, $4)
	`, action, actor, target, notes)
	if err != nil {
		logger.Error().Err(err).Str("action", action).Str("actor", actor).Str("target", target).
			Msg("Failed to log audit event")
	}
}

// ListEvents returns the actor's most recent audit events.
func (s *Store) ListEvents(ctx context.Context, actor string, limit int) ([]models.AuditEvent, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, timestamp, action, actor, COALESCE(target, ''), COALESCE(notes, '')
		FROM audit_events WHERE actor = $1
		ORDER BY timestamp DESC, id DESC LIMIT $2
	`, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Action, &ev.Actor, &ev.Target, &ev.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
