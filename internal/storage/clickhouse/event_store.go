package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse. The table is a
// ReplacingMergeTree keyed by (league_id, run_id, event_type, team_id,
// claim_id), so re-publishing a run collapses to one row per event.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// eventPayload carries the nested parts of an event as JSON.
type eventPayload struct {
	Summary *domain.RunSummary  `json:"summary,omitempty"`
	Team    *domain.TeamSummary `json:"team,omitempty"`
}

// Publish appends events in one batch.
func (s *EventStore) Publish(ctx context.Context, events []domain.WaiverEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO waiver_events (
			event_type, league_id, run_id, team_id, claim_id,
			outcome, reason, payload, occurred_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		payload, err := json.Marshal(eventPayload{Summary: e.Summary, Team: e.Team})
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}

		err = batch.Append(
			string(e.Type),
			e.LeagueID,
			e.RunID,
			e.TeamID,
			e.ClaimID,
			string(e.Outcome),
			string(e.Reason),
			string(payload),
			e.OccurredAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByLeague retrieves a league's events since the given time, oldest first.
func (s *EventStore) GetByLeague(ctx context.Context, leagueID string, since time.Time) ([]domain.WaiverEvent, error) {
	query := `
		SELECT event_type, league_id, run_id, team_id, claim_id, outcome, reason, payload, occurred_at
		FROM waiver_events FINAL
		WHERE league_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC, run_id ASC, event_type ASC, team_id ASC, claim_id ASC
	`

	rows, err := s.conn.Query(ctx, query, leagueID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.WaiverEvent
	for rows.Next() {
		var (
			e                               domain.WaiverEvent
			eventType, outcome, reason, raw string
		)
		if err := rows.Scan(
			&eventType,
			&e.LeagueID,
			&e.RunID,
			&e.TeamID,
			&e.ClaimID,
			&outcome,
			&reason,
			&raw,
			&e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Outcome = domain.ClaimStatus(outcome)
		e.Reason = domain.FailureReason(reason)
		e.OccurredAt = e.OccurredAt.UTC()

		var p eventPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		e.Summary, e.Team = p.Summary, p.Team

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
