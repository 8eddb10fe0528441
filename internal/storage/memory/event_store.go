package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

type eventKey struct {
	eventType domain.EventType
	runID     string
	teamID    string
	claimID   string
}

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.WaiverEvent
	seen   map[eventKey]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		seen: make(map[eventKey]struct{}),
	}
}

// Publish appends events, ignoring ones already stored.
func (s *EventStore) Publish(_ context.Context, events []domain.WaiverEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		key := eventKey{eventType: e.Type, runID: e.RunID, teamID: e.TeamID, claimID: e.ClaimID}
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.events = append(s.events, e)
	}
	return nil
}

// GetByLeague retrieves a league's events since the given time.
func (s *EventStore) GetByLeague(_ context.Context, leagueID string, since time.Time) ([]domain.WaiverEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.WaiverEvent
	for _, e := range s.events {
		if e.LeagueID == leagueID && !e.OccurredAt.Before(since) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}

// All returns every stored event in publish order.
func (s *EventStore) All() []domain.WaiverEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WaiverEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
