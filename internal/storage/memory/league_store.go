package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

type lease struct {
	holder    string
	expiresAt time.Time
}

// LeagueStore is an in-memory implementation of storage.LeagueStore.
type LeagueStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.League // keyed by league_id
	leases map[string]lease
}

// NewLeagueStore creates a new in-memory league store.
func NewLeagueStore() *LeagueStore {
	return &LeagueStore{
		data:   make(map[string]*domain.League),
		leases: make(map[string]lease),
	}
}

// Put creates or replaces a league.
func (s *LeagueStore) Put(_ context.Context, l *domain.League) error {
	if l == nil || l.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[l.ID] = l.Clone()
	return nil
}

// GetByID retrieves a league. Returns ErrNotFound if not exists.
func (s *LeagueStore) GetByID(_ context.Context, leagueID string) (*domain.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.data[leagueID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return l.Clone(), nil
}

// GetWithWaivers retrieves all leagues with waiver rules, ordered by id.
func (s *LeagueStore) GetWithWaivers(_ context.Context) ([]*domain.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.League
	for _, l := range s.data {
		if l.Rules != nil {
			result = append(result, l.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// AcquireRunLease takes the run lease unless another holder owns an unexpired one.
func (s *LeagueStore) AcquireRunLease(_ context.Context, leagueID, holder string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[leagueID]; !ok {
		return false, storage.ErrNotFound
	}
	if cur, held := s.leases[leagueID]; held && cur.holder != holder && now.Before(cur.expiresAt) {
		return false, nil
	}

	s.leases[leagueID] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseRunLease drops the lease if holder still owns it.
func (s *LeagueStore) ReleaseRunLease(_ context.Context, leagueID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, held := s.leases[leagueID]; held && cur.holder == holder {
		delete(s.leases, leagueID)
	}
	return nil
}

// MarkProcessed records the league's latest resolution run.
func (s *LeagueStore) MarkProcessed(_ context.Context, leagueID string, at time.Time) error {
	return s.update(leagueID, func(l *domain.League) { l.LastProcessedAt = at })
}

// MarkReranked records the league's latest priority re-rank.
func (s *LeagueStore) MarkReranked(_ context.Context, leagueID string, at time.Time) error {
	return s.update(leagueID, func(l *domain.League) { l.LastRerankedAt = at })
}

func (s *LeagueStore) update(leagueID string, fn func(*domain.League)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.data[leagueID]
	if !ok {
		return storage.ErrNotFound
	}
	fn(l)
	return nil
}

// Verify interface compliance at compile time.
var _ storage.LeagueStore = (*LeagueStore)(nil)
