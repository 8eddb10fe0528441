package memory

import (
	"context"
	"sort"
	"sync"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// TeamStore is an in-memory implementation of storage.TeamStore and
// storage.RosterService.
type TeamStore struct {
	mu      sync.RWMutex
	teams   map[string]*domain.Team                 // keyed by team_id
	rosters map[string]map[string]string            // league_id -> player_id -> team_id
	slots   map[string]map[string]domain.RosterSlot // team_id -> player_id -> slot
}

// NewTeamStore creates a new in-memory team store.
func NewTeamStore() *TeamStore {
	return &TeamStore{
		teams:   make(map[string]*domain.Team),
		rosters: make(map[string]map[string]string),
		slots:   make(map[string]map[string]domain.RosterSlot),
	}
}

// PutTeam creates or replaces a team and seeds its roster. RosterSize is
// derived from players; FAABSpent is kept consistent with FAABBudget.
func (s *TeamStore) PutTeam(_ context.Context, t *domain.Team, players ...string) error {
	if t == nil || t.ID == "" || t.LeagueID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	league := s.rosters[t.LeagueID]
	if league == nil {
		league = make(map[string]string)
		s.rosters[t.LeagueID] = league
	}
	for _, p := range players {
		if owner, taken := league[p]; taken && owner != t.ID {
			return storage.ErrDuplicateKey
		}
	}

	teamCopy := *t
	if teamCopy.FAABBudget == 0 {
		teamCopy.FAABBudget = teamCopy.FAABRemaining + teamCopy.FAABSpent
	}
	teamCopy.FAABSpent = teamCopy.FAABBudget - teamCopy.FAABRemaining
	s.teams[t.ID] = &teamCopy

	if s.slots[t.ID] == nil {
		s.slots[t.ID] = make(map[string]domain.RosterSlot)
	}
	for _, p := range players {
		league[p] = t.ID
		s.slots[t.ID][p] = domain.RosterSlotBench
	}
	s.teams[t.ID].RosterSize = len(s.slots[t.ID])
	return nil
}

// Roster returns the team's rostered players sorted by id.
func (s *TeamStore) Roster(_ context.Context, teamID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, storage.ErrNotFound
	}
	players := make([]string, 0, len(s.slots[teamID]))
	for p := range s.slots[teamID] {
		players = append(players, p)
	}
	sort.Strings(players)
	return players, nil
}

// GetByID retrieves a team. Returns ErrNotFound if not exists.
func (s *TeamStore) GetByID(_ context.Context, teamID string) (*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[teamID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	teamCopy := *t
	return &teamCopy, nil
}

// GetByLeague retrieves all teams in a league ordered by waiver priority.
func (s *TeamStore) GetByLeague(_ context.Context, leagueID string) ([]*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Team
	for _, t := range s.teams {
		if t.LeagueID == leagueID {
			teamCopy := *t
			result = append(result, &teamCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].WaiverPriority != result[j].WaiverPriority {
			return result[i].WaiverPriority < result[j].WaiverPriority
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// IsFreeAgent reports whether no team in the league rosters playerID.
func (s *TeamStore) IsFreeAgent(_ context.Context, leagueID, playerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, taken := s.rosters[leagueID][playerID]
	return !taken, nil
}

// HasPlayer reports whether the team rosters playerID.
func (s *TeamStore) HasPlayer(_ context.Context, teamID, playerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return false, storage.ErrNotFound
	}
	_, ok := s.slots[teamID][playerID]
	return ok, nil
}

// AddPlayer puts playerID on the team's bench.
func (s *TeamStore) AddPlayer(_ context.Context, teamID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return storage.ErrNotFound
	}
	league := s.rosters[t.LeagueID]
	if _, taken := league[playerID]; taken {
		return storage.ErrDuplicateKey
	}
	if t.RosterSize >= t.RosterMax {
		return storage.ErrRosterFull
	}

	league[playerID] = teamID
	s.slots[teamID][playerID] = domain.RosterSlotBench
	t.RosterSize++
	return nil
}

// DropPlayer removes playerID from the team.
func (s *TeamStore) DropPlayer(_ context.Context, teamID, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.slots[teamID][playerID]; !ok {
		return storage.ErrNotFound
	}

	delete(s.slots[teamID], playerID)
	delete(s.rosters[t.LeagueID], playerID)
	t.RosterSize--
	return nil
}

// DeductBudget moves amount from remaining to spent.
func (s *TeamStore) DeductBudget(_ context.Context, teamID string, amount int64) error {
	if amount < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return storage.ErrNotFound
	}
	if t.FAABRemaining < amount {
		return storage.ErrInsufficientBudget
	}

	t.FAABRemaining -= amount
	t.FAABSpent += amount
	return nil
}

// SetPriority sets the team's waiver priority rank.
func (s *TeamStore) SetPriority(_ context.Context, teamID string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return storage.ErrNotFound
	}
	t.WaiverPriority = rank
	return nil
}

// SetRecord replaces the team's season record.
func (s *TeamStore) SetRecord(_ context.Context, teamID string, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return storage.ErrNotFound
	}
	t.Record = rec
	return nil
}

// Verify interface compliance at compile time.
var (
	_ storage.TeamStore     = (*TeamStore)(nil)
	_ storage.RosterService = (*TeamStore)(nil)
)
