package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// ClaimStore is an in-memory implementation of storage.ClaimStore.
type ClaimStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Claim // keyed by claim id
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		data: make(map[string]*domain.Claim),
	}
}

// Insert adds a new claim. Returns ErrDuplicateKey if the id exists or the
// team already has a PENDING claim for the same add player.
func (s *ClaimStore) Insert(_ context.Context, c *domain.Claim) error {
	if c == nil || c.ID == "" || c.TeamID == "" || c.LeagueID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if c.IsPending() && c.AddPlayerID != "" && s.hasPendingLocked(c.TeamID, c.AddPlayerID) {
		return storage.ErrDuplicateKey
	}

	s.data[c.ID] = c.Clone()
	return nil
}

// GetByID retrieves a claim by its ID. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByID(_ context.Context, claimID string) (*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[claimID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// GetPendingByLeague retrieves PENDING claims for a league.
func (s *ClaimStore) GetPendingByLeague(_ context.Context, leagueID string) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool {
		return c.LeagueID == leagueID && c.IsPending()
	}), nil
}

// GetPendingByTeam retrieves PENDING claims for a team.
func (s *ClaimStore) GetPendingByTeam(_ context.Context, teamID string) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool {
		return c.TeamID == teamID && c.IsPending()
	}), nil
}

// GetByLeagueWeek retrieves all claims of a league for one waiver period.
func (s *ClaimStore) GetByLeagueWeek(_ context.Context, leagueID string, season, week int) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool {
		return c.LeagueID == leagueID && c.Season == season && c.Week == week
	}), nil
}

// GetExpiredPending retrieves PENDING claims that expired before the given time.
func (s *ClaimStore) GetExpiredPending(_ context.Context, before time.Time) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool {
		return c.IsPending() && c.ExpiresAt.Before(before)
	}), nil
}

// HasPendingForPlayer reports whether the team has a PENDING claim adding playerID.
func (s *ClaimStore) HasPendingForPlayer(_ context.Context, teamID, playerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPendingLocked(teamID, playerID), nil
}

// Finalize writes the claim's terminal state if the stored claim is still PENDING.
func (s *ClaimStore) Finalize(_ context.Context, c *domain.Claim) error {
	if c == nil || !c.Status.IsTerminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[c.ID]
	if !exists {
		return storage.ErrNotFound
	}
	if !stored.IsPending() {
		return storage.ErrNotPending
	}

	s.data[c.ID] = c.Clone()
	return nil
}

func (s *ClaimStore) hasPendingLocked(teamID, playerID string) bool {
	for _, c := range s.data {
		if c.TeamID == teamID && c.AddPlayerID == playerID && c.IsPending() {
			return true
		}
	}
	return false
}

func (s *ClaimStore) filter(keep func(*domain.Claim) bool) []*domain.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Claim
	for _, c := range s.data {
		if keep(c) {
			result = append(result, c.Clone())
		}
	}

	// Sort by submitted_at ASC, claim_id ASC
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[j].SubmittedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// Verify interface compliance at compile time.
var _ storage.ClaimStore = (*ClaimStore)(nil)
