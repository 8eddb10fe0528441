package storage

import (
	"context"
	"time"

	"waiver-wire/internal/domain"
)

// ClaimStore provides access to waiver claims.
type ClaimStore interface {
	// Insert adds a new PENDING claim. Returns ErrDuplicateKey if the claim id
	// exists or the team already has a PENDING claim for the same add player.
	Insert(ctx context.Context, c *domain.Claim) error

	// GetByID retrieves a claim. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, claimID string) (*domain.Claim, error)

	// GetPendingByLeague retrieves PENDING claims for a league, ordered by
	// submitted_at ASC, claim_id ASC.
	GetPendingByLeague(ctx context.Context, leagueID string) ([]*domain.Claim, error)

	// GetPendingByTeam retrieves PENDING claims for a team, ordered by submitted_at ASC.
	GetPendingByTeam(ctx context.Context, teamID string) ([]*domain.Claim, error)

	// GetByLeagueWeek retrieves all claims of a league for one waiver period.
	GetByLeagueWeek(ctx context.Context, leagueID string, season, week int) ([]*domain.Claim, error)

	// GetExpiredPending retrieves PENDING claims with expires_at < before, across leagues.
	GetExpiredPending(ctx context.Context, before time.Time) ([]*domain.Claim, error)

	// HasPendingForPlayer reports whether the team has a PENDING claim adding playerID.
	HasPendingForPlayer(ctx context.Context, teamID, playerID string) (bool, error)

	// Finalize writes a terminal status, reason and resolution. The write only
	// applies while the stored claim is PENDING; otherwise ErrNotPending.
	Finalize(ctx context.Context, c *domain.Claim) error
}

// TeamStore provides read access to teams.
type TeamStore interface {
	// GetByID retrieves a team with its current roster size. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, teamID string) (*domain.Team, error)

	// GetByLeague retrieves all teams in a league, ordered by waiver_priority ASC.
	GetByLeague(ctx context.Context, leagueID string) ([]*domain.Team, error)
}

// RosterService owns roster and budget mutation primitives.
type RosterService interface {
	// IsFreeAgent reports whether no team in the league rosters playerID.
	IsFreeAgent(ctx context.Context, leagueID, playerID string) (bool, error)

	// HasPlayer reports whether the team rosters playerID.
	HasPlayer(ctx context.Context, teamID, playerID string) (bool, error)

	// AddPlayer puts playerID on the team's bench. Returns ErrDuplicateKey if
	// the player is rostered anywhere in the league, ErrRosterFull if no slot is open.
	AddPlayer(ctx context.Context, teamID, playerID string) error

	// DropPlayer removes playerID from the team. Returns ErrNotFound if not rostered.
	DropPlayer(ctx context.Context, teamID, playerID string) error

	// DeductBudget moves amount from faab_remaining to faab_spent.
	// Returns ErrInsufficientBudget if remaining < amount.
	DeductBudget(ctx context.Context, teamID string, amount int64) error

	// SetPriority sets the team's waiver priority rank.
	SetPriority(ctx context.Context, teamID string, rank int) error
}

// LeagueStore provides access to leagues and their run leases.
type LeagueStore interface {
	// GetByID retrieves a league. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, leagueID string) (*domain.League, error)

	// GetWithWaivers retrieves all leagues that have waiver rules configured.
	GetWithWaivers(ctx context.Context) ([]*domain.League, error)

	// AcquireRunLease atomically takes the league's run lease for holder until
	// now+ttl. Returns false if another holder owns an unexpired lease.
	AcquireRunLease(ctx context.Context, leagueID, holder string, now time.Time, ttl time.Duration) (bool, error)

	// ReleaseRunLease drops the lease if holder still owns it.
	ReleaseRunLease(ctx context.Context, leagueID, holder string) error

	// MarkProcessed records the time of the league's latest resolution run.
	MarkProcessed(ctx context.Context, leagueID string, at time.Time) error

	// MarkReranked records the time of the league's latest priority re-rank.
	MarkReranked(ctx context.Context, leagueID string, at time.Time) error
}

// EventStore persists emitted waiver events for history and analytics.
type EventStore interface {
	// Publish appends events. Re-publishing the same (run, claim, type) is idempotent.
	Publish(ctx context.Context, events []domain.WaiverEvent) error

	// GetByLeague retrieves a league's events with occurred_at >= since, ordered ASC.
	GetByLeague(ctx context.Context, leagueID string, since time.Time) ([]domain.WaiverEvent, error)
}
