package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// ClaimStore implements storage.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *Pool
}

// NewClaimStore creates a new ClaimStore.
func NewClaimStore(pool *Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

const claimColumns = `
	claim_id, league_id, team_id, season, week,
	kind, add_player_id, drop_player_id, bid_amount, priority_at_submission,
	submitted_at, expires_at, status, failure_reason, cancel_reason,
	run_id, winning_bid, competing_claims, processing_order, processed_at,
	updated_at`

// Insert adds a new PENDING claim. The partial unique index on
// (team_id, add_player_id) WHERE status = 'PENDING' surfaces as ErrDuplicateKey.
func (s *ClaimStore) Insert(ctx context.Context, c *domain.Claim) (err error) {
	if c == nil || c.ID == "" || !c.Kind.IsValid() || !c.IsPending() {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("claim_insert", start, err) }()

	query := `
		INSERT INTO waiver_claims (
			claim_id, league_id, team_id, season, week,
			kind, add_player_id, drop_player_id, bid_amount, priority_at_submission,
			submitted_at, expires_at, status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.pool.Exec(ctx, query,
		c.ID,
		c.LeagueID,
		c.TeamID,
		c.Season,
		c.Week,
		string(c.Kind),
		c.AddPlayerID,
		c.DropPlayerID,
		c.BidAmount,
		c.PriorityAtSubmission,
		c.SubmittedAt,
		c.ExpiresAt,
		string(c.Status),
		c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapErr("insert claim", err)
	}
	return nil
}

// GetByID retrieves a claim by its ID. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByID(ctx context.Context, claimID string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM waiver_claims WHERE claim_id = $1`

	c, err := scanClaim(s.pool.QueryRow(ctx, query, claimID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get claim by id", err)
	}
	return c, nil
}

// GetPendingByLeague retrieves a league's PENDING claims ordered by submission.
func (s *ClaimStore) GetPendingByLeague(ctx context.Context, leagueID string) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM waiver_claims
		WHERE league_id = $1 AND status = 'PENDING'
		ORDER BY submitted_at ASC, claim_id ASC`

	return s.query(ctx, "get pending claims by league", query, leagueID)
}

// GetPendingByTeam retrieves a team's PENDING claims ordered by submission.
func (s *ClaimStore) GetPendingByTeam(ctx context.Context, teamID string) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM waiver_claims
		WHERE team_id = $1 AND status = 'PENDING'
		ORDER BY submitted_at ASC, claim_id ASC`

	return s.query(ctx, "get pending claims by team", query, teamID)
}

// GetByLeagueWeek retrieves every claim of a league for one waiver period.
func (s *ClaimStore) GetByLeagueWeek(ctx context.Context, leagueID string, season, week int) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM waiver_claims
		WHERE league_id = $1 AND season = $2 AND week = $3
		ORDER BY submitted_at ASC, claim_id ASC`

	return s.query(ctx, "get claims by league week", query, leagueID, season, week)
}

// GetExpiredPending retrieves PENDING claims with expires_at < before.
func (s *ClaimStore) GetExpiredPending(ctx context.Context, before time.Time) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM waiver_claims
		WHERE status = 'PENDING' AND expires_at < $1
		ORDER BY league_id ASC, submitted_at ASC, claim_id ASC`

	return s.query(ctx, "get expired pending claims", query, before)
}

// HasPendingForPlayer reports whether the team has a PENDING claim adding playerID.
func (s *ClaimStore) HasPendingForPlayer(ctx context.Context, teamID, playerID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM waiver_claims
			WHERE team_id = $1 AND add_player_id = $2 AND status = 'PENDING'
		)
	`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, teamID, playerID).Scan(&exists); err != nil {
		return false, wrapErr("check pending claim", err)
	}
	return exists, nil
}

// Finalize writes the claim's terminal state. The UPDATE is conditional on
// the stored row still being PENDING.
func (s *ClaimStore) Finalize(ctx context.Context, c *domain.Claim) (err error) {
	if c == nil || !c.Status.IsTerminal() {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("claim_finalize", start, err) }()

	var (
		runID           *string
		winningBid      *int64
		competingClaims *int
		processingOrder *int
		processedAt     *time.Time
	)
	if r := c.Resolution; r != nil {
		runID = &r.RunID
		winningBid = &r.WinningBid
		competingClaims = &r.CompetingClaims
		processingOrder = &r.ProcessingOrder
		processedAt = nullTime(r.ProcessedAt)
	}

	query := `
		UPDATE waiver_claims SET
			status = $2,
			failure_reason = $3,
			cancel_reason = $4,
			run_id = $5,
			winning_bid = $6,
			competing_claims = $7,
			processing_order = $8,
			processed_at = $9,
			updated_at = $10
		WHERE claim_id = $1 AND status = 'PENDING'
	`

	tag, err := s.pool.Exec(ctx, query,
		c.ID,
		string(c.Status),
		string(c.FailureReason),
		string(c.CancelReason),
		runID,
		winningBid,
		competingClaims,
		processingOrder,
		processedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("finalize claim %s: %w", c.ID, storage.ErrInvalidInput)
		}
		return wrapErr("finalize claim", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing claim from one already decided.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM waiver_claims WHERE claim_id = $1)`, c.ID).Scan(&exists); err != nil {
		return wrapErr("finalize claim", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrNotPending
}

func (s *ClaimStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.Claim, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return claims, nil
}

// scanClaim scans a single row into a Claim.
func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		c                                domain.Claim
		kind, status, failReason, cancel string
		runID                            *string
		winningBid                       *int64
		competingClaims, processingOrder *int
		processedAt                      *time.Time
	)

	err := row.Scan(
		&c.ID,
		&c.LeagueID,
		&c.TeamID,
		&c.Season,
		&c.Week,
		&kind,
		&c.AddPlayerID,
		&c.DropPlayerID,
		&c.BidAmount,
		&c.PriorityAtSubmission,
		&c.SubmittedAt,
		&c.ExpiresAt,
		&status,
		&failReason,
		&cancel,
		&runID,
		&winningBid,
		&competingClaims,
		&processingOrder,
		&processedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = domain.ClaimKind(kind)
	c.Status = domain.ClaimStatus(status)
	c.FailureReason = domain.FailureReason(failReason)
	c.CancelReason = domain.FailureReason(cancel)
	c.SubmittedAt = c.SubmittedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	if runID != nil {
		c.Resolution = &domain.Resolution{
			RunID:       *runID,
			ProcessedAt: timeOrZero(processedAt),
		}
		if winningBid != nil {
			c.Resolution.WinningBid = *winningBid
		}
		if competingClaims != nil {
			c.Resolution.CompetingClaims = *competingClaims
		}
		if processingOrder != nil {
			c.Resolution.ProcessingOrder = *processingOrder
		}
	}
	return &c, nil
}

// scanClaims scans multiple rows into a slice of Claim.
func scanClaims(rows pgx.Rows) ([]*domain.Claim, error) {
	var claims []*domain.Claim

	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}
		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}

	return claims, nil
}
