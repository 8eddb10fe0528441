package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// LeagueStore implements storage.LeagueStore using PostgreSQL.
type LeagueStore struct {
	pool *Pool
}

// NewLeagueStore creates a new LeagueStore.
func NewLeagueStore(pool *Pool) *LeagueStore {
	return &LeagueStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LeagueStore = (*LeagueStore)(nil)

const leagueColumns = `
	league_id, name, season, current_week,
	waiver_mode, min_bid, faab_budget, process_day, process_hour, process_minute,
	timezone, rerank_lead_seconds, last_processed_at, last_reranked_at`

// Upsert creates or replaces a league. Lease columns are left untouched.
func (s *LeagueStore) Upsert(ctx context.Context, l *domain.League) error {
	if l == nil || l.ID == "" {
		return storage.ErrInvalidInput
	}

	var (
		mode                 *string
		minBid, budget, lead int64
		day, hour, minute    int
		tz                   = "UTC"
	)
	if r := l.Rules; r != nil {
		m := string(r.Mode)
		mode = &m
		minBid, budget = r.MinBid, r.FAABBudget
		day, hour, minute = int(r.ProcessDay), r.ProcessHour, r.ProcessMinute
		lead = int64(r.RerankLead / time.Second)
		if r.Timezone != "" {
			tz = r.Timezone
		}
	}

	query := `
		INSERT INTO leagues (
			league_id, name, season, current_week,
			waiver_mode, min_bid, faab_budget, process_day, process_hour, process_minute,
			timezone, rerank_lead_seconds, last_processed_at, last_reranked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (league_id) DO UPDATE SET
			name = EXCLUDED.name,
			season = EXCLUDED.season,
			current_week = EXCLUDED.current_week,
			waiver_mode = EXCLUDED.waiver_mode,
			min_bid = EXCLUDED.min_bid,
			faab_budget = EXCLUDED.faab_budget,
			process_day = EXCLUDED.process_day,
			process_hour = EXCLUDED.process_hour,
			process_minute = EXCLUDED.process_minute,
			timezone = EXCLUDED.timezone,
			rerank_lead_seconds = EXCLUDED.rerank_lead_seconds
	`
	_, err := s.pool.Exec(ctx, query,
		l.ID, l.Name, l.Season, l.CurrentWeek,
		mode, minBid, budget, day, hour, minute,
		tz, lead, nullTime(l.LastProcessedAt), nullTime(l.LastRerankedAt),
	)
	if err != nil {
		return wrapErr("upsert league", err)
	}
	return nil
}

// GetByID retrieves a league. Returns ErrNotFound if not exists.
func (s *LeagueStore) GetByID(ctx context.Context, leagueID string) (*domain.League, error) {
	query := `SELECT ` + leagueColumns + ` FROM leagues WHERE league_id = $1`

	l, err := scanLeague(s.pool.QueryRow(ctx, query, leagueID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get league by id", err)
	}
	return l, nil
}

// GetWithWaivers retrieves all leagues with waiver rules, ordered by id.
func (s *LeagueStore) GetWithWaivers(ctx context.Context) ([]*domain.League, error) {
	query := `SELECT ` + leagueColumns + `
		FROM leagues
		WHERE waiver_mode IS NOT NULL
		ORDER BY league_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, wrapErr("get leagues with waivers", err)
	}
	defer rows.Close()

	var leagues []*domain.League
	for rows.Next() {
		l, err := scanLeague(rows)
		if err != nil {
			return nil, wrapErr("scan league row", err)
		}
		leagues = append(leagues, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate league rows", err)
	}
	return leagues, nil
}

// AcquireRunLease takes the run lease with a conditional UPDATE: it succeeds
// when the lease is free, expired, or already held by holder.
func (s *LeagueStore) AcquireRunLease(ctx context.Context, leagueID, holder string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leagues
		SET lease_holder = $2, lease_expires_at = $4
		WHERE league_id = $1
		  AND (lease_holder IS NULL OR lease_holder = $2 OR lease_expires_at <= $3)
	`, leagueID, holder, now, now.Add(ttl))
	if err != nil {
		return false, wrapErr("acquire run lease", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leagues WHERE league_id = $1)`, leagueID).Scan(&exists); err != nil {
		return false, wrapErr("acquire run lease", err)
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// ReleaseRunLease drops the lease if holder still owns it.
func (s *LeagueStore) ReleaseRunLease(ctx context.Context, leagueID, holder string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE leagues SET lease_holder = NULL, lease_expires_at = NULL
		WHERE league_id = $1 AND lease_holder = $2
	`, leagueID, holder)
	if err != nil {
		return wrapErr("release run lease", err)
	}
	return nil
}

// MarkProcessed records the league's latest resolution run.
func (s *LeagueStore) MarkProcessed(ctx context.Context, leagueID string, at time.Time) error {
	return s.touch(ctx, "mark processed", `UPDATE leagues SET last_processed_at = $2 WHERE league_id = $1`, leagueID, at)
}

// MarkReranked records the league's latest priority re-rank.
func (s *LeagueStore) MarkReranked(ctx context.Context, leagueID string, at time.Time) error {
	return s.touch(ctx, "mark reranked", `UPDATE leagues SET last_reranked_at = $2 WHERE league_id = $1`, leagueID, at)
}

func (s *LeagueStore) touch(ctx context.Context, op, query, leagueID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, query, leagueID, at)
	if err != nil {
		return wrapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanLeague scans a single row into a League.
func scanLeague(row pgx.Row) (*domain.League, error) {
	var (
		l                       domain.League
		mode                    *string
		minBid, budget, lead    int64
		day, hour, minute       int16
		tz                      string
		processedAt, rerankedAt *time.Time
	)

	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Season,
		&l.CurrentWeek,
		&mode,
		&minBid,
		&budget,
		&day,
		&hour,
		&minute,
		&tz,
		&lead,
		&processedAt,
		&rerankedAt,
	)
	if err != nil {
		return nil, err
	}

	if mode != nil {
		l.Rules = &domain.WaiverRules{
			Mode:          domain.WaiverMode(*mode),
			MinBid:        minBid,
			FAABBudget:    budget,
			ProcessDay:    time.Weekday(day),
			ProcessHour:   int(hour),
			ProcessMinute: int(minute),
			Timezone:      tz,
			RerankLead:    time.Duration(lead) * time.Second,
		}
	}
	l.LastProcessedAt = timeOrZero(processedAt)
	l.LastRerankedAt = timeOrZero(rerankedAt)
	return &l, nil
}
