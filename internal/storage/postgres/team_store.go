package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// TeamStore implements storage.TeamStore and storage.RosterService using
// PostgreSQL. Rosters live in roster_entries, whose (league_id, player_id)
// primary key keeps a player on at most one team per league.
type TeamStore struct {
	pool *Pool
}

// NewTeamStore creates a new TeamStore.
func NewTeamStore(pool *Pool) *TeamStore {
	return &TeamStore{pool: pool}
}

// Compile-time interface check.
var (
	_ storage.TeamStore     = (*TeamStore)(nil)
	_ storage.RosterService = (*TeamStore)(nil)
)

const teamColumns = `
	t.team_id, t.league_id, t.name, t.owner_id, t.roster_max,
	t.faab_budget, t.faab_remaining, t.faab_spent, t.waiver_priority,
	t.wins, t.losses, t.ties, t.points_for,
	(SELECT COUNT(*) FROM roster_entries r WHERE r.team_id = t.team_id)`

// Upsert creates or replaces a team and adds players to its bench.
// Returns ErrDuplicateKey if a player is rostered by another team.
func (s *TeamStore) Upsert(ctx context.Context, t *domain.Team, players ...string) error {
	if t == nil || t.ID == "" || t.LeagueID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr("begin upsert team", err)
	}
	defer tx.Rollback(ctx)

	budget := t.FAABBudget
	if budget == 0 {
		budget = t.FAABRemaining + t.FAABSpent
	}

	query := `
		INSERT INTO teams (
			team_id, league_id, name, owner_id, roster_max,
			faab_budget, faab_remaining, faab_spent, waiver_priority,
			wins, losses, ties, points_for
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (team_id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_id = EXCLUDED.owner_id,
			roster_max = EXCLUDED.roster_max,
			faab_budget = EXCLUDED.faab_budget,
			faab_remaining = EXCLUDED.faab_remaining,
			faab_spent = EXCLUDED.faab_spent,
			waiver_priority = EXCLUDED.waiver_priority,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			ties = EXCLUDED.ties,
			points_for = EXCLUDED.points_for
	`
	_, err = tx.Exec(ctx, query,
		t.ID, t.LeagueID, t.Name, t.OwnerID, t.RosterMax,
		budget, t.FAABRemaining, budget-t.FAABRemaining, t.WaiverPriority,
		t.Record.Wins, t.Record.Losses, t.Record.Ties, t.Record.PointsFor,
	)
	if err != nil {
		return wrapErr("upsert team", err)
	}

	for _, p := range players {
		_, err := tx.Exec(ctx, `
			INSERT INTO roster_entries (league_id, player_id, team_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (league_id, player_id) DO UPDATE SET team_id = EXCLUDED.team_id
			WHERE roster_entries.team_id = EXCLUDED.team_id
		`, t.LeagueID, p, t.ID)
		if err != nil {
			return wrapErr("seed roster", err)
		}
	}

	// A conflicting row owned by another team is left untouched; detect it.
	var foreign int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM roster_entries
		WHERE league_id = $1 AND player_id = ANY($2) AND team_id <> $3
	`, t.LeagueID, players, t.ID).Scan(&foreign)
	if err != nil {
		return wrapErr("seed roster", err)
	}
	if foreign > 0 {
		return storage.ErrDuplicateKey
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit upsert team", err)
	}
	return nil
}

// GetByID retrieves a team with its current roster size. Returns ErrNotFound if not exists.
func (s *TeamStore) GetByID(ctx context.Context, teamID string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams t WHERE t.team_id = $1`

	t, err := scanTeam(s.pool.QueryRow(ctx, query, teamID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr("get team by id", err)
	}
	return t, nil
}

// GetByLeague retrieves all teams in a league ordered by waiver priority.
func (s *TeamStore) GetByLeague(ctx context.Context, leagueID string) ([]*domain.Team, error) {
	query := `SELECT ` + teamColumns + `
		FROM teams t
		WHERE t.league_id = $1
		ORDER BY t.waiver_priority ASC, t.team_id ASC`

	rows, err := s.pool.Query(ctx, query, leagueID)
	if err != nil {
		return nil, wrapErr("get teams by league", err)
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team row: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate team rows", err)
	}
	return teams, nil
}

// Roster returns the team's rostered players sorted by id.
func (s *TeamStore) Roster(ctx context.Context, teamID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT player_id FROM roster_entries WHERE team_id = $1 ORDER BY player_id`, teamID)
	if err != nil {
		return nil, wrapErr("get roster", err)
	}
	defer rows.Close()

	players, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("get roster", err)
	}
	return players, nil
}

// IsFreeAgent reports whether no team in the league rosters playerID.
func (s *TeamStore) IsFreeAgent(ctx context.Context, leagueID, playerID string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM roster_entries WHERE league_id = $1 AND player_id = $2)
	`, leagueID, playerID).Scan(&taken)
	if err != nil {
		return false, wrapErr("check free agent", err)
	}
	return !taken, nil
}

// HasPlayer reports whether the team rosters playerID.
func (s *TeamStore) HasPlayer(ctx context.Context, teamID, playerID string) (bool, error) {
	var has bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM roster_entries WHERE team_id = $1 AND player_id = $2)
	`, teamID, playerID).Scan(&has)
	if err != nil {
		return false, wrapErr("check roster", err)
	}
	return has, nil
}

// AddPlayer puts playerID on the team's bench if a slot is open.
// Returns ErrDuplicateKey if the player is rostered in the league,
// ErrRosterFull if the team is at roster_max.
func (s *TeamStore) AddPlayer(ctx context.Context, teamID, playerID string) (err error) {
	start := time.Now()
	defer func() { observe("roster_add", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO roster_entries (league_id, player_id, team_id, slot)
		SELECT t.league_id, $2, t.team_id, 'BENCH'
		FROM teams t
		WHERE t.team_id = $1
		  AND (SELECT COUNT(*) FROM roster_entries r WHERE r.team_id = t.team_id) < t.roster_max
	`, teamID, playerID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapErr("add player", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if err := s.mustExist(ctx, teamID); err != nil {
		return err
	}
	return storage.ErrRosterFull
}

// DropPlayer removes playerID from the team. Returns ErrNotFound if not rostered.
func (s *TeamStore) DropPlayer(ctx context.Context, teamID, playerID string) (err error) {
	start := time.Now()
	defer func() { observe("roster_drop", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM roster_entries WHERE team_id = $1 AND player_id = $2`, teamID, playerID)
	if err != nil {
		return wrapErr("drop player", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeductBudget moves amount from faab_remaining to faab_spent in one
// conditional UPDATE. Returns ErrInsufficientBudget if remaining < amount.
func (s *TeamStore) DeductBudget(ctx context.Context, teamID string, amount int64) (err error) {
	if amount < 0 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("budget_deduct", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE teams
		SET faab_remaining = faab_remaining - $2, faab_spent = faab_spent + $2
		WHERE team_id = $1 AND faab_remaining >= $2
	`, teamID, amount)
	if err != nil {
		return wrapErr("deduct budget", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if err := s.mustExist(ctx, teamID); err != nil {
		return err
	}
	return storage.ErrInsufficientBudget
}

// SetPriority sets the team's waiver priority rank.
func (s *TeamStore) SetPriority(ctx context.Context, teamID string, rank int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE teams SET waiver_priority = $2 WHERE team_id = $1`, teamID, rank)
	if err != nil {
		return wrapErr("set priority", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetRecord replaces the team's season record.
func (s *TeamStore) SetRecord(ctx context.Context, teamID string, rec domain.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE teams SET wins = $2, losses = $3, ties = $4, points_for = $5 WHERE team_id = $1
	`, teamID, rec.Wins, rec.Losses, rec.Ties, rec.PointsFor)
	if err != nil {
		return wrapErr("set record", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *TeamStore) mustExist(ctx context.Context, teamID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE team_id = $1)`, teamID).Scan(&exists)
	if err != nil {
		return wrapErr("check team", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return nil
}

// scanTeam scans a single row into a Team.
func scanTeam(row pgx.Row) (*domain.Team, error) {
	var (
		t          domain.Team
		rosterSize int64
	)

	err := row.Scan(
		&t.ID,
		&t.LeagueID,
		&t.Name,
		&t.OwnerID,
		&t.RosterMax,
		&t.FAABBudget,
		&t.FAABRemaining,
		&t.FAABSpent,
		&t.WaiverPriority,
		&t.Record.Wins,
		&t.Record.Losses,
		&t.Record.Ties,
		&t.Record.PointsFor,
		&rosterSize,
	)
	if err != nil {
		return nil, err
	}

	t.RosterSize = int(rosterSize)
	return &t, nil
}
