// Package seed loads league, team and roster fixtures from YAML so the worker
// can run against in-memory stores, and so a fresh database can be populated.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"waiver-wire/internal/domain"
)

// Fixture is the top-level YAML document.
type Fixture struct {
	Leagues []League `yaml:"leagues"`
}

// League is one league with its waiver rules and teams.
type League struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Season      int    `yaml:"season"`
	CurrentWeek int    `yaml:"current_week"`
	Waivers     *Rules `yaml:"waivers"`
	Teams       []Team `yaml:"teams"`
}

// Rules mirrors domain.WaiverRules with YAML-friendly types.
type Rules struct {
	Mode          string        `yaml:"mode"`
	MinBid        int64         `yaml:"min_bid"`
	FAABBudget    int64         `yaml:"faab_budget"`
	ProcessDay    string        `yaml:"process_day"`
	ProcessHour   int           `yaml:"process_hour"`
	ProcessMinute int           `yaml:"process_minute"`
	Timezone      string        `yaml:"timezone"`
	RerankLead    time.Duration `yaml:"rerank_lead"`
}

// Team is one team with its current roster.
type Team struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	OwnerID        string   `yaml:"owner_id"`
	RosterMax      int      `yaml:"roster_max"`
	FAABRemaining  *int64   `yaml:"faab_remaining"` // defaults to the league budget
	WaiverPriority int      `yaml:"waiver_priority"`
	Record         Record   `yaml:"record"`
	Roster         []string `yaml:"roster"`
}

// Record is a team's season record.
type Record struct {
	Wins      int     `yaml:"wins"`
	Losses    int     `yaml:"losses"`
	Ties      int     `yaml:"ties"`
	PointsFor float64 `yaml:"points_for"`
}

// Target receives the decoded fixture. Both the memory and the postgres
// stores provide matching methods.
type Target struct {
	PutLeague func(ctx context.Context, l *domain.League) error
	PutTeam   func(ctx context.Context, t *domain.Team, players ...string) error
}

// LoadFile reads a fixture from path.
func LoadFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a fixture.
func Load(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx Fixture
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixture) validate() error {
	leagues := make(map[string]bool)
	teams := make(map[string]bool)
	for _, l := range fx.Leagues {
		if l.ID == "" {
			return errors.New("seed: league without id")
		}
		if leagues[l.ID] {
			return fmt.Errorf("seed: duplicate league %s", l.ID)
		}
		leagues[l.ID] = true

		if l.Waivers != nil {
			if _, err := l.Waivers.rules(); err != nil {
				return fmt.Errorf("seed: league %s: %w", l.ID, err)
			}
		}

		rostered := make(map[string]string)
		for _, t := range l.Teams {
			if t.ID == "" {
				return fmt.Errorf("seed: league %s has a team without id", l.ID)
			}
			if teams[t.ID] {
				return fmt.Errorf("seed: duplicate team %s", t.ID)
			}
			teams[t.ID] = true
			if t.RosterMax > 0 && len(t.Roster) > t.RosterMax {
				return fmt.Errorf("seed: team %s rosters %d players, max %d", t.ID, len(t.Roster), t.RosterMax)
			}
			for _, p := range t.Roster {
				if owner, ok := rostered[p]; ok {
					return fmt.Errorf("seed: player %s on both %s and %s", p, owner, t.ID)
				}
				rostered[p] = t.ID
			}
		}
	}
	return nil
}

// Apply writes every league and team to target, leagues first.
func (fx *Fixture) Apply(ctx context.Context, target Target) error {
	for _, l := range fx.Leagues {
		league, err := l.domain()
		if err != nil {
			return err
		}
		if err := target.PutLeague(ctx, league); err != nil {
			return fmt.Errorf("put league %s: %w", l.ID, err)
		}

		for _, t := range l.Teams {
			team := t.domain(league)
			if err := target.PutTeam(ctx, team, t.Roster...); err != nil {
				return fmt.Errorf("put team %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// Teams returns the number of teams across all leagues.
func (fx *Fixture) Teams() int {
	n := 0
	for _, l := range fx.Leagues {
		n += len(l.Teams)
	}
	return n
}

func (l League) domain() (*domain.League, error) {
	out := &domain.League{
		ID:          l.ID,
		Name:        l.Name,
		Season:      l.Season,
		CurrentWeek: l.CurrentWeek,
	}
	if l.Waivers != nil {
		rules, err := l.Waivers.rules()
		if err != nil {
			return nil, fmt.Errorf("league %s: %w", l.ID, err)
		}
		out.Rules = rules
	}
	return out, nil
}

func (r Rules) rules() (*domain.WaiverRules, error) {
	mode := domain.WaiverMode(strings.ToUpper(r.Mode))
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown waiver mode %q", r.Mode)
	}
	day, err := parseWeekday(r.ProcessDay)
	if err != nil {
		return nil, err
	}
	if r.ProcessHour < 0 || r.ProcessHour > 23 || r.ProcessMinute < 0 || r.ProcessMinute > 59 {
		return nil, fmt.Errorf("invalid process time %02d:%02d", r.ProcessHour, r.ProcessMinute)
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}
	return &domain.WaiverRules{
		Mode:          mode,
		MinBid:        r.MinBid,
		FAABBudget:    r.FAABBudget,
		ProcessDay:    day,
		ProcessHour:   r.ProcessHour,
		ProcessMinute: r.ProcessMinute,
		Timezone:      r.Timezone,
		RerankLead:    r.RerankLead,
	}, nil
}

func (t Team) domain(league *domain.League) *domain.Team {
	var budget int64
	if league.Rules != nil {
		budget = league.Rules.FAABBudget
	}
	remaining := budget
	if t.FAABRemaining != nil {
		remaining = *t.FAABRemaining
	}
	return &domain.Team{
		ID:             t.ID,
		LeagueID:       league.ID,
		Name:           t.Name,
		OwnerID:        t.OwnerID,
		RosterSize:     len(t.Roster),
		RosterMax:      t.RosterMax,
		FAABBudget:     budget,
		FAABRemaining:  remaining,
		FAABSpent:      budget - remaining,
		WaiverPriority: t.WaiverPriority,
		Record: domain.Record{
			Wins:      t.Record.Wins,
			Losses:    t.Record.Losses,
			Ties:      t.Record.Ties,
			PointsFor: t.Record.PointsFor,
		},
	}
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown process day %q", s)
}
