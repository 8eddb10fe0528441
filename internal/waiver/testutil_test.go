package waiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/reporting"
	"waiver-wire/internal/scheduler"
	"waiver-wire/internal/storage"
	"waiver-wire/internal/storage/memory"
)

// Monday; the test leagues process on Wednesday 08:00 UTC.
var testStart = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

const testLeague = "L1"

type fixture struct {
	svc     *Service
	leagues *memory.LeagueStore
	teams   *flakyTeams
	claims  *memory.ClaimStore
	events  *memory.EventStore
	clock   *scheduler.FakeClock
	hook    *test.Hook
}

type teamSpec struct {
	id        string
	priority  int
	rosterMax int
	faab      int64
	players   []string
}

func newFixture(t *testing.T, mode domain.WaiverMode, teams ...teamSpec) *fixture {
	t.Helper()
	ctx := context.Background()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		leagues: memory.NewLeagueStore(),
		teams:   &flakyTeams{TeamStore: memory.NewTeamStore(), fail: make(map[string]error)},
		claims:  memory.NewClaimStore(),
		events:  memory.NewEventStore(),
		clock:   scheduler.NewFakeClock(testStart),
		hook:    hook,
	}

	require.NoError(t, f.leagues.Put(ctx, &domain.League{
		ID:          testLeague,
		Name:        "Test League",
		Season:      2026,
		CurrentWeek: 7,
		Rules: &domain.WaiverRules{
			Mode:        mode,
			MinBid:      1,
			FAABBudget:  100,
			ProcessDay:  time.Wednesday,
			ProcessHour: 8,
			RerankLead:  time.Hour,
		},
	}))

	for _, ts := range teams {
		require.NoError(t, f.teams.PutTeam(ctx, &domain.Team{
			ID:             ts.id,
			LeagueID:       testLeague,
			Name:           "Team " + ts.id,
			RosterMax:      ts.rosterMax,
			FAABBudget:     100,
			FAABRemaining:  ts.faab,
			WaiverPriority: ts.priority,
		}, ts.players...))
	}

	rep := reporting.NewReporter(reporting.Options{Logger: logger, MaxElapsed: 10 * time.Millisecond, InitialInterval: time.Millisecond})
	rep.AddSink("memory", f.events)

	f.svc = New(Options{
		Leagues:    f.leagues,
		Teams:      f.teams,
		Roster:     f.teams,
		Claims:     f.claims,
		Reporter:   rep,
		Clock:      f.clock,
		Logger:     logger,
		InstanceID: "test",
	})
	return f
}

// submit files a claim and advances the clock a minute so submissions are
// strictly ordered.
func (f *fixture) submit(t *testing.T, req SubmitRequest) *domain.Claim {
	t.Helper()
	c, err := f.svc.SubmitClaim(context.Background(), req)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return c
}

func (f *fixture) claim(t *testing.T, id string) *domain.Claim {
	t.Helper()
	c, err := f.claims.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) team(t *testing.T, id string) *domain.Team {
	t.Helper()
	team, err := f.teams.GetByID(context.Background(), id)
	require.NoError(t, err)
	return team
}

func (f *fixture) roster(t *testing.T, id string) []string {
	t.Helper()
	players, err := f.teams.Roster(context.Background(), id)
	require.NoError(t, err)
	return players
}

func addClaim(team, player string, bid int64) SubmitRequest {
	return SubmitRequest{TeamID: team, Kind: domain.ClaimKindAdd, AddPlayerID: player, BidAmount: bid}
}

// flakyTeams fails GetByID for selected teams once armed, leaving
// submission-time lookups untouched.
type flakyTeams struct {
	*memory.TeamStore

	mu   sync.Mutex
	fail map[string]error
}

func (s *flakyTeams) failTeam(teamID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[teamID] = err
}

func (s *flakyTeams) GetByID(ctx context.Context, teamID string) (*domain.Team, error) {
	s.mu.Lock()
	err := s.fail[teamID]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.TeamStore.GetByID(ctx, teamID)
}

// blockingReporter holds every Report call until unblock is closed.
type blockingReporter struct {
	entered chan struct{}
	unblock chan struct{}
}

func (r *blockingReporter) Report(ctx context.Context, _ *domain.WaiverRun) error {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	select {
	case <-r.unblock:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	errStoreDown = fmt.Errorf("dial tcp: %w", storage.ErrUnavailable)
	errCorrupt   = errors.New("corrupt team row")
)
