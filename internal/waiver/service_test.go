package waiver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

func TestSubmitClaim_PersistsPendingClaim(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 3, rosterMax: 3, faab: 100, players: []string{"x1"}})

	c := f.submit(t, addClaim("X", "P", 20))

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, domain.ClaimStatusPending, c.Status)
	assert.Equal(t, testLeague, c.LeagueID)
	assert.Equal(t, 2026, c.Season)
	assert.Equal(t, 7, c.Week)
	assert.Equal(t, int64(20), c.BidAmount)
	assert.Equal(t, 3, c.PriorityAtSubmission)
	assert.Equal(t, testStart, c.SubmittedAt)
	assert.Equal(t, time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC), c.ExpiresAt)

	stored := f.claim(t, c.ID)
	assert.Equal(t, c, stored)

	pending, err := f.svc.ListPendingClaims(context.Background(), "X")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)
}

func TestSubmitClaim_PriorityLeagueIgnoresBid(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3, faab: 0})

	c := f.submit(t, addClaim("A", "P", 40))
	assert.Zero(t, c.BidAmount)
}

func TestSubmitClaim_DropNeedsNoBid(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100, players: []string{"x1"}})

	c := f.submit(t, SubmitRequest{TeamID: "X", Kind: domain.ClaimKindDrop, DropPlayerID: "x1", BidAmount: 30})
	assert.Zero(t, c.BidAmount)
	assert.Empty(t, c.AddPlayerID)
}

func TestSubmitClaim_ValidationCodes(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 50, players: []string{"x1"}},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 50, players: []string{"y1"}})
	ctx := context.Background()

	require.NoError(t, f.leagues.Put(ctx, &domain.League{ID: "L2", Season: 2026, CurrentWeek: 7}))
	require.NoError(t, f.teams.PutTeam(ctx, &domain.Team{ID: "W", LeagueID: "L2", RosterMax: 3}))

	f.submit(t, addClaim("X", "P", 10))

	tests := []struct {
		name string
		req  SubmitRequest
		code ValidationCode
	}{
		{"unknown team", addClaim("nope", "Q", 10), CodeTeamNotFound},
		{"team in another league", SubmitRequest{LeagueID: "L2", TeamID: "X", Kind: domain.ClaimKindAdd, AddPlayerID: "Q", BidAmount: 5}, CodeTeamNotFound},
		{"league without waivers", addClaim("W", "Q", 0), CodeWaiversNotConfigured},
		{"unknown kind", SubmitRequest{TeamID: "X", Kind: "TRADE", AddPlayerID: "Q"}, CodeInvalidKind},
		{"add without player", SubmitRequest{TeamID: "X", Kind: domain.ClaimKindAdd, BidAmount: 5}, CodeMissingPlayerRef},
		{"add-drop without drop", SubmitRequest{TeamID: "X", Kind: domain.ClaimKindAddDrop, AddPlayerID: "Q", BidAmount: 5}, CodeMissingPlayerRef},
		{"player rostered elsewhere", addClaim("X", "y1", 10), CodePlayerNotFreeAgent},
		{"drop not on roster", SubmitRequest{TeamID: "X", Kind: domain.ClaimKindDrop, DropPlayerID: "y1"}, CodePlayerNotOnRoster},
		{"bid below minimum", addClaim("X", "Q", 0), CodeBidBelowMinimum},
		{"negative bid", addClaim("X", "Q", -5), CodeBidBelowMinimum},
		{"bid over budget", addClaim("X", "Q", 51), CodeBidExceedsBudget},
		{"duplicate pending", addClaim("X", "P", 10), CodeDuplicatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.svc.SubmitClaim(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, IsValidationCode(err, tt.code), "got %v", err)
		})
	}

	pending, err := f.claims.GetPendingByLeague(ctx, testLeague)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "rejected submissions must not be persisted")
}

func TestSubmitClaim_PendingClaimsMayOvercommitBudget(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 5, faab: 30})

	f.submit(t, addClaim("X", "P1", 25))
	f.submit(t, addClaim("X", "P2", 25))

	pending, err := f.svc.ListPendingClaims(context.Background(), "X")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestResolution_FAABTieGoesToEarliestSubmission(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100, players: []string{"x1"}},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100, players: []string{"y1"}},
		teamSpec{id: "Z", priority: 3, rosterMax: 3, faab: 100, players: []string{"z1"}})
	ctx := context.Background()

	y := f.submit(t, addClaim("Y", "P", 20))
	f.clock.Advance(time.Minute)
	x := f.submit(t, addClaim("X", "P", 20))
	z := f.submit(t, addClaim("Z", "P", 15))

	run, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	require.Len(t, run.Claims, 3)
	assert.Equal(t, domain.TriggerManual, run.Trigger)
	assert.NotEmpty(t, run.RunID)

	yc := f.claim(t, y.ID)
	assert.Equal(t, domain.ClaimStatusSuccessful, yc.Status)
	assert.Equal(t, int64(20), yc.Resolution.WinningBid)
	assert.Equal(t, 3, yc.Resolution.CompetingClaims)
	assert.Equal(t, 1, yc.Resolution.ProcessingOrder)
	assert.Equal(t, run.RunID, yc.Resolution.RunID)

	for _, id := range []string{x.ID, z.ID} {
		c := f.claim(t, id)
		assert.Equal(t, domain.ClaimStatusFailed, c.Status)
		assert.Equal(t, domain.ReasonOutbid, c.FailureReason)
		assert.Equal(t, 3, c.Resolution.CompetingClaims)
		assert.Equal(t, int64(20), c.Resolution.WinningBid)
	}

	team := f.team(t, "Y")
	assert.Equal(t, int64(80), team.FAABRemaining)
	assert.Equal(t, int64(20), team.FAABSpent)
	assert.Equal(t, []string{"P", "y1"}, f.roster(t, "Y"))
	assert.Equal(t, int64(100), f.team(t, "X").FAABRemaining)

	league, err := f.leagues.GetByID(ctx, testLeague)
	require.NoError(t, err)
	assert.False(t, league.LastProcessedAt.IsZero())
}

func TestResolution_RerunIsNoop(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	f.submit(t, addClaim("X", "P", 10))
	f.submit(t, addClaim("Y", "P", 5))

	_, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)

	events := f.events.All()
	// 2 CLAIM_RESOLVED, 2 TEAM_RESULTS, 1 WAIVER_RUN_COMPLETED
	require.Len(t, events, 5)
	assert.Equal(t, domain.EventWaiverRunCompleted, events[4].Type)

	f.clock.Advance(time.Minute)
	rerun, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.Empty(t, rerun.Claims)
	assert.False(t, rerun.Skipped)

	assert.Len(t, f.events.All(), 5, "empty run must not emit events")
	assert.Equal(t, int64(90), f.team(t, "X").FAABRemaining)
}

func TestResolution_PriorityOrderWins(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3},
		teamSpec{id: "B", priority: 2, rosterMax: 3})

	b := f.submit(t, addClaim("B", "P", 0))
	a := f.submit(t, addClaim("A", "P", 0))

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	ac := f.claim(t, a.ID)
	assert.Equal(t, domain.ClaimStatusSuccessful, ac.Status)
	assert.Equal(t, 2, ac.Resolution.CompetingClaims)
	assert.Equal(t, 1, ac.Resolution.ProcessingOrder)

	bc := f.claim(t, b.ID)
	assert.Equal(t, domain.ClaimStatusFailed, bc.Status)
	assert.Equal(t, domain.ReasonPlayerUnavailable, bc.FailureReason)
	assert.Equal(t, 2, bc.Resolution.ProcessingOrder)

	assert.Equal(t, []string{"P"}, f.roster(t, "A"))
}

func TestResolution_PriorityUsesSubmissionSnapshot(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3},
		teamSpec{id: "B", priority: 2, rosterMax: 3})
	ctx := context.Background()

	a := f.submit(t, addClaim("A", "P", 0))
	f.submit(t, addClaim("B", "P", 0))

	require.NoError(t, f.teams.SetRecord(ctx, "A", domain.Record{Wins: 6}))
	require.NoError(t, f.svc.RerankLeague(ctx, testLeague))
	assert.Equal(t, 1, f.team(t, "B").WaiverPriority)

	_, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, a.ID).Status)
}

func TestResolution_RosterFullFallsThroughToNextPriority(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 1, players: []string{"a1"}},
		teamSpec{id: "B", priority: 2, rosterMax: 3, players: []string{"b1"}})

	a := f.submit(t, addClaim("A", "P", 0))
	b := f.submit(t, addClaim("B", "P", 0))

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	ac := f.claim(t, a.ID)
	assert.Equal(t, domain.ClaimStatusFailed, ac.Status)
	assert.Equal(t, domain.ReasonRosterFull, ac.FailureReason)

	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, b.ID).Status)
	assert.Equal(t, []string{"a1"}, f.roster(t, "A"))
	assert.Equal(t, []string{"P", "b1"}, f.roster(t, "B"))
}

func TestResolution_BudgetSpentAcrossGroups(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 5, faab: 30},
		teamSpec{id: "Y", priority: 2, rosterMax: 5, faab: 100})

	big := f.submit(t, addClaim("X", "P1", 25))
	small := f.submit(t, addClaim("X", "P2", 10))
	other := f.submit(t, addClaim("Y", "P2", 5))

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, big.ID).Status)

	sc := f.claim(t, small.ID)
	assert.Equal(t, domain.ClaimStatusFailed, sc.Status)
	assert.Equal(t, domain.ReasonInsufficientFAAB, sc.FailureReason)

	// The player is not re-offered to the next bidder in the same run.
	oc := f.claim(t, other.ID)
	assert.Equal(t, domain.ReasonOutbid, oc.FailureReason)

	free, err := f.teams.IsFreeAgent(context.Background(), testLeague, "P2")
	require.NoError(t, err)
	assert.True(t, free)
	assert.Equal(t, int64(5), f.team(t, "X").FAABRemaining)
}

func TestResolution_AddDropRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100, players: []string{"x1"}})

	first := f.submit(t, addClaim("X", "P1", 60))
	swap := f.submit(t, SubmitRequest{
		TeamID:       "X",
		Kind:         domain.ClaimKindAddDrop,
		AddPlayerID:  "P2",
		DropPlayerID: "x1",
		BidAmount:    60,
	})

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, first.ID).Status)

	sc := f.claim(t, swap.ID)
	assert.Equal(t, domain.ClaimStatusFailed, sc.Status)
	assert.Equal(t, domain.ReasonInsufficientFAAB, sc.FailureReason)

	assert.Equal(t, []string{"P1", "x1"}, f.roster(t, "X"), "drop must be undone")
	team := f.team(t, "X")
	assert.Equal(t, int64(40), team.FAABRemaining)
	assert.Equal(t, 2, team.RosterSize)
}

func TestResolution_DropsProcessedBeforeAdds(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 1, faab: 100, players: []string{"x1"}})

	add := f.submit(t, addClaim("X", "P", 10))
	drop := f.submit(t, SubmitRequest{TeamID: "X", Kind: domain.ClaimKindDrop, DropPlayerID: "x1"})

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	dc := f.claim(t, drop.ID)
	assert.Equal(t, domain.ClaimStatusSuccessful, dc.Status)
	assert.Equal(t, 1, dc.Resolution.ProcessingOrder)
	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, add.ID).Status)
	assert.Equal(t, []string{"P"}, f.roster(t, "X"))
}

func TestResolution_InvalidDropAtExecution(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3, players: []string{"a1"}})
	ctx := context.Background()

	c := f.submit(t, SubmitRequest{TeamID: "A", Kind: domain.ClaimKindAddDrop, AddPlayerID: "P", DropPlayerID: "a1"})
	require.NoError(t, f.teams.DropPlayer(ctx, "A", "a1"))

	_, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)

	got := f.claim(t, c.ID)
	assert.Equal(t, domain.ReasonInvalidDrop, got.FailureReason)
	assert.Empty(t, f.roster(t, "A"))
}

func TestResolution_UnexpectedErrorFailsOnlyThatClaim(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})

	x := f.submit(t, addClaim("X", "P", 10))
	y := f.submit(t, addClaim("Y", "Q", 5))
	f.teams.failTeam("X", errCorrupt)

	_, err := f.svc.TriggerResolution(context.Background(), testLeague)
	require.NoError(t, err)

	xc := f.claim(t, x.ID)
	assert.Equal(t, domain.ClaimStatusFailed, xc.Status)
	assert.Equal(t, domain.ReasonProcessingError, xc.FailureReason)
	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, y.ID).Status)

	var logged *logrus.Entry
	for _, e := range f.hook.AllEntries() {
		if e.Message == "claim processing error" {
			logged = e
		}
	}
	require.NotNil(t, logged)
	assert.Equal(t, logrus.ErrorLevel, logged.Level)
	assert.Equal(t, x.ID, logged.Data["claim_id"])
	assert.Equal(t, "X", logged.Data["team_id"])
	assert.Equal(t, "P", logged.Data["add_player"])
}

func TestResolution_StoreOutageAbortsRun(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	f.submit(t, addClaim("Y", "P", 20))
	f.submit(t, addClaim("X", "P", 10))
	f.teams.failTeam("Y", errStoreDown)

	run, err := f.svc.TriggerResolution(ctx, testLeague)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnavailable))
	require.NotNil(t, run)
	assert.True(t, run.Aborted)

	pending, err := f.claims.GetPendingByLeague(ctx, testLeague)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "claims stay pending for the next run")
	assert.Empty(t, f.events.All())

	league, err := f.leagues.GetByID(ctx, testLeague)
	require.NoError(t, err)
	assert.True(t, league.LastProcessedAt.IsZero())

	// The lease was released, so a later run can retry.
	f.teams.failTeam("Y", nil)
	run, err = f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.Len(t, run.Claims, 2)
}

func TestResolution_SkipsWhenLeaseHeld(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100})
	ctx := context.Background()

	c := f.submit(t, addClaim("X", "P", 10))

	ok, err := f.leagues.AcquireRunLease(ctx, testLeague, "other-instance", f.clock.Now(), 7*24*time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	run, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.True(t, run.Skipped)
	assert.Empty(t, run.Claims)
	assert.True(t, f.claim(t, c.ID).IsPending())

	_, err = f.svc.CancelClaim(ctx, c.ID, "X")
	assert.ErrorIs(t, err, ErrRunInProgress)

	n, err := f.svc.ExpireStale(ctx, c.ExpiresAt.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolution_UnknownLeague(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB)

	_, err := f.svc.TriggerResolution(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLeagueNotFound)
}

func TestCancelClaim(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	c := f.submit(t, addClaim("X", "P", 10))

	_, err := f.svc.CancelClaim(ctx, "missing", "X")
	assert.ErrorIs(t, err, ErrClaimNotFound)

	_, err = f.svc.CancelClaim(ctx, c.ID, "Y")
	assert.ErrorIs(t, err, ErrNotOwner)

	cancelled, err := f.svc.CancelClaim(ctx, c.ID, "X")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.ReasonCancelledByUser, cancelled.CancelReason)
	assert.Empty(t, cancelled.FailureReason)

	stored := f.claim(t, c.ID)
	assert.Equal(t, domain.ClaimStatusCancelled, stored.Status)

	_, err = f.svc.CancelClaim(ctx, c.ID, "X")
	assert.ErrorIs(t, err, ErrNotPending)

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventClaimResolved, events[0].Type)
	assert.Equal(t, domain.ClaimStatusCancelled, events[0].Outcome)

	// A cancelled claim frees the team to claim the same player again.
	f.submit(t, addClaim("X", "P", 12))
}

func TestCancelClaimAsCommissioner(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3})
	ctx := context.Background()

	c := f.submit(t, addClaim("A", "P", 0))

	cancelled, err := f.svc.CancelClaimAsCommissioner(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonCancelledByCommissioner, cancelled.CancelReason)

	run, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.Empty(t, run.Claims, "cancelled claims are not resolved")
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100})
	ctx := context.Background()

	c := f.submit(t, addClaim("X", "P", 10))

	n, err := f.svc.ExpireStale(ctx, c.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "within grace period")

	f.clock.Set(c.ExpiresAt.Add(7 * time.Hour))
	n, err = f.svc.ExpireStale(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.claim(t, c.ID)
	assert.Equal(t, domain.ClaimStatusFailed, got.Status)
	assert.Equal(t, domain.ReasonExpired, got.FailureReason)
	require.NotNil(t, got.Resolution)
	assert.NotEmpty(t, got.Resolution.RunID)

	events, err := f.events.GetByLeague(ctx, testLeague, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.ReasonExpired, events[0].Reason)
}

func TestResolveDue(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100})
	ctx := context.Background()

	c := f.submit(t, addClaim("X", "P", 10))

	require.NoError(t, f.svc.ResolveDue(ctx, f.clock.Now()))
	assert.True(t, f.claim(t, c.ID).IsPending(), "not due before the slot")

	f.clock.Set(c.ExpiresAt)
	require.NoError(t, f.svc.ResolveDue(ctx, c.ExpiresAt))

	got := f.claim(t, c.ID)
	assert.Equal(t, domain.ClaimStatusSuccessful, got.Status)

	events := f.events.All()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventWaiverRunCompleted, events[len(events)-1].Type)
	assert.Equal(t, got.Resolution.RunID, events[len(events)-1].RunID)
}

func TestResolveDue_LeavesLaterSlotClaimsPending(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	early := f.submit(t, addClaim("X", "P", 10))
	slot := early.ExpiresAt

	// Filed after the deadline, before the scheduler fires.
	f.clock.Set(slot.Add(20 * time.Second))
	late := f.submit(t, addClaim("Y", "P", 50))
	require.True(t, late.ExpiresAt.After(slot), "late claim belongs to the next slot")

	require.NoError(t, f.svc.ResolveDue(ctx, slot.Add(time.Minute)))

	assert.Equal(t, domain.ClaimStatusSuccessful, f.claim(t, early.ID).Status)
	assert.True(t, f.claim(t, late.ID).IsPending())
	assert.Equal(t, int64(100), f.team(t, "Y").FAABRemaining)
	assert.Contains(t, f.roster(t, "X"), "P")
}

func TestResolution_ReportsAfterLeaseRelease(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	rep := &blockingReporter{entered: make(chan struct{}, 1), unblock: make(chan struct{})}
	f.svc.reporter = rep

	c := f.submit(t, addClaim("X", "P", 10))

	type result struct {
		run *domain.WaiverRun
		err error
	}
	results := make(chan result, 1)
	go func() {
		run, err := f.svc.TriggerResolution(ctx, testLeague)
		results <- result{run, err}
	}()

	select {
	case <-rep.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("run was never reported")
	}

	// The sink is stuck; the league must still accept cancels and runs.
	other := f.submit(t, addClaim("Y", "Q", 5))
	cancelled, err := f.svc.CancelClaim(ctx, other.ID, "Y")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusCancelled, cancelled.Status)

	second, err := f.svc.TriggerResolution(ctx, testLeague)
	require.NoError(t, err)
	assert.False(t, second.Skipped)

	close(rep.unblock)
	res := <-results
	require.NoError(t, res.err)
	require.Len(t, res.run.Claims, 1)
	assert.Equal(t, c.ID, res.run.Claims[0].ID)
}

func TestLease_RenewedWhileHeld(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB)
	f.svc.leaseTTL = 45 * time.Millisecond
	ctx := context.Background()
	start := f.clock.Now()

	release, ok, err := f.svc.lease(ctx, testLeague, start)
	require.NoError(t, err)
	require.True(t, ok)

	// Renewals from here on expire at start+30ms+TTL, past the original expiry.
	f.clock.Advance(30 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	ok, err = f.leagues.AcquireRunLease(ctx, testLeague, "other-instance", start.Add(60*time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease expired while still held")

	release()
	ok, err = f.leagues.AcquireRunLease(ctx, testLeague, "other-instance", start.Add(60*time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRerankDue(t *testing.T) {
	f := newFixture(t, domain.WaiverModePriority,
		teamSpec{id: "A", priority: 1, rosterMax: 3},
		teamSpec{id: "B", priority: 2, rosterMax: 3},
		teamSpec{id: "C", priority: 3, rosterMax: 3})
	ctx := context.Background()

	require.NoError(t, f.teams.SetRecord(ctx, "A", domain.Record{Wins: 5, PointsFor: 600}))
	require.NoError(t, f.teams.SetRecord(ctx, "B", domain.Record{Wins: 1, PointsFor: 400}))
	require.NoError(t, f.teams.SetRecord(ctx, "C", domain.Record{Wins: 3, PointsFor: 500}))

	priorities := func() map[string]int {
		out := map[string]int{}
		for _, id := range []string{"A", "B", "C"} {
			out[id] = f.team(t, id).WaiverPriority
		}
		return out
	}

	require.NoError(t, f.svc.RerankDue(ctx, f.clock.Now()))
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, priorities(), "window not open on Monday")

	f.clock.Set(time.Date(2026, 10, 21, 7, 30, 0, 0, time.UTC))
	require.NoError(t, f.svc.RerankDue(ctx, f.clock.Now()))
	assert.Equal(t, map[string]int{"A": 3, "B": 1, "C": 2}, priorities())

	league, err := f.leagues.GetByID(ctx, testLeague)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), league.LastRerankedAt)

	// Already re-ranked in this window.
	require.NoError(t, f.teams.SetRecord(ctx, "A", domain.Record{}))
	f.clock.Advance(15 * time.Minute)
	require.NoError(t, f.svc.RerankDue(ctx, f.clock.Now()))
	assert.Equal(t, 3, f.team(t, "A").WaiverPriority)

	require.NoError(t, f.svc.RerankLeague(ctx, testLeague))
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, priorities())
}

func TestRerankDue_IgnoresFAABLeagues(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100},
		teamSpec{id: "Y", priority: 2, rosterMax: 3, faab: 100})
	ctx := context.Background()

	require.NoError(t, f.teams.SetRecord(ctx, "X", domain.Record{Wins: 9}))
	f.clock.Set(time.Date(2026, 10, 21, 7, 30, 0, 0, time.UTC))
	require.NoError(t, f.svc.RerankDue(ctx, f.clock.Now()))

	assert.Equal(t, 1, f.team(t, "X").WaiverPriority)
}

func TestGetClaim(t *testing.T) {
	f := newFixture(t, domain.WaiverModeFAAB,
		teamSpec{id: "X", priority: 1, rosterMax: 3, faab: 100})
	ctx := context.Background()

	c := f.submit(t, addClaim("X", "P", 10))

	got, err := f.svc.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.svc.GetClaim(ctx, "missing")
	assert.ErrorIs(t, err, ErrClaimNotFound)

	week, err := f.svc.ListLeagueClaims(ctx, testLeague, 2026, 7)
	require.NoError(t, err)
	assert.Len(t, week, 1)
}
