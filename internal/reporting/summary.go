package reporting

import (
	"sort"

	"waiver-wire/internal/domain"
)

// Summarize aggregates the claims decided by a run into counts and per-team
// breakdowns. Claims are listed in processing order within each team.
func Summarize(claims []*domain.Claim) *domain.RunSummary {
	s := &domain.RunSummary{
		ByReason: make(map[domain.FailureReason]int),
		ByTeam:   make(map[string]*domain.TeamSummary),
	}

	for _, c := range claims {
		s.Processed++

		team := s.ByTeam[c.TeamID]
		if team == nil {
			team = &domain.TeamSummary{TeamID: c.TeamID}
			s.ByTeam[c.TeamID] = team
		}

		out := outcome(c)
		switch c.Status {
		case domain.ClaimStatusSuccessful:
			s.Successful++
			team.Successful = append(team.Successful, out)
			team.FAABSpent += c.BidAmount
		case domain.ClaimStatusFailed:
			s.Failed++
			s.ByReason[c.FailureReason]++
			team.Failed = append(team.Failed, out)
		case domain.ClaimStatusCancelled:
			s.Cancelled++
			s.ByReason[c.CancelReason]++
			team.Failed = append(team.Failed, out)
		}
	}

	return s
}

// TeamIDs returns the summary's affected teams, sorted.
func TeamIDs(s *domain.RunSummary) []string {
	ids := make([]string, 0, len(s.ByTeam))
	for id := range s.ByTeam {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func outcome(c *domain.Claim) domain.ClaimOutcome {
	return domain.ClaimOutcome{
		ClaimID:      c.ID,
		TeamID:       c.TeamID,
		Kind:         c.Kind,
		AddPlayerID:  c.AddPlayerID,
		DropPlayerID: c.DropPlayerID,
		BidAmount:    c.BidAmount,
		Status:       c.Status,
		Reason:       reasonOf(c),
	}
}

func reasonOf(c *domain.Claim) domain.FailureReason {
	if c.Status == domain.ClaimStatusCancelled {
		return c.CancelReason
	}
	return c.FailureReason
}

// Events builds the events for a run: one CLAIM_RESOLVED per decided claim,
// then one TEAM_RESULTS per affected team and a closing WAIVER_RUN_COMPLETED.
// Cancellations only emit CLAIM_RESOLVED.
func Events(run *domain.WaiverRun, summary *domain.RunSummary) []domain.WaiverEvent {
	at := run.CompletedAt
	if at.IsZero() {
		at = run.StartedAt
	}

	events := make([]domain.WaiverEvent, 0, len(run.Claims)+len(summary.ByTeam)+1)
	for _, c := range run.Claims {
		events = append(events, domain.WaiverEvent{
			Type:       domain.EventClaimResolved,
			LeagueID:   run.LeagueID,
			RunID:      run.RunID,
			TeamID:     c.TeamID,
			ClaimID:    c.ID,
			Outcome:    c.Status,
			Reason:     reasonOf(c),
			OccurredAt: at,
		})
	}

	if run.Trigger == domain.TriggerCancellation {
		return events
	}

	for _, teamID := range TeamIDs(summary) {
		events = append(events, domain.WaiverEvent{
			Type:       domain.EventTeamResults,
			LeagueID:   run.LeagueID,
			RunID:      run.RunID,
			TeamID:     teamID,
			Team:       summary.ByTeam[teamID],
			OccurredAt: at,
		})
	}

	events = append(events, domain.WaiverEvent{
		Type:       domain.EventWaiverRunCompleted,
		LeagueID:   run.LeagueID,
		RunID:      run.RunID,
		Summary:    summary,
		OccurredAt: at,
	})
	return events
}
