package waiver

import (
	"sort"

	"waiver-wire/internal/domain"
)

// rankByRecord orders teams worst record first: wins ASC, points_for ASC.
// Ties keep the current waiver priority, then team id.
func rankByRecord(teams []*domain.Team) []*domain.Team {
	ranked := make([]*domain.Team, len(teams))
	copy(ranked, teams)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Record.Wins != b.Record.Wins {
			return a.Record.Wins < b.Record.Wins
		}
		if a.Record.PointsFor != b.Record.PointsFor {
			return a.Record.PointsFor < b.Record.PointsFor
		}
		if a.WaiverPriority != b.WaiverPriority {
			return a.WaiverPriority < b.WaiverPriority
		}
		return a.ID < b.ID
	})
	return ranked
}
