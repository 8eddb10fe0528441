package reporting

import (
	"fmt"
	"strings"
	"time"

	"waiver-wire/internal/domain"
)

// RenderMarkdown renders a run and its summary as Markdown.
func RenderMarkdown(run *domain.WaiverRun, s *domain.RunSummary) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Waiver Results: %s (week %d)\n\n", run.LeagueID, run.Week))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Trigger: %s\n", run.RunID, run.Trigger))
	if !run.CompletedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Completed: %s\n", run.CompletedAt.Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	if run.Skipped {
		sb.WriteString("Skipped: another run holds the league.\n")
		return sb.String()
	}
	if run.Aborted {
		sb.WriteString("**Run aborted.** Undecided claims remain pending.\n\n")
	}

	// Totals
	sb.WriteString("| Processed | Successful | Failed | Cancelled |\n")
	sb.WriteString("|-----------|------------|--------|-----------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d |\n\n", s.Processed, s.Successful, s.Failed, s.Cancelled))

	if s.Processed == 0 {
		sb.WriteString("No claims processed.\n")
		return sb.String()
	}

	// Per team
	for _, teamID := range TeamIDs(s) {
		team := s.ByTeam[teamID]
		sb.WriteString(fmt.Sprintf("## %s\n\n", teamID))
		for _, o := range team.Successful {
			sb.WriteString(fmt.Sprintf("- %s %s\n", o.Status, describe(o)))
		}
		for _, o := range team.Failed {
			sb.WriteString(fmt.Sprintf("- %s %s (%s)\n", o.Status, describe(o), o.Reason))
		}
		if team.FAABSpent > 0 {
			sb.WriteString(fmt.Sprintf("\nFAAB spent: $%d\n", team.FAABSpent))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func describe(o domain.ClaimOutcome) string {
	var parts []string
	if o.AddPlayerID != "" {
		add := "add " + o.AddPlayerID
		if o.BidAmount > 0 {
			add += fmt.Sprintf(" for $%d", o.BidAmount)
		}
		parts = append(parts, add)
	}
	if o.DropPlayerID != "" {
		parts = append(parts, "drop "+o.DropPlayerID)
	}
	return strings.Join(parts, ", ")
}
