package reporting

import (
	"fmt"
	"strings"
	"time"

	"waiver-wire/internal/domain"
)

// RenderCSV renders claims as CSV string.
func RenderCSV(claims []*domain.Claim) string {
	var sb strings.Builder

	// Header
	sb.WriteString("claim_id,team_id,kind,add_player_id,drop_player_id,bid_amount,")
	sb.WriteString("priority_at_submission,submitted_at,status,reason,processing_order\n")

	// Rows
	for _, c := range claims {
		order := 0
		if c.Resolution != nil {
			order = c.Resolution.ProcessingOrder
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d,%s,%s,%s,%d\n",
			c.ID,
			c.TeamID,
			c.Kind,
			c.AddPlayerID,
			c.DropPlayerID,
			c.BidAmount,
			c.PriorityAtSubmission,
			c.SubmittedAt.UTC().Format(time.RFC3339),
			c.Status,
			reasonOf(c),
			order,
		))
	}

	return sb.String()
}
