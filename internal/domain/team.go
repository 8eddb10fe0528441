package domain

// Record is a team's season record, used to re-rank waiver priority.
type Record struct {
	Wins      int
	Losses    int
	Ties      int
	PointsFor float64
}

// Team is the subset of a fantasy team the waiver engine needs.
type Team struct {
	ID       string
	LeagueID string
	Name     string
	OwnerID  string

	RosterSize int
	RosterMax  int

	FAABBudget    int64 // season-starting budget
	FAABRemaining int64
	FAABSpent     int64

	WaiverPriority int // lower = higher priority
	Record         Record
}

// HasOpenSlot reports whether the roster can take another player.
func (t *Team) HasOpenSlot() bool {
	return t.RosterSize < t.RosterMax
}

// RosterSlot is the position an acquired player lands in.
type RosterSlot string

const (
	RosterSlotStarter RosterSlot = "STARTER"
	RosterSlotBench   RosterSlot = "BENCH"
	RosterSlotIR      RosterSlot = "IR"
)
