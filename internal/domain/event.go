package domain

import "time"

// EventType identifies a waiver processing event.
type EventType string

const (
	EventWaiverRunCompleted EventType = "WAIVER_RUN_COMPLETED"
	EventClaimResolved      EventType = "CLAIM_RESOLVED"
	EventTeamResults        EventType = "TEAM_RESULTS"
)

// ClaimOutcome is the per-claim line of a run summary.
type ClaimOutcome struct {
	ClaimID      string        `json:"claim_id"`
	TeamID       string        `json:"team_id"`
	Kind         ClaimKind     `json:"kind"`
	AddPlayerID  string        `json:"add_player_id,omitempty"`
	DropPlayerID string        `json:"drop_player_id,omitempty"`
	BidAmount    int64         `json:"bid_amount"`
	Status       ClaimStatus   `json:"status"`
	Reason       FailureReason `json:"reason,omitempty"`
}

// TeamSummary is the per-team breakdown of a run.
type TeamSummary struct {
	TeamID     string         `json:"team_id"`
	Successful []ClaimOutcome `json:"successful"`
	Failed     []ClaimOutcome `json:"failed"`
	FAABSpent  int64          `json:"faab_spent"`
}

// RunSummary aggregates all claims touched by a run.
type RunSummary struct {
	Processed  int                     `json:"processed"`
	Successful int                     `json:"successful"`
	Failed     int                     `json:"failed"`
	Cancelled  int                     `json:"cancelled"`
	ByReason   map[FailureReason]int   `json:"by_reason"`
	ByTeam     map[string]*TeamSummary `json:"by_team"`
}

// WaiverEvent is what the engine emits to external sinks.
type WaiverEvent struct {
	Type       EventType     `json:"type"`
	LeagueID   string        `json:"league_id"`
	RunID      string        `json:"run_id,omitempty"`
	TeamID     string        `json:"team_id,omitempty"`
	ClaimID    string        `json:"claim_id,omitempty"`
	Outcome    ClaimStatus   `json:"outcome,omitempty"`
	Reason     FailureReason `json:"reason,omitempty"`
	Summary    *RunSummary   `json:"summary,omitempty"`
	Team       *TeamSummary  `json:"team,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// RunTrigger records what started a processing run.
type RunTrigger string

const (
	TriggerScheduled    RunTrigger = "SCHEDULED"
	TriggerManual       RunTrigger = "MANUAL"
	TriggerExpirySweep  RunTrigger = "EXPIRY_SWEEP"
	TriggerCancellation RunTrigger = "CANCELLATION"
)

// WaiverRun is the outcome of one processing pass over a league's claims.
type WaiverRun struct {
	RunID       string
	LeagueID    string
	Season      int
	Week        int
	Mode        WaiverMode
	Trigger     RunTrigger
	StartedAt   time.Time
	CompletedAt time.Time

	// Claims decided by this run, in processing order.
	Claims []*Claim

	// Skipped is set when another run held the league lease.
	Skipped bool
	// Aborted is set when a league-level failure stopped the run early.
	Aborted bool
}
