package domain

import "time"

// ClaimKind describes the roster change a claim requests.
type ClaimKind string

const (
	ClaimKindAdd     ClaimKind = "ADD"
	ClaimKindDrop    ClaimKind = "DROP"
	ClaimKindAddDrop ClaimKind = "ADD_DROP"
)

// IsValid checks if the kind is one of the supported values.
func (k ClaimKind) IsValid() bool {
	return k == ClaimKindAdd || k == ClaimKindDrop || k == ClaimKindAddDrop
}

// HasAdd reports whether the kind acquires a player.
func (k ClaimKind) HasAdd() bool {
	return k == ClaimKindAdd || k == ClaimKindAddDrop
}

// HasDrop reports whether the kind releases a player.
func (k ClaimKind) HasDrop() bool {
	return k == ClaimKindDrop || k == ClaimKindAddDrop
}

// ClaimStatus is the claim state machine: PENDING -> {SUCCESSFUL, FAILED, CANCELLED}.
type ClaimStatus string

const (
	ClaimStatusPending    ClaimStatus = "PENDING"
	ClaimStatusSuccessful ClaimStatus = "SUCCESSFUL"
	ClaimStatusFailed     ClaimStatus = "FAILED"
	ClaimStatusCancelled  ClaimStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusSuccessful || s == ClaimStatusFailed || s == ClaimStatusCancelled
}

// IsValid checks if the status is a known value.
func (s ClaimStatus) IsValid() bool {
	return s == ClaimStatusPending || s.IsTerminal()
}

// FailureReason is the fixed set of reasons recorded on a resolved claim.
type FailureReason string

const (
	ReasonInsufficientFAAB        FailureReason = "INSUFFICIENT_FAAB"
	ReasonRosterFull              FailureReason = "ROSTER_FULL"
	ReasonPlayerUnavailable       FailureReason = "PLAYER_UNAVAILABLE"
	ReasonInvalidDrop             FailureReason = "INVALID_DROP"
	ReasonOutbid                  FailureReason = "OUTBID"
	ReasonLowerPriority           FailureReason = "LOWER_PRIORITY"
	ReasonCancelledByUser         FailureReason = "CANCELLED_BY_USER"
	ReasonCancelledByCommissioner FailureReason = "CANCELLED_BY_COMMISSIONER"
	ReasonExpired                 FailureReason = "EXPIRED"
	ReasonProcessingError         FailureReason = "PROCESSING_ERROR"
)

var failureReasons = map[FailureReason]struct{}{
	ReasonInsufficientFAAB:        {},
	ReasonRosterFull:              {},
	ReasonPlayerUnavailable:       {},
	ReasonInvalidDrop:             {},
	ReasonOutbid:                  {},
	ReasonLowerPriority:           {},
	ReasonCancelledByUser:         {},
	ReasonCancelledByCommissioner: {},
	ReasonExpired:                 {},
	ReasonProcessingError:         {},
}

// IsValid checks if the reason is part of the enumeration.
func (r FailureReason) IsValid() bool {
	_, ok := failureReasons[r]
	return ok
}

// Resolution is filled in when a processing run decides a claim.
type Resolution struct {
	RunID           string
	WinningBid      int64 // winning bid for the contested player (FAAB only)
	CompetingClaims int   // claims that targeted the same player in the run
	ProcessingOrder int   // 1-based position in the run
	ProcessedAt     time.Time
}

// Claim is a team's request to add and/or drop a player during a waiver period.
type Claim struct {
	ID       string
	LeagueID string
	TeamID   string
	Season   int
	Week     int

	Kind         ClaimKind
	AddPlayerID  string // empty when Kind is DROP
	DropPlayerID string // empty when Kind is ADD

	BidAmount            int64 // FAAB dollars, 0 in priority leagues
	PriorityAtSubmission int   // team waiver priority snapshot

	SubmittedAt time.Time
	ExpiresAt   time.Time // next scheduled resolution for the league

	Status        ClaimStatus
	FailureReason FailureReason // set only when Status is FAILED
	CancelReason  FailureReason // set only when Status is CANCELLED
	Resolution    *Resolution

	UpdatedAt time.Time
}

// IsPending reports whether the claim is still awaiting resolution.
func (c *Claim) IsPending() bool {
	return c.Status == ClaimStatusPending
}

// Clone returns a deep copy of the claim.
func (c *Claim) Clone() *Claim {
	cp := *c
	if c.Resolution != nil {
		r := *c.Resolution
		cp.Resolution = &r
	}
	return &cp
}

// Succeed marks the claim SUCCESSFUL.
func (c *Claim) Succeed(res Resolution) {
	c.Status = ClaimStatusSuccessful
	c.FailureReason = ""
	c.Resolution = &res
}

// Fail marks the claim FAILED with the given reason.
func (c *Claim) Fail(reason FailureReason, res Resolution) {
	c.Status = ClaimStatusFailed
	c.FailureReason = reason
	c.Resolution = &res
}

// Cancel marks the claim CANCELLED.
func (c *Claim) Cancel(reason FailureReason, at time.Time) {
	c.Status = ClaimStatusCancelled
	c.CancelReason = reason
	c.UpdatedAt = at
}
