package domain

import "time"

// WaiverMode selects how contested claims are resolved.
type WaiverMode string

const (
	WaiverModeFAAB     WaiverMode = "FAAB"
	WaiverModePriority WaiverMode = "PRIORITY"
)

// IsValid checks if the mode is a known value.
func (m WaiverMode) IsValid() bool {
	return m == WaiverModeFAAB || m == WaiverModePriority
}

// WaiverRules is the league's waiver configuration.
type WaiverRules struct {
	Mode       WaiverMode
	MinBid     int64 // FAAB only
	FAABBudget int64 // season-starting budget per team

	// Weekly processing slot in Timezone.
	ProcessDay    time.Weekday
	ProcessHour   int
	ProcessMinute int
	Timezone      string

	// RerankLead is how long before the slot priority is recomputed.
	RerankLead time.Duration
}

// Location returns the rules' time zone, falling back to UTC.
func (r *WaiverRules) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// League is a fantasy league with its waiver configuration.
type League struct {
	ID          string
	Name        string
	Season      int
	CurrentWeek int

	Rules *WaiverRules // nil when waivers are not configured

	LastProcessedAt time.Time // zero if never processed
	LastRerankedAt  time.Time
}

// IsFAAB reports whether the league resolves claims by auction.
func (l *League) IsFAAB() bool {
	return l.Rules != nil && l.Rules.Mode == WaiverModeFAAB
}

// Clone returns a deep copy of the league.
func (l *League) Clone() *League {
	cp := *l
	if l.Rules != nil {
		r := *l.Rules
		cp.Rules = &r
	}
	return &cp
}
