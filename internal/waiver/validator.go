package waiver

import (
	"context"
	"fmt"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// SubmitRequest is a team's request to add and/or drop a player.
type SubmitRequest struct {
	LeagueID     string // optional; when set the team must belong to it
	TeamID       string
	Kind         domain.ClaimKind
	AddPlayerID  string
	DropPlayerID string
	BidAmount    int64
}

// Validator checks a new claim against league rules, rosters and budgets.
type Validator struct {
	roster storage.RosterService
	claims storage.ClaimStore
}

// NewValidator creates a Validator.
func NewValidator(roster storage.RosterService, claims storage.ClaimStore) *Validator {
	return &Validator{roster: roster, claims: claims}
}

// Validate runs the submission checks in order; the first failure wins.
// Returns a *ValidationError for rule violations and a plain error when a
// collaborator could not be consulted.
func (v *Validator) Validate(ctx context.Context, league *domain.League, team *domain.Team, req SubmitRequest) error {
	if league.Rules == nil {
		return invalid(CodeWaiversNotConfigured, "league %s has no waiver rules", league.ID)
	}
	if !req.Kind.IsValid() {
		return invalid(CodeInvalidKind, "unknown claim kind %q", req.Kind)
	}

	if req.Kind.HasAdd() {
		if req.AddPlayerID == "" {
			return invalid(CodeMissingPlayerRef, "%s claim requires a player to add", req.Kind)
		}
		free, err := v.roster.IsFreeAgent(ctx, league.ID, req.AddPlayerID)
		if err != nil {
			return fmt.Errorf("check free agent %s: %w", req.AddPlayerID, err)
		}
		if !free {
			return invalid(CodePlayerNotFreeAgent, "player %s is rostered in league %s", req.AddPlayerID, league.ID)
		}
	}

	if req.Kind.HasDrop() {
		if req.DropPlayerID == "" {
			return invalid(CodeMissingPlayerRef, "%s claim requires a player to drop", req.Kind)
		}
		has, err := v.roster.HasPlayer(ctx, team.ID, req.DropPlayerID)
		if err != nil {
			return fmt.Errorf("check roster for %s: %w", req.DropPlayerID, err)
		}
		if !has {
			return invalid(CodePlayerNotOnRoster, "player %s is not on team %s", req.DropPlayerID, team.ID)
		}
	}

	// Pending claims may overcommit the budget; execution settles that.
	if league.IsFAAB() && req.Kind.HasAdd() {
		if req.BidAmount < 0 || req.BidAmount < league.Rules.MinBid {
			return invalid(CodeBidBelowMinimum, "bid %d is below league minimum %d", req.BidAmount, league.Rules.MinBid)
		}
		if req.BidAmount > team.FAABRemaining {
			return invalid(CodeBidExceedsBudget, "bid %d exceeds remaining budget %d", req.BidAmount, team.FAABRemaining)
		}
	}

	if req.Kind.HasAdd() {
		dup, err := v.claims.HasPendingForPlayer(ctx, team.ID, req.AddPlayerID)
		if err != nil {
			return fmt.Errorf("check pending claims: %w", err)
		}
		if dup {
			return invalid(CodeDuplicatePending, "team %s already has a pending claim for %s", team.ID, req.AddPlayerID)
		}
	}

	return nil
}
