package waiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/storage"
)

// Executor applies the roster and budget effects of a winning claim.
// Every mutation is undone if a later step fails, so a team is never left
// with a partial swap or an unpaid acquisition.
type Executor struct {
	teams  storage.TeamStore
	roster storage.RosterService
	log    logrus.FieldLogger
}

// NewExecutor creates an Executor.
func NewExecutor(teams storage.TeamStore, roster storage.RosterService, logger logrus.FieldLogger) *Executor {
	return &Executor{
		teams:  teams,
		roster: roster,
		log:    logger.WithField("component", "executor"),
	}
}

// Execute applies c to its team. Returns nil on success, *ExecutionError
// for claim-level failures and any other error for unexpected faults.
func (e *Executor) Execute(ctx context.Context, league *domain.League, c *domain.Claim) error {
	team, err := e.teams.GetByID(ctx, c.TeamID)
	if err != nil {
		return fmt.Errorf("load team %s: %w", c.TeamID, err)
	}
	if team.LeagueID != league.ID {
		return fmt.Errorf("team %s is not in league %s", team.ID, league.ID)
	}

	tx := &rosterTx{exec: e, claim: c}

	if c.Kind.HasDrop() {
		has, err := e.roster.HasPlayer(ctx, team.ID, c.DropPlayerID)
		if err != nil {
			return fmt.Errorf("check drop player %s: %w", c.DropPlayerID, err)
		}
		if !has {
			return failed(domain.ReasonInvalidDrop, "player %s no longer on roster", c.DropPlayerID)
		}
	}

	if c.Kind.HasAdd() {
		free, err := e.roster.IsFreeAgent(ctx, league.ID, c.AddPlayerID)
		if err != nil {
			return fmt.Errorf("check free agent %s: %w", c.AddPlayerID, err)
		}
		if !free {
			return failed(domain.ReasonPlayerUnavailable, "player %s already rostered", c.AddPlayerID)
		}
	}

	// Drop first so a same-size swap never trips the roster limit.
	if c.Kind.HasDrop() {
		if err := e.roster.DropPlayer(ctx, team.ID, c.DropPlayerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return failed(domain.ReasonInvalidDrop, "player %s no longer on roster", c.DropPlayerID)
			}
			return fmt.Errorf("drop player %s: %w", c.DropPlayerID, err)
		}
		team.RosterSize--
		tx.onUndo(func(ctx context.Context) error {
			return e.roster.AddPlayer(ctx, team.ID, c.DropPlayerID)
		})
	}

	if c.Kind.HasAdd() {
		if !team.HasOpenSlot() {
			return tx.rollback(ctx, failed(domain.ReasonRosterFull, "roster at %d/%d", team.RosterSize, team.RosterMax))
		}
		if err := e.roster.AddPlayer(ctx, team.ID, c.AddPlayerID); err != nil {
			switch {
			case errors.Is(err, storage.ErrDuplicateKey):
				return tx.rollback(ctx, failed(domain.ReasonPlayerUnavailable, "player %s already rostered", c.AddPlayerID))
			case errors.Is(err, storage.ErrRosterFull):
				return tx.rollback(ctx, failed(domain.ReasonRosterFull, "roster at %d/%d", team.RosterSize, team.RosterMax))
			default:
				return tx.rollback(ctx, fmt.Errorf("add player %s: %w", c.AddPlayerID, err))
			}
		}
		team.RosterSize++
		tx.onUndo(func(ctx context.Context) error {
			return e.roster.DropPlayer(ctx, team.ID, c.AddPlayerID)
		})
	}

	// Budget already spent earlier in this run is reflected in team, which
	// was loaded after those deductions were written.
	if league.IsFAAB() && c.BidAmount > 0 {
		if c.BidAmount > team.FAABRemaining {
			return tx.rollback(ctx, failed(domain.ReasonInsufficientFAAB, "bid %d exceeds remaining %d", c.BidAmount, team.FAABRemaining))
		}
		if err := e.roster.DeductBudget(ctx, team.ID, c.BidAmount); err != nil {
			if errors.Is(err, storage.ErrInsufficientBudget) {
				return tx.rollback(ctx, failed(domain.ReasonInsufficientFAAB, "bid %d exceeds remaining budget", c.BidAmount))
			}
			return tx.rollback(ctx, fmt.Errorf("deduct budget: %w", err))
		}
	}

	return nil
}

// rosterTx collects compensating actions for mutations already applied.
type rosterTx struct {
	exec  *Executor
	claim *domain.Claim
	undo  []func(context.Context) error
}

func (tx *rosterTx) onUndo(fn func(context.Context) error) {
	tx.undo = append(tx.undo, fn)
}

// rollback undoes applied mutations in reverse order and returns cause.
// Compensation runs even if ctx was cancelled.
func (tx *rosterTx) rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](ctx); err != nil {
			tx.exec.log.WithFields(claimFields(tx.claim)).
				WithError(err).
				WithField("cause", cause.Error()).
				Error("rollback failed, roster may be inconsistent")
			return fmt.Errorf("rollback after %v: %w", cause, err)
		}
	}
	tx.undo = nil
	return cause
}

func claimFields(c *domain.Claim) logrus.Fields {
	return logrus.Fields{
		"claim_id":    c.ID,
		"team_id":     c.TeamID,
		"league_id":   c.LeagueID,
		"kind":        c.Kind,
		"add_player":  c.AddPlayerID,
		"drop_player": c.DropPlayerID,
		"bid":         c.BidAmount,
	}
}
