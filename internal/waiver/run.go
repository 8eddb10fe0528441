package waiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/observability"
	"waiver-wire/internal/scheduler"
	"waiver-wire/internal/storage"
)

// resolver decides a league's pending claims, executing winners as it goes.
// It returns an error only for league-level failures that must abort the run.
type resolver interface {
	resolve(ctx context.Context, r *run, pending []*domain.Claim) error
}

func resolverFor(mode domain.WaiverMode) resolver {
	if mode == domain.WaiverModeFAAB {
		return auctionResolver{}
	}
	return priorityResolver{}
}

// run holds the state of one league's resolution pass. It is used by a
// single goroutine; claims are decided strictly in order.
type run struct {
	id     string
	league *domain.League
	exec   *Executor
	claims storage.ClaimStore
	clock  scheduler.Clock
	log    logrus.FieldLogger

	order   int
	decided []*domain.Claim
}

// settle executes c and records its outcome. The returned reason is empty
// on success.
func (r *run) settle(ctx context.Context, c *domain.Claim, res domain.Resolution) (domain.FailureReason, error) {
	reason, err := r.classify(c, r.exec.Execute(ctx, r.league, c))
	if err != nil {
		return "", err
	}

	if reason == "" {
		c.Succeed(res)
	} else {
		c.Fail(reason, res)
	}
	return reason, r.finalize(ctx, c)
}

// reject fails c without executing it.
func (r *run) reject(ctx context.Context, c *domain.Claim, reason domain.FailureReason, res domain.Resolution) error {
	c.Fail(reason, res)
	return r.finalize(ctx, c)
}

// classify maps an execution result to a failure reason. League-level faults
// (store unreachable, context done) are returned as errors instead.
func (r *run) classify(c *domain.Claim, err error) (domain.FailureReason, error) {
	if err == nil {
		return "", nil
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		r.log.WithFields(claimFields(c)).WithField("reason", execErr.Reason).Debug(execErr.Error())
		return execErr.Reason, nil
	}

	if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("execute claim %s: %w", c.ID, err)
	}

	r.log.WithFields(claimFields(c)).WithError(err).Error("claim processing error")
	observability.RecordProcessingError(string(r.league.Rules.Mode))
	return domain.ReasonProcessingError, nil
}

// finalize stamps run metadata on c and persists its terminal state.
func (r *run) finalize(ctx context.Context, c *domain.Claim) error {
	r.order++
	now := r.clock.Now()
	c.Resolution.RunID = r.id
	c.Resolution.ProcessingOrder = r.order
	c.Resolution.ProcessedAt = now
	c.UpdatedAt = now

	if err := r.claims.Finalize(ctx, c); err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			r.log.WithFields(claimFields(c)).Error("claim left PENDING during run, outcome not recorded")
			return nil
		}
		return fmt.Errorf("finalize claim %s: %w", c.ID, err)
	}

	observability.RecordClaimResolved(string(c.Status), string(c.FailureReason))
	r.decided = append(r.decided, c)
	return nil
}
