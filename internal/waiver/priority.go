package waiver

import (
	"context"
	"sort"

	"waiver-wire/internal/domain"
)

// orderByPriority sorts claims by priority_at_submission ASC (1 is best),
// then submitted_at ASC, then id ASC.
func orderByPriority(claims []*domain.Claim) []*domain.Claim {
	ordered := make([]*domain.Claim, len(claims))
	copy(ordered, claims)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].PriorityAtSubmission != ordered[j].PriorityAtSubmission {
			return ordered[i].PriorityAtSubmission < ordered[j].PriorityAtSubmission
		}
		return submittedBefore(ordered[i], ordered[j])
	})
	return ordered
}

// priorityResolver resolves priority leagues: claims are taken in priority
// order and the first executable claim for a player wins it.
type priorityResolver struct{}

func (priorityResolver) resolve(ctx context.Context, r *run, pending []*domain.Claim) error {
	ordered := orderByPriority(pending)

	competing := make(map[string]int)
	for _, c := range ordered {
		if c.Kind.HasAdd() {
			competing[c.AddPlayerID]++
		}
	}

	claimed := make(map[string]bool)
	for _, c := range ordered {
		res := domain.Resolution{CompetingClaims: 1}
		if c.Kind.HasAdd() {
			res.CompetingClaims = competing[c.AddPlayerID]
			if claimed[c.AddPlayerID] {
				if err := r.reject(ctx, c, domain.ReasonPlayerUnavailable, res); err != nil {
					return err
				}
				continue
			}
		}

		reason, err := r.settle(ctx, c, res)
		if err != nil {
			return err
		}

		// A roster or drop failure for one team leaves the player open to
		// the next claim; success or "already taken" closes it.
		if c.Kind.HasAdd() && (reason == "" || reason == domain.ReasonPlayerUnavailable) {
			claimed[c.AddPlayerID] = true
		}
	}

	return nil
}
