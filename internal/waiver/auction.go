package waiver

import (
	"context"
	"sort"

	"waiver-wire/internal/domain"
)

// auctionGroup is every claim targeting one player, best bid first.
type auctionGroup struct {
	playerID string
	claims   []*domain.Claim
}

func (g auctionGroup) topBid() int64 {
	return g.claims[0].BidAmount
}

func (g auctionGroup) earliest() domain.Claim {
	first := g.claims[0]
	for _, c := range g.claims[1:] {
		if c.SubmittedAt.Before(first.SubmittedAt) {
			first = c
		}
	}
	return *first
}

// planAuction partitions claims into pure drops and per-player groups.
// Within a group: bid DESC, submitted_at ASC, id ASC.
// Groups: top bid DESC, earliest submission ASC, player id ASC.
// Drops: submitted_at ASC, id ASC.
// The plan depends only on the claim set, so a restarted run over the
// remaining PENDING claims orders them the same way.
func planAuction(claims []*domain.Claim) ([]*domain.Claim, []auctionGroup) {
	var drops []*domain.Claim
	byPlayer := make(map[string][]*domain.Claim)

	for _, c := range claims {
		if !c.Kind.HasAdd() {
			drops = append(drops, c)
			continue
		}
		byPlayer[c.AddPlayerID] = append(byPlayer[c.AddPlayerID], c)
	}

	sort.Slice(drops, func(i, j int) bool {
		return submittedBefore(drops[i], drops[j])
	})

	groups := make([]auctionGroup, 0, len(byPlayer))
	for playerID, group := range byPlayer {
		sort.Slice(group, func(i, j int) bool {
			if group[i].BidAmount != group[j].BidAmount {
				return group[i].BidAmount > group[j].BidAmount
			}
			return submittedBefore(group[i], group[j])
		})
		groups = append(groups, auctionGroup{playerID: playerID, claims: group})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].topBid() != groups[j].topBid() {
			return groups[i].topBid() > groups[j].topBid()
		}
		ei, ej := groups[i].earliest(), groups[j].earliest()
		if !ei.SubmittedAt.Equal(ej.SubmittedAt) {
			return ei.SubmittedAt.Before(ej.SubmittedAt)
		}
		return groups[i].playerID < groups[j].playerID
	})

	return drops, groups
}

func submittedBefore(a, b *domain.Claim) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.ID < b.ID
}

// auctionResolver resolves FAAB leagues: one winner candidate per player.
// If the winner fails execution the player is not re-auctioned to the next
// bidder in the same run.
type auctionResolver struct{}

func (auctionResolver) resolve(ctx context.Context, r *run, pending []*domain.Claim) error {
	drops, groups := planAuction(pending)

	for _, c := range drops {
		if _, err := r.settle(ctx, c, domain.Resolution{CompetingClaims: 1}); err != nil {
			return err
		}
	}

	for _, g := range groups {
		winner := g.claims[0]
		res := domain.Resolution{
			WinningBid:      winner.BidAmount,
			CompetingClaims: len(g.claims),
		}

		if _, err := r.settle(ctx, winner, res); err != nil {
			return err
		}
		for _, loser := range g.claims[1:] {
			if err := r.reject(ctx, loser, domain.ReasonOutbid, res); err != nil {
				return err
			}
		}
	}

	return nil
}
