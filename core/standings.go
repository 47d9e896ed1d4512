package core

import "sort"

// Standing is one bidder's best accepted bid and its rank among all bidders.
type Standing struct {
	Rank    int
	Bidder  Identity
	BestBid Bid
}

// RankBidders ranks every bidder in the history by their highest accepted bid.
// Equal amounts keep the earlier bid ahead, so the result is deterministic.
func RankBidders(history *BidHistory) []Standing {
	bidders := history.Bidders()
	if len(bidders) == 0 {
		return []Standing{}
	}

	standings := make([]Standing, 0, len(bidders))
	for _, bidder := range bidders {
		var best Bid
		for i, bid := range history.ByBidder(bidder) {
			if i == 0 || best.Amount.Lt(&bid.Amount) {
				best = bid
			}
		}
		standings = append(standings, Standing{Bidder: bidder, BestBid: best})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := &standings[i].BestBid, &standings[j].BestBid
		if cmp := a.Amount.Cmp(&b.Amount); cmp != 0 {
			return cmp > 0
		}
		return a.Sequence < b.Sequence
	})

	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}
