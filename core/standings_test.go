package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestRankBidders(t *testing.T) {
	history := NewBidHistory()
	history.Append(testBid(1, "alice", 100))
	history.Append(testBid(2, "bob", 105))
	history.Append(testBid(3, "carol", 111))
	history.Append(testBid(4, "alice", 117))

	standings := RankBidders(history)

	check.Equal(t, 3, len(standings))

	check.Equal(t, Identity("alice"), standings[0].Bidder)
	check.Equal(t, 1, standings[0].Rank)
	check.Equal(t, uint64(117), standings[0].BestBid.Amount.Uint64())

	check.Equal(t, Identity("carol"), standings[1].Bidder)
	check.Equal(t, 2, standings[1].Rank)

	check.Equal(t, Identity("bob"), standings[2].Bidder)
	check.Equal(t, 3, standings[2].Rank)
}

func TestRankBidders_TiesKeepEarlierBidAhead(t *testing.T) {
	history := NewBidHistory()
	history.Append(testBid(1, "alice", 100))
	history.Append(testBid(2, "bob", 100))

	standings := RankBidders(history)

	check.Equal(t, Identity("alice"), standings[0].Bidder)
	check.Equal(t, Identity("bob"), standings[1].Bidder)
}

func TestRankBidders_Empty(t *testing.T) {
	standings := RankBidders(NewBidHistory())

	check.NotNil(t, standings)
	check.Equal(t, 0, len(standings))
}
