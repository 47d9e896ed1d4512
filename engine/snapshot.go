package engine

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/englishauction/core"
)

// Snapshot is a consistent copy of the engine's accounting state.
type Snapshot struct {
	AuctionID        string
	Status           core.Status
	Deadline         time.Time
	HighestBid       *core.Bid
	Winner           *core.Bid
	BidCount         int
	LedgerTotal      *uint256.Int
	UnclaimedWinning *uint256.Int
	CommissionPool   *uint256.Int
	BatchRefunded    bool
	Received         *uint256.Int
	Balance          *uint256.Int

	// HistoryDigest chains the bid history as of this snapshot.
	HistoryDigest string
}

// Liabilities is what the engine still owes: every ledger entry, the live highest
// bid while Active or the unclaimed winning amount once Ended, and the unclaimed
// commission.
func (s Snapshot) Liabilities() *uint256.Int {
	total := new(uint256.Int).Add(s.LedgerTotal, s.CommissionPool)
	if s.Status == core.StatusActive {
		if s.HighestBid != nil {
			total.Add(total, &s.HighestBid.Amount)
		}
	} else {
		total.Add(total, s.UnclaimedWinning)
	}
	return total
}

// Conserved reports whether liabilities never exceed what the engine has received.
func (s Snapshot) Conserved() bool {
	return !s.Received.Lt(s.Liabilities())
}

// Snapshot returns the current accounting state and history digest, read in one
// exclusive section.
func (e *Engine) Snapshot(ctx context.Context) Snapshot {
	_, leave := e.enter(ctx)
	defer leave()

	s := Snapshot{
		AuctionID:        e.id,
		Status:           e.status,
		Deadline:         e.deadline,
		BidCount:         e.history.Len(),
		LedgerTotal:      e.ledger.Total(),
		UnclaimedWinning: new(uint256.Int).Set(&e.unclaimedWinning),
		CommissionPool:   new(uint256.Int).Set(&e.commissionPool),
		BatchRefunded:    e.batchRefunded,
		Received:         new(uint256.Int).Set(&e.received),
		Balance:          new(uint256.Int).Set(&e.balance),
		HistoryDigest:    core.ComputeHistoryDigest(e.id, e.history.All()),
	}
	if e.highest != nil {
		highest := *e.highest
		s.HighestBid = &highest
	}
	if e.winner != nil {
		winner := *e.winner
		s.Winner = &winner
	}
	return s
}
