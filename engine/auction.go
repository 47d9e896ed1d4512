package engine

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/englishauction/core"
)

func (e *Engine) state() core.AuctionState {
	return core.AuctionState{
		Status:     e.status,
		Deadline:   e.deadline,
		Owner:      e.owner,
		HighestBid: e.highest,
	}
}

// Placement is an accepted bid together with the deadline and status it left the
// auction in.
type Placement struct {
	Bid      core.Bid
	Deadline time.Time
	Status   core.Status
}

// PlaceBid accepts amount from bidder if it passes validation. The displaced highest
// bid is credited to its bidder's refund entry, and a bid landing less than the
// extension window before the deadline pushes the deadline out by the window. There
// is no cap on repeated extensions.
func (e *Engine) PlaceBid(ctx context.Context, bidder core.Identity, amount *uint256.Int, now time.Time) (Placement, error) {
	_, leave := e.enter(ctx)
	defer leave()

	if err := core.ValidateBid(bidder, amount, e.state(), e.policy, now); err != nil {
		e.metrics.bidRejected(core.CodeOf(err))
		e.log.Debug().
			Str("bidder", string(bidder)).
			Str("amount", formatAmount(amount)).
			Err(err).
			Msg("bid rejected")
		return Placement{}, err
	}

	if e.highest != nil {
		e.ledger.Credit(e.highest.Bidder, &e.highest.Amount)
	}

	e.bidSeq++
	bid := core.Bid{
		Bidder:   bidder,
		Sequence: e.bidSeq,
		PlacedAt: now,
	}
	bid.Amount.Set(amount)

	e.highest = &bid
	e.history.Append(bid)
	e.received.Add(&e.received, amount)
	e.balance.Add(&e.balance, amount)

	extended := false
	if e.deadline.Sub(now) < e.policy.ExtensionWindow {
		e.deadline = e.deadline.Add(e.policy.ExtensionWindow)
		extended = true
	}

	e.metrics.bidAccepted()
	e.log.Debug().
		Str("bidder", string(bidder)).
		Str("amount", formatAmount(amount)).
		Uint64("sequence", bid.Sequence).
		Bool("extended", extended).
		Time("deadline", e.deadline).
		Msg("bid accepted")
	e.emit(BidAccepted, bidder, amount, nil, now)

	// Unreachable while validation requires now < deadline and extension only moves
	// the deadline later; kept so an accepted bid can never outlive the deadline.
	if !now.Before(e.deadline) {
		e.finalizeLocked(AuctionEnded, now)
	}

	return Placement{Bid: bid, Deadline: e.deadline, Status: e.status}, nil
}

// Finalize ends the auction once the deadline has passed. Unless the policy lets
// anyone finalize, only the owner may call it.
func (e *Engine) Finalize(ctx context.Context, caller core.Identity, now time.Time) (*core.Bid, error) {
	_, leave := e.enter(ctx)
	defer leave()

	if e.status == core.StatusEnded {
		return nil, core.ErrAlreadyEnded
	}
	if !e.policy.AnyoneMayFinalize && caller != e.owner {
		return nil, core.ErrNotOwner
	}
	if now.Before(e.deadline) {
		return nil, core.ErrStillActive
	}

	return e.finalizeLocked(AuctionEnded, now), nil
}

// EmergencyFinalize lets the owner end the auction before the deadline, provided at
// least one bid has been accepted.
func (e *Engine) EmergencyFinalize(ctx context.Context, caller core.Identity, now time.Time) (*core.Bid, error) {
	_, leave := e.enter(ctx)
	defer leave()

	if e.status == core.StatusEnded {
		return nil, core.ErrAlreadyEnded
	}
	if caller != e.owner {
		return nil, core.ErrNotOwner
	}
	if e.history.Len() == 0 {
		return nil, core.ErrNoBids
	}

	return e.finalizeLocked(AuctionForceEnded, now), nil
}

// finalizeLocked performs the one Active to Ended transition. The winner is a copy of
// the highest bid at this instant.
func (e *Engine) finalizeLocked(kind NotificationKind, now time.Time) *core.Bid {
	e.status = core.StatusEnded

	var subject core.Identity
	amount := new(uint256.Int)
	if e.highest != nil {
		winner := *e.highest
		e.winner = &winner
		subject = winner.Bidder
		amount = winner.AmountValue()
		e.unclaimedWinning.Set(amount)
	}

	e.metrics.finalized(kind)
	e.log.Info().
		Str("kind", string(kind)).
		Str("winner", string(subject)).
		Str("amount", formatAmount(amount)).
		Msg("auction ended")
	e.emit(kind, subject, amount, nil, now)

	if e.winner == nil {
		return nil
	}
	winner := *e.winner
	return &winner
}
