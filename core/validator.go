package core

import (
	"time"

	"github.com/holiman/uint256"
)

// RequiredBid returns the lowest amount that outbids highest under minIncreasePercent.
// The threshold is (highest * minIncreasePercent) / 100 with truncating division, so a
// bid at the rounded-down threshold is accepted. ok is false when the threshold does
// not fit in 256 bits, in which case no amount can outbid highest.
func RequiredBid(highest *uint256.Int, minIncreasePercent uint64) (required *uint256.Int, ok bool) {
	product, overflow := new(uint256.Int).MulOverflow(highest, uint256.NewInt(minIncreasePercent))
	if overflow {
		return nil, false
	}
	return product.Div(product, uint256.NewInt(100)), true
}

// BidMeetsThreshold reports whether amount outbids highest under minIncreasePercent.
func BidMeetsThreshold(amount, highest *uint256.Int, minIncreasePercent uint64) bool {
	required, ok := RequiredBid(highest, minIncreasePercent)
	if !ok {
		return false
	}
	return !amount.Lt(required)
}

// ValidateBid decides whether bidder may bid amount against state at time now.
// It has no side effects. Checks run in a fixed order and the first failure wins:
//  1. auction active and now before the deadline (ErrAuctionInactive)
//  2. owner exclusion (ErrCallerIsOwner)
//  3. non-zero amount (ErrZeroAmount) and the optional opening minimum (ErrBelowMinimum)
//  4. minimum increase over the current highest bid (ErrTooLow)
func ValidateBid(bidder Identity, amount *uint256.Int, state AuctionState, policy Policy, now time.Time) error {
	if state.Status != StatusActive || !now.Before(state.Deadline) {
		return ErrAuctionInactive
	}

	if policy.OwnerExcludedFromBidding && bidder == state.Owner {
		return ErrCallerIsOwner
	}

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	if state.HighestBid == nil {
		if policy.MinimumFirstBid != nil && amount.Lt(policy.MinimumFirstBid) {
			return ErrBelowMinimum
		}
		return nil
	}

	if !BidMeetsThreshold(amount, &state.HighestBid.Amount, policy.MinIncreasePercent) {
		return ErrTooLow
	}

	return nil
}
