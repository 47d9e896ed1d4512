package core

import (
	"time"

	"github.com/holiman/uint256"
)

// Identity is the opaque caller identifier handed to the engine by the transport layer.
type Identity string

// Status is the lifecycle state of the auction. It moves from StatusActive to
// StatusEnded exactly once.
type Status int

const (
	StatusActive Status = iota
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Bid is a single accepted bid. Bids are immutable once recorded; accessors hand
// out copies of the amount.
type Bid struct {
	Bidder   Identity
	Amount   uint256.Int
	Sequence uint64
	PlacedAt time.Time
}

// AmountValue returns a copy of the bid amount.
func (b Bid) AmountValue() *uint256.Int {
	return new(uint256.Int).Set(&b.Amount)
}

// Policy holds the constants fixed when the auction is created.
type Policy struct {
	// Duration is the initial auction length measured from creation.
	Duration time.Duration

	// MinIncreasePercent is the required ratio to the current highest bid,
	// e.g. 105 requires at least 5% over the current highest.
	MinIncreasePercent uint64

	// CommissionPercent is withheld from fee-bearing refunds and credited to the owner.
	CommissionPercent uint64

	// ExtensionWindow is the margin before the deadline in which an accepted bid
	// pushes the deadline forward by the same amount.
	ExtensionWindow time.Duration

	// MinimumFirstBid, when set, is the lowest acceptable opening bid.
	MinimumFirstBid *uint256.Int

	OwnerExcludedFromBidding bool
	AnyoneMayFinalize        bool

	// FeeOnEarlyWithdrawal applies the commission to self-service withdrawals made
	// after the auction has ended.
	FeeOnEarlyWithdrawal bool
}

const (
	DefaultDuration           = 7 * 24 * time.Hour
	DefaultMinIncreasePercent = 105
	DefaultCommissionPercent  = 2
	DefaultExtensionWindow    = 10 * time.Minute
)

// DefaultPolicy returns the policy most variants were deployed with.
func DefaultPolicy() Policy {
	return Policy{
		Duration:           DefaultDuration,
		MinIncreasePercent: DefaultMinIncreasePercent,
		CommissionPercent:  DefaultCommissionPercent,
		ExtensionWindow:    DefaultExtensionWindow,
	}
}

// AuctionState is the part of the auction state the validator reads.
type AuctionState struct {
	Status     Status
	Deadline   time.Time
	Owner      Identity
	HighestBid *Bid
}
