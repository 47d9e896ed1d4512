package engine

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/englishauction/core"
)

// NotificationKind names the effect a notification records.
type NotificationKind string

const (
	BidAccepted         NotificationKind = "bid_accepted"
	AuctionEnded        NotificationKind = "auction_ended"
	AuctionForceEnded   NotificationKind = "auction_force_ended"
	RefundIssuedNoFee   NotificationKind = "refund_issued_no_fee"
	RefundIssuedWithFee NotificationKind = "refund_issued_with_fee"
	OwnerClaimed        NotificationKind = "owner_claimed"
	EmergencyDrained    NotificationKind = "emergency_drained"
)

// Notification is one ordered record of a state change. Sequence numbers start at 1
// and increase by one per notification across the lifetime of the engine.
type Notification struct {
	AuctionID string
	Kind      NotificationKind
	Subject   core.Identity
	Amount    uint256.Int
	// Fee is the commission withheld, set only on RefundIssuedWithFee.
	Fee      uint256.Int
	Sequence uint64
	At       time.Time
}

// Sink receives notifications in order. Publish is called while the engine holds its
// exclusive section, so implementations must not call back into the engine.
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Publish(n Notification) { f(n) }

type discardSink struct{}

func (discardSink) Publish(Notification) {}
