package auctionapi

import (
	"errors"
	"time"

	"github.com/cloudx-io/englishauction/core"
	"github.com/cloudx-io/englishauction/engine"
)

// Request types accepted by the auction server.
const (
	TypePlaceBid          = "place_bid"
	TypeSelfWithdraw      = "self_withdraw"
	TypeFinalize          = "finalize"
	TypeEmergencyFinalize = "emergency_finalize"
	TypeBatchRefund       = "batch_refund"
	TypeOwnerClaim        = "owner_claim"
	TypeEmergencyDrain    = "emergency_drain"
	TypeGetWinner         = "get_winner"
	TypeGetBids           = "get_bids"
	TypeGetRemainingTime  = "get_remaining_time"
	TypeGetHighestBid     = "get_highest_bid"
	TypeGetStandings      = "get_standings"
	TypeGetSnapshot       = "get_snapshot"
	TypeGetRefund         = "get_refund"
	TypeGetNotifications  = "get_notifications"
	TypeAttest            = "attest"
	TypePing              = "ping"
)

// Request is the envelope for every request. Fields a type does not use are ignored.
type Request struct {
	Type string `json:"type"`

	// Caller is the identity the transport authenticated for this request.
	Caller string `json:"caller,omitempty"`

	// Amount is a decimal string of base units (place_bid).
	Amount string `json:"amount,omitempty"`

	// Bidder selects the ledger entry to report (get_refund).
	Bidder string `json:"bidder,omitempty"`

	// After returns notifications with a greater sequence (get_notifications).
	After uint64 `json:"after,omitempty"`

	// Nonce is echoed into the attestation user data (attest).
	Nonce string `json:"nonce,omitempty"`
}

// ErrorBody classifies a failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// KindRequest marks errors raised before the engine was reached, such as malformed
// JSON or an unparseable amount.
const KindRequest = "request"

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Type    string    `json:"type"`
	Request string    `json:"request,omitempty"`
	Error   ErrorBody `json:"error"`
}

// NewErrorResponse maps err to its wire form. Domain errors keep their kind and
// code; anything else is reported as a request error.
func NewErrorResponse(requestType string, err error) ErrorResponse {
	body := ErrorBody{Kind: KindRequest, Message: err.Error()}
	var domainErr *core.Error
	if errors.As(err, &domainErr) {
		body.Kind = string(domainErr.Kind)
		body.Code = domainErr.Code
	}
	return ErrorResponse{Type: "error", Request: requestType, Error: body}
}

// BidView is the wire form of an accepted bid.
type BidView struct {
	Bidder   string    `json:"bidder"`
	Amount   string    `json:"amount"`
	Sequence uint64    `json:"sequence"`
	PlacedAt time.Time `json:"placed_at"`
}

// NewBidView converts a bid for the wire. A nil bid yields nil.
func NewBidView(bid *core.Bid) *BidView {
	if bid == nil {
		return nil
	}
	return &BidView{
		Bidder:   string(bid.Bidder),
		Amount:   FormatAmount(&bid.Amount),
		Sequence: bid.Sequence,
		PlacedAt: bid.PlacedAt,
	}
}

// PayoutView is the wire form of one disbursement.
type PayoutView struct {
	To    string `json:"to"`
	Gross string `json:"gross"`
	Fee   string `json:"fee"`
	Net   string `json:"net"`
}

func NewPayoutView(p engine.Payout) PayoutView {
	return PayoutView{
		To:    string(p.To),
		Gross: FormatAmount(p.Gross),
		Fee:   FormatAmount(p.Fee),
		Net:   FormatAmount(p.Net),
	}
}

// BidResponse answers place_bid.
type BidResponse struct {
	Type     string    `json:"type"`
	Bid      BidView   `json:"bid"`
	Deadline time.Time `json:"deadline"`
	Status   string    `json:"status"`
}

// PayoutResponse answers self_withdraw.
type PayoutResponse struct {
	Type   string     `json:"type"`
	Payout PayoutView `json:"payout"`
}

// BatchRefundResponse answers batch_refund.
type BatchRefundResponse struct {
	Type    string       `json:"type"`
	Payouts []PayoutView `json:"payouts"`
}

// AmountResponse answers owner_claim, emergency_drain and get_refund.
type AmountResponse struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// WinnerResponse answers finalize, emergency_finalize and get_winner. Winner is
// absent when the auction ended without bids.
type WinnerResponse struct {
	Type   string   `json:"type"`
	Winner *BidView `json:"winner,omitempty"`
}

// BidsResponse answers get_bids.
type BidsResponse struct {
	Type string    `json:"type"`
	Bids []BidView `json:"bids"`
}

// RemainingTimeResponse answers get_remaining_time.
type RemainingTimeResponse struct {
	Type             string    `json:"type"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Deadline         time.Time `json:"deadline"`
	Status           string    `json:"status"`
}

// HighestBidResponse answers get_highest_bid.
type HighestBidResponse struct {
	Type       string   `json:"type"`
	HighestBid *BidView `json:"highest_bid,omitempty"`
}

// StandingView is one ranked bidder.
type StandingView struct {
	Rank    int     `json:"rank"`
	Bidder  string  `json:"bidder"`
	BestBid BidView `json:"best_bid"`
}

// StandingsResponse answers get_standings.
type StandingsResponse struct {
	Type      string         `json:"type"`
	Standings []StandingView `json:"standings"`
}

// SnapshotView is the wire form of the accounting state.
type SnapshotView struct {
	AuctionID        string    `json:"auction_id"`
	Status           string    `json:"status"`
	Deadline         time.Time `json:"deadline"`
	HighestBid       *BidView  `json:"highest_bid,omitempty"`
	Winner           *BidView  `json:"winner,omitempty"`
	BidCount         int       `json:"bid_count"`
	LedgerTotal      string    `json:"ledger_total"`
	UnclaimedWinning string    `json:"unclaimed_winning"`
	CommissionPool   string    `json:"commission_pool"`
	BatchRefunded    bool      `json:"batch_refunded"`
	Received         string    `json:"received"`
	Balance          string    `json:"balance"`
	Liabilities      string    `json:"liabilities"`
	HistoryDigest    string    `json:"history_digest"`
}

func NewSnapshotView(s engine.Snapshot) SnapshotView {
	return SnapshotView{
		AuctionID:        s.AuctionID,
		Status:           s.Status.String(),
		Deadline:         s.Deadline,
		HighestBid:       NewBidView(s.HighestBid),
		Winner:           NewBidView(s.Winner),
		BidCount:         s.BidCount,
		LedgerTotal:      FormatAmount(s.LedgerTotal),
		UnclaimedWinning: FormatAmount(s.UnclaimedWinning),
		CommissionPool:   FormatAmount(s.CommissionPool),
		BatchRefunded:    s.BatchRefunded,
		Received:         FormatAmount(s.Received),
		Balance:          FormatAmount(s.Balance),
		Liabilities:      FormatAmount(s.Liabilities()),
		HistoryDigest:    s.HistoryDigest,
	}
}

// SnapshotResponse answers get_snapshot.
type SnapshotResponse struct {
	Type     string       `json:"type"`
	Snapshot SnapshotView `json:"snapshot"`
}

// NotificationView is the wire form of one notification.
type NotificationView struct {
	Sequence uint64    `json:"sequence"`
	Kind     string    `json:"kind"`
	Subject  string    `json:"subject,omitempty"`
	Amount   string    `json:"amount"`
	Fee      string    `json:"fee,omitempty"`
	At       time.Time `json:"at"`
}

func NewNotificationView(n engine.Notification) NotificationView {
	view := NotificationView{
		Sequence: n.Sequence,
		Kind:     string(n.Kind),
		Subject:  string(n.Subject),
		Amount:   FormatAmount(&n.Amount),
		At:       n.At,
	}
	if n.Kind == engine.RefundIssuedWithFee {
		view.Fee = FormatAmount(&n.Fee)
	}
	return view
}

// NotificationsResponse answers get_notifications.
type NotificationsResponse struct {
	Type          string             `json:"type"`
	Notifications []NotificationView `json:"notifications"`
}

// AttestResponse answers attest with a Nitro attestation document whose user data
// binds the current state digest.
type AttestResponse struct {
	Type        string                   `json:"type"`
	Attestation COSEBase64               `json:"attestation_cose_base64"`
	UserData    StateAttestationUserData `json:"user_data"`
}

// PongResponse answers ping.
type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ResponseType names the success response for a request type.
func ResponseType(requestType string) string {
	if requestType == TypePing {
		return "pong"
	}
	return requestType + "_response"
}
