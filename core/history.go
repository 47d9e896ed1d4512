package core

// BidHistory is the append-only log of accepted bids in acceptance order, with an
// index from bidder to the positions of that bidder's bids.
type BidHistory struct {
	bids     []Bid
	byBidder map[Identity][]int
	order    []Identity
}

// NewBidHistory returns an empty history.
func NewBidHistory() *BidHistory {
	return &BidHistory{byBidder: make(map[Identity][]int)}
}

// Append records bid at the end of the log.
func (h *BidHistory) Append(bid Bid) {
	if _, seen := h.byBidder[bid.Bidder]; !seen {
		h.order = append(h.order, bid.Bidder)
	}
	h.byBidder[bid.Bidder] = append(h.byBidder[bid.Bidder], len(h.bids))
	h.bids = append(h.bids, bid)
}

// Len returns the number of recorded bids.
func (h *BidHistory) Len() int {
	return len(h.bids)
}

// All returns a copy of the log.
func (h *BidHistory) All() []Bid {
	out := make([]Bid, len(h.bids))
	copy(out, h.bids)
	return out
}

// ByBidder returns a copy of the bids placed by id, in acceptance order.
func (h *BidHistory) ByBidder(id Identity) []Bid {
	positions := h.byBidder[id]
	out := make([]Bid, 0, len(positions))
	for _, pos := range positions {
		out = append(out, h.bids[pos])
	}
	return out
}

// Bidders returns each distinct bidder once, in order of first appearance.
func (h *BidHistory) Bidders() []Identity {
	out := make([]Identity, len(h.order))
	copy(out, h.order)
	return out
}
