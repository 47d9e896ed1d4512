package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeBidHash computes the audit hash of a single accepted bid.
//
// Formula: SHA256(sequence + "|" + bidder + "|" + decimal(amount) + "|" + unix_nanos(placed_at))
//
// The amount is rendered as a base-10 integer so the hash does not depend on the
// in-memory representation.
func ComputeBidHash(bid Bid) string {
	data := fmt.Sprintf("%d|%s|%s|%d", bid.Sequence, bid.Bidder, bid.Amount.Dec(), bid.PlacedAt.UnixNano())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeHistoryDigest chains the bid hashes of a history in acceptance order.
//
// Formula: d_0 = SHA256(auction_id), d_i = SHA256(d_{i-1} + "|" + bid_hash_i)
//
// Two histories produce the same digest only if they hold the same bids in the same order.
func ComputeHistoryDigest(auctionID string, bids []Bid) string {
	digest := fmt.Sprintf("%x", sha256.Sum256([]byte(auctionID)))
	for _, bid := range bids {
		next := sha256.Sum256([]byte(digest + "|" + ComputeBidHash(bid)))
		digest = fmt.Sprintf("%x", next)
	}
	return digest
}
