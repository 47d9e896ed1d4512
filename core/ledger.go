package core

import (
	"sort"

	"github.com/holiman/uint256"
)

// RefundLedger maps each identity to the amount the auction owes it back.
// Credits are additive: a participant outbid twice holds both displaced amounts in
// one entry. The ledger is not safe for concurrent use; the engine serializes access.
type RefundLedger struct {
	balances map[Identity]*uint256.Int
}

// NewRefundLedger returns an empty ledger.
func NewRefundLedger() *RefundLedger {
	return &RefundLedger{balances: make(map[Identity]*uint256.Int)}
}

// Credit adds amount to the entry for id.
func (l *RefundLedger) Credit(id Identity, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	entry, ok := l.balances[id]
	if !ok {
		l.balances[id] = new(uint256.Int).Set(amount)
		return
	}
	entry.Add(entry, amount)
}

// Withdraw zeroes the entry for id and returns what it held. The entry is already
// zero when Withdraw returns, before the caller attempts any transfer.
func (l *RefundLedger) Withdraw(id Identity) (*uint256.Int, error) {
	entry, ok := l.balances[id]
	if !ok || entry.IsZero() {
		return nil, ErrNoRefund
	}
	delete(l.balances, id)
	return entry, nil
}

// Balance returns a copy of the entry for id (zero when absent).
func (l *RefundLedger) Balance(id Identity) *uint256.Int {
	entry, ok := l.balances[id]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(entry)
}

// Total returns the sum of all entries.
func (l *RefundLedger) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, entry := range l.balances {
		total.Add(total, entry)
	}
	return total
}

// Entries returns a copy of every nonzero entry.
func (l *RefundLedger) Entries() map[Identity]*uint256.Int {
	out := make(map[Identity]*uint256.Int, len(l.balances))
	for id, entry := range l.balances {
		out[id] = new(uint256.Int).Set(entry)
	}
	return out
}

// Identities returns the identities holding a nonzero entry, sorted.
func (l *RefundLedger) Identities() []Identity {
	ids := make([]Identity, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
