package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/englishauction/core"
)

var t0 = time.Unix(1700000000, 0).UTC()

const owner core.Identity = "owner"

// transfer is one call observed by MockPayer.
type transfer struct {
	To     core.Identity
	Amount uint64
}

// MockPayer implements Payer for testing. SendFunc, when set, decides the outcome;
// successful transfers are recorded.
type MockPayer struct {
	SendFunc  func(ctx context.Context, to core.Identity, amount *uint256.Int) error
	mu        sync.Mutex
	transfers []transfer
}

func (m *MockPayer) Send(ctx context.Context, to core.Identity, amount *uint256.Int) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, to, amount); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, transfer{To: to, Amount: amount.Uint64()})
	return nil
}

func (m *MockPayer) Transfers() []transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// recorder is a Sink that keeps every notification.
type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) Publish(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) Kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(r.notes))
	for _, n := range r.notes {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (r *recorder) Last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes[len(r.notes)-1]
}

func (r *recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// newTestEngine creates an engine owned by "owner" at t0 with a recording sink.
func newTestEngine(t *testing.T, policy core.Policy, payer Payer) (*Engine, *recorder) {
	t.Helper()
	sink := &recorder{}
	e, err := New(owner, policy, t0, payer, WithSink(sink), WithAuctionID("test-auction"))
	assert.NoError(t, err)
	return e, sink
}

func amt(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// mustBid places a bid that the test expects to be accepted.
func mustBid(t *testing.T, e *Engine, bidder core.Identity, amount uint64, now time.Time) core.Bid {
	t.Helper()
	placed, err := e.PlaceBid(context.Background(), bidder, amt(amount), now)
	assert.NoError(t, err)
	return placed.Bid
}

// endAuction places the given bids an hour apart and finalizes after the deadline.
func endAuction(t *testing.T, e *Engine, bids ...bidSpec) {
	t.Helper()
	now := t0
	for _, b := range bids {
		now = now.Add(time.Hour)
		mustBid(t, e, b.Bidder, b.Amount, now)
	}
	_, err := e.Finalize(context.Background(), owner, e.Deadline(context.Background()))
	assert.NoError(t, err)
}

type bidSpec struct {
	Bidder core.Identity
	Amount uint64
}

// assertConserved fails the test when liabilities exceed what was received.
func assertConserved(t *testing.T, e *Engine) {
	t.Helper()
	s := e.Snapshot(context.Background())
	assert.True(t, s.Conserved())
}
