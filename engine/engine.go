// Package engine implements the single-asset English auction: bid acceptance with
// deadline extension, the refund ledger discipline, finalization, and settlement.
//
// Every operation runs inside one exclusive section. State changes that precede a
// transfer are committed before the Payer is invoked, and a failed transfer is
// compensated before the section is released.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/englishauction/core"
)

// Engine owns all mutable auction state.
type Engine struct {
	mu sync.Mutex

	id        string
	owner     core.Identity
	policy    core.Policy
	createdAt time.Time

	status   core.Status
	deadline time.Time
	highest  *core.Bid
	winner   *core.Bid

	ledger  *core.RefundLedger
	history *core.BidHistory

	// unclaimedWinning is the winner's amount until the owner claims it.
	unclaimedWinning uint256.Int
	commissionPool   uint256.Int
	batchRefunded    bool

	// received is everything ever taken in; balance is what is still held.
	received uint256.Int
	balance  uint256.Int

	bidSeq  uint64
	noteSeq uint64

	payer   Payer
	sink    Sink
	log     zerolog.Logger
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets the notification sink. The default discards notifications.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithLogger sets the logger. The default is zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuctionID overrides the generated auction id.
func WithAuctionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.id = id
		}
	}
}

// New creates an Active auction owned by owner whose deadline is createdAt plus
// policy.Duration.
func New(owner core.Identity, policy core.Policy, createdAt time.Time, payer Payer, opts ...Option) (*Engine, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner identity is required")
	}
	if payer == nil {
		return nil, fmt.Errorf("payer is required")
	}
	if policy.Duration <= 0 {
		return nil, fmt.Errorf("invalid auction duration %s", policy.Duration)
	}
	if policy.ExtensionWindow < 0 {
		return nil, fmt.Errorf("invalid extension window %s", policy.ExtensionWindow)
	}
	if policy.MinIncreasePercent < 100 {
		return nil, fmt.Errorf("invalid minimum increase percent %d", policy.MinIncreasePercent)
	}
	if policy.CommissionPercent > 100 {
		return nil, fmt.Errorf("invalid commission percent %d", policy.CommissionPercent)
	}
	if policy.MinimumFirstBid != nil {
		policy.MinimumFirstBid = new(uint256.Int).Set(policy.MinimumFirstBid)
	}

	e := &Engine{
		id:        uuid.NewString(),
		owner:     owner,
		policy:    policy,
		createdAt: createdAt,
		status:    core.StatusActive,
		deadline:  createdAt.Add(policy.Duration),
		ledger:    core.NewRefundLedger(),
		history:   core.NewBidHistory(),
		payer:     payer,
		sink:      discardSink{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("auction_id", e.id).Logger()

	e.log.Info().
		Str("owner", string(owner)).
		Time("deadline", e.deadline).
		Uint64("min_increase_percent", policy.MinIncreasePercent).
		Uint64("commission_percent", policy.CommissionPercent).
		Msg("auction created")

	return e, nil
}

type sectionKey struct{}

// enter acquires the exclusive section unless ctx already carries it for this engine.
// The returned context marks the section and is what the Payer receives.
func (e *Engine) enter(ctx context.Context) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if held, _ := ctx.Value(sectionKey{}).(*Engine); held == e {
		return ctx, func() {}
	}
	e.mu.Lock()
	return context.WithValue(ctx, sectionKey{}, e), e.mu.Unlock
}

func (e *Engine) emit(kind NotificationKind, subject core.Identity, amount, fee *uint256.Int, at time.Time) {
	e.noteSeq++
	n := Notification{
		AuctionID: e.id,
		Kind:      kind,
		Subject:   subject,
		Sequence:  e.noteSeq,
		At:        at,
	}
	if amount != nil {
		n.Amount.Set(amount)
	}
	if fee != nil {
		n.Fee.Set(fee)
	}
	e.sink.Publish(n)
	e.metrics.balances(e.ledger.Total(), &e.commissionPool)
}

// ID returns the auction id.
func (e *Engine) ID() string { return e.id }

// Owner returns the privileged identity the auction was created with.
func (e *Engine) Owner() core.Identity { return e.owner }

// Policy returns the policy constants.
func (e *Engine) Policy() core.Policy {
	p := e.policy
	if p.MinimumFirstBid != nil {
		p.MinimumFirstBid = new(uint256.Int).Set(p.MinimumFirstBid)
	}
	return p
}

// Status returns the current lifecycle state.
func (e *Engine) Status(ctx context.Context) core.Status {
	_, leave := e.enter(ctx)
	defer leave()
	return e.status
}

// Deadline returns the current deadline, including any extensions.
func (e *Engine) Deadline(ctx context.Context) time.Time {
	_, leave := e.enter(ctx)
	defer leave()
	return e.deadline
}

// RemainingTime returns the time left before the deadline, never negative, and zero
// once the auction has ended.
func (e *Engine) RemainingTime(ctx context.Context, now time.Time) time.Duration {
	_, leave := e.enter(ctx)
	defer leave()
	if e.status == core.StatusEnded {
		return 0
	}
	remaining := e.deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HighestBid returns a copy of the current highest bid.
func (e *Engine) HighestBid(ctx context.Context) (core.Bid, bool) {
	_, leave := e.enter(ctx)
	defer leave()
	if e.highest == nil {
		return core.Bid{}, false
	}
	return *e.highest, true
}

// Winner returns a copy of the winning bid, or nil when the auction ended without
// bids. It fails with core.ErrStillActive until the auction has ended.
func (e *Engine) Winner(ctx context.Context) (*core.Bid, error) {
	_, leave := e.enter(ctx)
	defer leave()
	if e.status != core.StatusEnded {
		return nil, core.ErrStillActive
	}
	if e.winner == nil {
		return nil, nil
	}
	winner := *e.winner
	return &winner, nil
}

// Bids returns every accepted bid in acceptance order.
func (e *Engine) Bids(ctx context.Context) []core.Bid {
	_, leave := e.enter(ctx)
	defer leave()
	return e.history.All()
}

// Standings ranks bidders by their best accepted bid.
func (e *Engine) Standings(ctx context.Context) []core.Standing {
	_, leave := e.enter(ctx)
	defer leave()
	return core.RankBidders(e.history)
}

// RefundBalance returns the refundable amount currently held for id.
func (e *Engine) RefundBalance(ctx context.Context, id core.Identity) *uint256.Int {
	_, leave := e.enter(ctx)
	defer leave()
	return e.ledger.Balance(id)
}

// HistoryDigest returns the chained SHA-256 digest of the bid history.
func (e *Engine) HistoryDigest(ctx context.Context) string {
	_, leave := e.enter(ctx)
	defer leave()
	return core.ComputeHistoryDigest(e.id, e.history.All())
}
