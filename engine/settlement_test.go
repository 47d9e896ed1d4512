package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloudx-io/englishauction/core"
)

var errBankDown = errors.New("bank unavailable")

func TestSelfWithdraw_BeforeFinalizeIsFeeFree(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)

	payout, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)

	check.Equal(t, uint64(100), payout.Net.Uint64())
	check.True(t, payout.Fee.IsZero())
	check.Equal(t, []transfer{{To: "alice", Amount: 100}}, payer.Transfers())
	check.True(t, e.RefundBalance(ctx, "alice").IsZero())
	check.True(t, e.Snapshot(ctx).CommissionPool.IsZero())

	last := sink.Last()
	check.Equal(t, RefundIssuedNoFee, last.Kind)
	check.Equal(t, core.Identity("alice"), last.Subject)
	check.Equal(t, uint64(100), last.Amount.Uint64())

	assertConserved(t, e)
}

func TestSelfWithdraw_IsIdempotent(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)

	_, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)
	notes := len(sink.All())

	_, err = e.SelfWithdraw(ctx, "alice", now)
	check.True(t, errors.Is(err, core.ErrNoRefund))
	check.Equal(t, 1, len(payer.Transfers()))
	check.Equal(t, notes, len(sink.All()))

	// The current highest bidder has nothing to withdraw
	_, err = e.SelfWithdraw(ctx, "bob", now)
	check.True(t, errors.Is(err, core.ErrNoRefund))
}

func TestSelfWithdraw_AfterFinalizeFeePolicy(t *testing.T) {
	tests := []struct {
		name        string
		feeFlag     bool
		expectedNet uint64
		expectedFee uint64
		kind        NotificationKind
	}{
		{"fee charged when flag set", true, 98, 2, RefundIssuedWithFee},
		{"no fee when flag clear", false, 100, 0, RefundIssuedNoFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := core.DefaultPolicy()
			policy.FeeOnEarlyWithdrawal = tt.feeFlag
			payer := &MockPayer{}
			e, sink := newTestEngine(t, policy, payer)
			ctx := context.Background()

			endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105})

			payout, err := e.SelfWithdraw(ctx, "alice", e.Deadline(ctx))
			assert.NoError(t, err)

			check.Equal(t, tt.expectedNet, payout.Net.Uint64())
			check.Equal(t, tt.expectedFee, payout.Fee.Uint64())
			check.Equal(t, tt.expectedFee, e.Snapshot(ctx).CommissionPool.Uint64())
			check.Equal(t, tt.kind, sink.Last().Kind)
			lastNote := sink.Last()
			check.Equal(t, tt.expectedFee, lastNote.Fee.Uint64())
			assertConserved(t, e)
		})
	}
}

func TestSelfWithdraw_TransferFailureRestoresLedger(t *testing.T) {
	payer := &MockPayer{
		SendFunc: func(context.Context, core.Identity, *uint256.Int) error {
			return errBankDown
		},
	}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)
	before := e.Snapshot(ctx)
	notes := len(sink.All())

	_, err := e.SelfWithdraw(ctx, "alice", now)
	check.True(t, errors.Is(err, core.ErrPaymentFailed))
	check.True(t, errors.Is(err, errBankDown))
	check.Equal(t, core.KindTransfer, core.KindOf(err))

	check.Equal(t, uint64(100), e.RefundBalance(ctx, "alice").Uint64())
	after := e.Snapshot(ctx)
	check.Equal(t, before.Balance.Dec(), after.Balance.Dec())
	check.Equal(t, before.LedgerTotal.Dec(), after.LedgerTotal.Dec())
	check.Equal(t, notes, len(sink.All()))

	// Retrying once the payer recovers pays exactly once
	payer.SendFunc = nil
	payout, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)
	check.Equal(t, uint64(100), payout.Net.Uint64())
	check.Equal(t, []transfer{{To: "alice", Amount: 100}}, payer.Transfers())
}

func TestSelfWithdraw_FeeTransferFailureLeavesPoolUntouched(t *testing.T) {
	policy := core.DefaultPolicy()
	policy.FeeOnEarlyWithdrawal = true
	payer := &MockPayer{}
	e, _ := newTestEngine(t, policy, payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105})
	payer.SendFunc = func(context.Context, core.Identity, *uint256.Int) error { return errBankDown }

	_, err := e.SelfWithdraw(ctx, "alice", e.Deadline(ctx))
	check.True(t, errors.Is(err, core.ErrPaymentFailed))
	check.Equal(t, uint64(100), e.RefundBalance(ctx, "alice").Uint64())
	check.True(t, e.Snapshot(ctx).CommissionPool.IsZero())
}

func TestSelfWithdraw_ReentrantPayerObservesNoRefund(t *testing.T) {
	var e *Engine
	var nestedErr error
	var nestedBalance *uint256.Int
	payer := &MockPayer{}
	payer.SendFunc = func(ctx context.Context, to core.Identity, _ *uint256.Int) error {
		nestedBalance = e.RefundBalance(ctx, to)
		_, nestedErr = e.SelfWithdraw(ctx, to, t0)
		return nil
	}
	e, _ = newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)

	_, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)

	check.True(t, errors.Is(nestedErr, core.ErrNoRefund))
	check.True(t, nestedBalance.IsZero())
	check.Equal(t, []transfer{{To: "alice", Amount: 100}}, payer.Transfers())
	assertConserved(t, e)
}

func TestSelfWithdraw_ReentrantPayerDuringFailure(t *testing.T) {
	var e *Engine
	payer := &MockPayer{}
	payer.SendFunc = func(ctx context.Context, to core.Identity, _ *uint256.Int) error {
		// Nested attempt sees the zeroed entry, then the outer transfer fails
		_, err := e.SelfWithdraw(ctx, to, t0)
		if !errors.Is(err, core.ErrNoRefund) {
			return errors.New("nested withdrawal was not rejected")
		}
		return errBankDown
	}
	e, _ = newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)

	_, err := e.SelfWithdraw(ctx, "alice", now)
	check.True(t, errors.Is(err, errBankDown))
	check.Equal(t, uint64(100), e.RefundBalance(ctx, "alice").Uint64())
	check.Equal(t, 0, len(payer.Transfers()))
}

func TestOwnerBatchRefund(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105})
	now := e.Deadline(ctx)

	payouts, err := e.OwnerBatchRefund(ctx, owner, now)
	assert.NoError(t, err)

	check.Equal(t, 1, len(payouts))
	check.Equal(t, core.Identity("alice"), payouts[0].To)
	check.Equal(t, uint64(98), payouts[0].Net.Uint64())
	check.Equal(t, uint64(2), payouts[0].Fee.Uint64())
	check.Equal(t, []transfer{{To: "alice", Amount: 98}}, payer.Transfers())
	check.Equal(t, uint64(2), e.Snapshot(ctx).CommissionPool.Uint64())
	check.True(t, e.Snapshot(ctx).BatchRefunded)

	last := sink.Last()
	check.Equal(t, RefundIssuedWithFee, last.Kind)
	check.Equal(t, uint64(98), last.Amount.Uint64())
	check.Equal(t, uint64(2), last.Fee.Uint64())

	_, err = e.OwnerBatchRefund(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrAlreadyProcessed))

	assertConserved(t, e)
}

func TestOwnerBatchRefund_Guards(t *testing.T) {
	e, _ := newTestEngine(t, core.DefaultPolicy(), &MockPayer{})
	ctx := context.Background()
	mustBid(t, e, "alice", 100, t0.Add(time.Hour))

	_, err := e.OwnerBatchRefund(ctx, owner, t0.Add(time.Hour))
	check.True(t, errors.Is(err, core.ErrStillActive))

	_, err = e.Finalize(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)

	_, err = e.OwnerBatchRefund(ctx, "alice", e.Deadline(ctx))
	check.True(t, errors.Is(err, core.ErrNotOwner))
}

func TestOwnerBatchRefund_PaysEachBidderOnceAndSkipsWinner(t *testing.T) {
	payer := &MockPayer{}
	e, _ := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	// alice appears three times, carol wins after being outbid once
	endAuction(t, e,
		bidSpec{"alice", 100},
		bidSpec{"carol", 105},
		bidSpec{"alice", 200},
		bidSpec{"bob", 210},
		bidSpec{"alice", 300},
		bidSpec{"carol", 400},
	)
	now := e.Deadline(ctx)

	check.Equal(t, uint64(600), e.RefundBalance(ctx, "alice").Uint64())
	check.Equal(t, uint64(210), e.RefundBalance(ctx, "bob").Uint64())
	check.Equal(t, uint64(105), e.RefundBalance(ctx, "carol").Uint64())

	payouts, err := e.OwnerBatchRefund(ctx, owner, now)
	assert.NoError(t, err)

	check.Equal(t, 2, len(payouts))
	check.Equal(t, []transfer{
		{To: "alice", Amount: 588},
		{To: "bob", Amount: 206},
	}, payer.Transfers())
	check.Equal(t, uint64(16), e.Snapshot(ctx).CommissionPool.Uint64())

	// The winner's own displaced bids stay available for self-withdrawal
	check.Equal(t, uint64(105), e.RefundBalance(ctx, "carol").Uint64())
	assertConserved(t, e)
}

func TestOwnerBatchRefund_NothingOutstandingStillSetsFlag(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)
	_, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)
	_, err = e.Finalize(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)
	notes := len(sink.All())

	payouts, err := e.OwnerBatchRefund(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)
	check.Equal(t, 0, len(payouts))
	check.Equal(t, notes, len(sink.All()))

	_, err = e.OwnerBatchRefund(ctx, owner, e.Deadline(ctx))
	check.True(t, errors.Is(err, core.ErrAlreadyProcessed))
}

func TestOwnerBatchRefund_FailureMidSweepIsRetryable(t *testing.T) {
	payer := &MockPayer{}
	e, _ := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105}, bidSpec{"carol", 200})
	now := e.Deadline(ctx)

	payer.SendFunc = func(_ context.Context, to core.Identity, _ *uint256.Int) error {
		if to == "bob" {
			return errBankDown
		}
		return nil
	}

	payouts, err := e.OwnerBatchRefund(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrPaymentFailed))
	check.Equal(t, 1, len(payouts))
	check.True(t, e.RefundBalance(ctx, "alice").IsZero())
	check.Equal(t, uint64(105), e.RefundBalance(ctx, "bob").Uint64())
	check.False(t, e.Snapshot(ctx).BatchRefunded)
	check.Equal(t, uint64(2), e.Snapshot(ctx).CommissionPool.Uint64())

	payer.SendFunc = nil
	payouts, err = e.OwnerBatchRefund(ctx, owner, now)
	assert.NoError(t, err)
	check.Equal(t, 1, len(payouts))
	check.Equal(t, core.Identity("bob"), payouts[0].To)
	check.Equal(t, []transfer{
		{To: "alice", Amount: 98},
		{To: "bob", Amount: 103},
	}, payer.Transfers())
	check.Equal(t, uint64(4), e.Snapshot(ctx).CommissionPool.Uint64())
	assertConserved(t, e)
}

func TestOwnerClaim(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105})
	now := e.Deadline(ctx)

	_, err := e.OwnerBatchRefund(ctx, owner, now)
	assert.NoError(t, err)

	_, err = e.OwnerClaim(ctx, "bob", now)
	check.True(t, errors.Is(err, core.ErrNotOwner))

	amount, err := e.OwnerClaim(ctx, owner, now)
	assert.NoError(t, err)
	check.Equal(t, uint64(107), amount.Uint64())

	last := sink.Last()
	check.Equal(t, OwnerClaimed, last.Kind)
	check.Equal(t, owner, last.Subject)
	check.Equal(t, uint64(107), last.Amount.Uint64())

	_, err = e.OwnerClaim(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrNothingToClaim))

	check.Equal(t, []transfer{
		{To: "alice", Amount: 98},
		{To: owner, Amount: 107},
	}, payer.Transfers())

	s := e.Snapshot(ctx)
	check.True(t, s.Balance.IsZero())
	check.True(t, s.Liabilities().IsZero())

	// The winner record survives the claim
	winner, err := e.Winner(ctx)
	assert.NoError(t, err)
	check.Equal(t, uint64(105), winner.Amount.Uint64())
}

func TestOwnerClaim_BeforeEnd(t *testing.T) {
	e, _ := newTestEngine(t, core.DefaultPolicy(), &MockPayer{})

	_, err := e.OwnerClaim(context.Background(), owner, t0)
	check.True(t, errors.Is(err, core.ErrStillActive))
}

func TestOwnerClaim_NoBids(t *testing.T) {
	e, _ := newTestEngine(t, core.DefaultPolicy(), &MockPayer{})
	ctx := context.Background()

	endAuction(t, e)

	_, err := e.OwnerClaim(ctx, owner, e.Deadline(ctx))
	check.True(t, errors.Is(err, core.ErrNothingToClaim))
}

func TestOwnerClaim_TransferFailureRestores(t *testing.T) {
	payer := &MockPayer{}
	e, _ := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100}, bidSpec{"bob", 105})
	now := e.Deadline(ctx)
	_, err := e.OwnerBatchRefund(ctx, owner, now)
	assert.NoError(t, err)

	payer.SendFunc = func(context.Context, core.Identity, *uint256.Int) error { return errBankDown }
	_, err = e.OwnerClaim(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrPaymentFailed))

	s := e.Snapshot(ctx)
	check.Equal(t, uint64(105), s.UnclaimedWinning.Uint64())
	check.Equal(t, uint64(2), s.CommissionPool.Uint64())

	payer.SendFunc = nil
	amount, err := e.OwnerClaim(ctx, owner, now)
	assert.NoError(t, err)
	check.Equal(t, uint64(107), amount.Uint64())
}

func TestOwnerClaim_ReentrantClaimObservesNothing(t *testing.T) {
	var e *Engine
	var nestedErr error
	payer := &MockPayer{}
	e, _ = newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()

	endAuction(t, e, bidSpec{"alice", 100})
	payer.SendFunc = func(ctx context.Context, _ core.Identity, _ *uint256.Int) error {
		_, nestedErr = e.OwnerClaim(ctx, owner, t0)
		return nil
	}

	amount, err := e.OwnerClaim(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)
	check.Equal(t, uint64(100), amount.Uint64())
	check.True(t, errors.Is(nestedErr, core.ErrNothingToClaim))
	check.Equal(t, 1, len(payer.Transfers()))
}

func TestEmergencyDrain(t *testing.T) {
	payer := &MockPayer{}
	e, sink := newTestEngine(t, core.DefaultPolicy(), payer)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)

	_, err := e.EmergencyDrain(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrStillActive))

	_, err = e.EmergencyFinalize(ctx, owner, now)
	assert.NoError(t, err)

	_, err = e.EmergencyDrain(ctx, "bob", now)
	check.True(t, errors.Is(err, core.ErrNotOwner))

	amount, err := e.EmergencyDrain(ctx, owner, now)
	assert.NoError(t, err)
	check.Equal(t, uint64(205), amount.Uint64())
	check.Equal(t, EmergencyDrained, sink.Last().Kind)

	// Bookkeeping is bypassed: liabilities remain but are no longer funded
	s := e.Snapshot(ctx)
	check.True(t, s.Balance.IsZero())
	check.Equal(t, uint64(100), s.LedgerTotal.Uint64())
	check.True(t, s.Conserved())

	_, err = e.SelfWithdraw(ctx, "alice", now)
	check.True(t, errors.Is(err, core.ErrPaymentFailed))
	check.Equal(t, uint64(100), e.RefundBalance(ctx, "alice").Uint64())

	_, err = e.EmergencyDrain(ctx, owner, now)
	check.True(t, errors.Is(err, core.ErrNothingToClaim))

	check.Equal(t, []transfer{{To: owner, Amount: 205}}, payer.Transfers())
}

func TestNotifications_AreSequenced(t *testing.T) {
	policy := core.DefaultPolicy()
	policy.FeeOnEarlyWithdrawal = true
	e, sink := newTestEngine(t, policy, &MockPayer{})
	ctx := context.Background()
	now := t0.Add(time.Hour)

	mustBid(t, e, "alice", 100, now)
	mustBid(t, e, "bob", 105, now)
	mustBid(t, e, "carol", 111, now)
	_, err := e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)
	_, err = e.Finalize(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)
	_, err = e.SelfWithdraw(ctx, "bob", e.Deadline(ctx))
	assert.NoError(t, err)
	_, err = e.OwnerClaim(ctx, owner, e.Deadline(ctx))
	assert.NoError(t, err)

	check.Equal(t, []NotificationKind{
		BidAccepted, BidAccepted, BidAccepted,
		RefundIssuedNoFee,
		AuctionEnded,
		RefundIssuedWithFee,
		OwnerClaimed,
	}, sink.Kinds())

	for i, n := range sink.All() {
		check.Equal(t, uint64(i+1), n.Sequence)
		check.Equal(t, "test-auction", n.AuctionID)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	payer := &MockPayer{}
	e, err := New(owner, core.DefaultPolicy(), t0, payer, WithMetrics(metrics))
	assert.NoError(t, err)
	ctx := context.Background()
	now := t0.Add(time.Hour)

	_, err = e.PlaceBid(ctx, "alice", amt(100), now)
	assert.NoError(t, err)
	_, err = e.PlaceBid(ctx, "bob", amt(101), now)
	check.True(t, errors.Is(err, core.ErrTooLow))
	_, err = e.PlaceBid(ctx, "bob", amt(105), now)
	assert.NoError(t, err)

	check.Equal(t, 2.0, testutil.ToFloat64(metrics.bidsAccepted))
	check.Equal(t, 1.0, testutil.ToFloat64(metrics.bidsRejected.WithLabelValues("too_low")))
	check.Equal(t, 100.0, testutil.ToFloat64(metrics.ledgerTotal))

	payer.SendFunc = func(context.Context, core.Identity, *uint256.Int) error { return errBankDown }
	_, err = e.SelfWithdraw(ctx, "alice", now)
	check.True(t, errors.Is(err, core.ErrPaymentFailed))
	check.Equal(t, 1.0, testutil.ToFloat64(metrics.paymentFailures))

	payer.SendFunc = nil
	_, err = e.SelfWithdraw(ctx, "alice", now)
	assert.NoError(t, err)
	check.Equal(t, 1.0, testutil.ToFloat64(metrics.payouts.WithLabelValues(string(RefundIssuedNoFee))))
	check.Equal(t, 0.0, testutil.ToFloat64(metrics.ledgerTotal))

	_, err = e.EmergencyFinalize(ctx, owner, now)
	assert.NoError(t, err)
	check.Equal(t, 1.0, testutil.ToFloat64(metrics.finalizations.WithLabelValues(string(AuctionForceEnded))))
}
