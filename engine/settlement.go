package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/englishauction/core"
)

// disburse releases amount to the identity through the Payer. The held balance is
// reduced before Send and restored if Send fails; callers restore their own
// bookkeeping on error.
func (e *Engine) disburse(ctx context.Context, to core.Identity, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if e.balance.Lt(amount) {
		e.metrics.paymentFailed()
		return fmt.Errorf("%w: insufficient balance %s for transfer of %s", core.ErrPaymentFailed, e.balance.Dec(), amount.Dec())
	}

	e.balance.Sub(&e.balance, amount)
	if err := e.payer.Send(ctx, to, new(uint256.Int).Set(amount)); err != nil {
		e.balance.Add(&e.balance, amount)
		e.metrics.paymentFailed()
		return fmt.Errorf("%w: %w", core.ErrPaymentFailed, err)
	}
	return nil
}

// SelfWithdraw pays bidder everything the ledger holds for them. The commission is
// withheld only when the auction has ended and the policy charges a fee on
// withdrawal; otherwise the full amount is paid.
func (e *Engine) SelfWithdraw(ctx context.Context, bidder core.Identity, now time.Time) (Payout, error) {
	ctx, leave := e.enter(ctx)
	defer leave()

	amount, err := e.ledger.Withdraw(bidder)
	if err != nil {
		return Payout{}, err
	}

	withFee := e.status == core.StatusEnded && e.policy.FeeOnEarlyWithdrawal
	fee, net := new(uint256.Int), new(uint256.Int).Set(amount)
	if withFee {
		fee, net = core.SplitCommission(amount, e.policy.CommissionPercent)
	}

	if err := e.disburse(ctx, bidder, net); err != nil {
		e.ledger.Credit(bidder, amount)
		e.log.Error().
			Str("bidder", string(bidder)).
			Str("amount", amount.Dec()).
			Err(err).
			Msg("withdrawal transfer failed, ledger entry restored")
		return Payout{}, err
	}

	kind := RefundIssuedNoFee
	if withFee {
		e.commissionPool.Add(&e.commissionPool, fee)
		kind = RefundIssuedWithFee
	}

	e.metrics.payout(kind)
	e.log.Info().
		Str("bidder", string(bidder)).
		Str("net", net.Dec()).
		Str("fee", fee.Dec()).
		Msg("refund withdrawn")
	e.emit(kind, bidder, net, fee, now)

	return Payout{To: bidder, Gross: amount, Fee: fee, Net: net}, nil
}

// OwnerBatchRefund pays every outstanding non-winner refund once, withholding the
// commission from each. It runs at most once per auction. A failed transfer stops
// the sweep with that entry restored; entries already paid stay paid and the sweep
// may be retried.
func (e *Engine) OwnerBatchRefund(ctx context.Context, caller core.Identity, now time.Time) ([]Payout, error) {
	ctx, leave := e.enter(ctx)
	defer leave()

	if e.status != core.StatusEnded {
		return nil, core.ErrStillActive
	}
	if caller != e.owner {
		return nil, core.ErrNotOwner
	}
	if e.batchRefunded {
		return nil, core.ErrAlreadyProcessed
	}

	var winner core.Identity
	hasWinner := e.winner != nil
	if hasWinner {
		winner = e.winner.Bidder
	}

	payouts := make([]Payout, 0)
	for _, bid := range e.history.All() {
		if hasWinner && bid.Bidder == winner {
			continue
		}

		amount, err := e.ledger.Withdraw(bid.Bidder)
		if errors.Is(err, core.ErrNoRefund) {
			continue
		}
		if err != nil {
			return payouts, err
		}

		fee, net := core.SplitCommission(amount, e.policy.CommissionPercent)
		if err := e.disburse(ctx, bid.Bidder, net); err != nil {
			e.ledger.Credit(bid.Bidder, amount)
			e.log.Error().
				Str("bidder", string(bid.Bidder)).
				Str("amount", amount.Dec()).
				Int("paid", len(payouts)).
				Err(err).
				Msg("batch refund transfer failed, ledger entry restored")
			return payouts, err
		}
		e.commissionPool.Add(&e.commissionPool, fee)

		e.metrics.payout(RefundIssuedWithFee)
		e.emit(RefundIssuedWithFee, bid.Bidder, net, fee, now)
		payouts = append(payouts, Payout{To: bid.Bidder, Gross: amount, Fee: fee, Net: net})
	}

	e.batchRefunded = true
	e.log.Info().
		Int("refunds", len(payouts)).
		Str("commission_pool", e.commissionPool.Dec()).
		Msg("batch refund complete")

	return payouts, nil
}

// OwnerClaim pays the owner the unclaimed winning amount plus the commission pool.
// Both are zeroed before the transfer; a later call with nothing accrued fails with
// core.ErrNothingToClaim.
func (e *Engine) OwnerClaim(ctx context.Context, caller core.Identity, now time.Time) (*uint256.Int, error) {
	ctx, leave := e.enter(ctx)
	defer leave()

	if e.status != core.StatusEnded {
		return nil, core.ErrStillActive
	}
	if caller != e.owner {
		return nil, core.ErrNotOwner
	}
	if e.unclaimedWinning.IsZero() && e.commissionPool.IsZero() {
		return nil, core.ErrNothingToClaim
	}

	winning := new(uint256.Int).Set(&e.unclaimedWinning)
	commission := new(uint256.Int).Set(&e.commissionPool)
	amount := new(uint256.Int).Add(winning, commission)

	e.unclaimedWinning.Clear()
	e.commissionPool.Clear()

	if err := e.disburse(ctx, e.owner, amount); err != nil {
		e.unclaimedWinning.Add(&e.unclaimedWinning, winning)
		e.commissionPool.Add(&e.commissionPool, commission)
		e.log.Error().
			Str("amount", amount.Dec()).
			Err(err).
			Msg("owner claim transfer failed, claimable amounts restored")
		return nil, err
	}

	e.metrics.payout(OwnerClaimed)
	e.log.Info().
		Str("winning", winning.Dec()).
		Str("commission", commission.Dec()).
		Msg("owner claimed")
	e.emit(OwnerClaimed, e.owner, amount, nil, now)

	return amount, nil
}

// EmergencyDrain transfers everything the engine still holds to the owner without
// touching the ledger, the unclaimed winning amount or the commission pool. Calling
// it before OwnerBatchRefund and OwnerClaim leaves those liabilities unfunded; later
// payouts against them fail with core.ErrPaymentFailed.
func (e *Engine) EmergencyDrain(ctx context.Context, caller core.Identity, now time.Time) (*uint256.Int, error) {
	ctx, leave := e.enter(ctx)
	defer leave()

	if e.status != core.StatusEnded {
		return nil, core.ErrStillActive
	}
	if caller != e.owner {
		return nil, core.ErrNotOwner
	}
	if e.balance.IsZero() {
		return nil, core.ErrNothingToClaim
	}

	amount := new(uint256.Int).Set(&e.balance)
	if err := e.disburse(ctx, e.owner, amount); err != nil {
		e.log.Error().
			Str("amount", amount.Dec()).
			Err(err).
			Msg("emergency drain transfer failed")
		return nil, err
	}

	e.metrics.payout(EmergencyDrained)
	e.log.Warn().
		Str("amount", amount.Dec()).
		Msg("engine balance drained")
	e.emit(EmergencyDrained, e.owner, amount, nil, now)

	return amount, nil
}
