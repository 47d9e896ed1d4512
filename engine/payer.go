package engine

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/englishauction/core"
)

// Payer is the external payment capability. Send releases amount to the identity
// and reports whether the transfer happened.
//
// Send is invoked inside the engine's exclusive section. The ctx it receives marks
// that section: calls back into the engine made with that ctx re-enter without
// blocking and observe state as already mutated for the payout in flight. The ctx
// must not be handed to other goroutines.
type Payer interface {
	Send(ctx context.Context, to core.Identity, amount *uint256.Int) error
}

// PayerFunc adapts a function to Payer.
type PayerFunc func(ctx context.Context, to core.Identity, amount *uint256.Int) error

func (f PayerFunc) Send(ctx context.Context, to core.Identity, amount *uint256.Int) error {
	return f(ctx, to, amount)
}

// Payout describes one completed disbursement.
type Payout struct {
	To    core.Identity
	Gross *uint256.Int
	Fee   *uint256.Int
	Net   *uint256.Int
}
