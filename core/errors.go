package core

import "errors"

// Kind classifies engine errors. Only KindTransfer errors are raised after state
// has been mutated, and those are always compensated before they are returned.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindTransfer      Kind = "transfer"
)

// Error is a domain error identified by its kind and code.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Code
}

var (
	ErrTooLow        = &Error{Kind: KindValidation, Code: "too_low"}
	ErrBelowMinimum  = &Error{Kind: KindValidation, Code: "below_minimum"}
	ErrZeroAmount    = &Error{Kind: KindValidation, Code: "zero_amount"}
	ErrCallerIsOwner = &Error{Kind: KindValidation, Code: "caller_is_owner"}

	ErrAuctionInactive  = &Error{Kind: KindState, Code: "auction_inactive"}
	ErrAlreadyEnded     = &Error{Kind: KindState, Code: "already_ended"}
	ErrStillActive      = &Error{Kind: KindState, Code: "still_active"}
	ErrAlreadyProcessed = &Error{Kind: KindState, Code: "already_processed"}
	ErrNoRefund         = &Error{Kind: KindState, Code: "no_refund"}
	ErrNothingToClaim   = &Error{Kind: KindState, Code: "nothing_to_claim"}
	ErrNoBids           = &Error{Kind: KindState, Code: "no_bids"}

	ErrNotOwner = &Error{Kind: KindAuthorization, Code: "not_owner"}

	ErrPaymentFailed = &Error{Kind: KindTransfer, Code: "payment_failed"}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when err is
// not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
