package core

import "github.com/holiman/uint256"

// SplitCommission divides amount into the commission withheld for the owner and the
// net amount paid out. The commission is amount * percent / 100, rounded down, so
// fee + net always equals amount. Percentages above 100 are clamped to 100.
func SplitCommission(amount *uint256.Int, percent uint64) (fee, net *uint256.Int) {
	if percent > 100 {
		percent = 100
	}

	// amount * percent can exceed 256 bits for very large amounts; dividing first
	// and handling the remainder separately keeps the result exact.
	hundred := uint256.NewInt(100)
	p := uint256.NewInt(percent)

	quotient, remainder := new(uint256.Int), new(uint256.Int)
	quotient.DivMod(amount, hundred, remainder)

	fee = new(uint256.Int).Mul(quotient, p)
	fee.Add(fee, remainder.Mul(remainder, p).Div(remainder, hundred))

	net = new(uint256.Int).Sub(amount, fee)
	return fee, net
}
