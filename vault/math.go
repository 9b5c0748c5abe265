// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import "math/big"

// Fixed-point fraction math over parts-per-1e18 (WAD). All helpers return
// fresh big.Ints and never mutate their arguments. Division truncates toward
// zero, matching on-chain integer semantics.

// FractionOf returns amount * fraction / WAD.
func FractionOf(amount, fraction *big.Int) *big.Int {
	if amount == nil || fraction == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, fraction)
	return out.Div(out, WAD)
}

// SupplyFraction returns part * WAD / whole, the fraction of whole that part
// represents. A zero whole yields zero rather than dividing by zero so health
// checks against an empty supply read as unhealthy, not a fault.
func SupplyFraction(part, whole *big.Int) *big.Int {
	if part == nil || whole == nil || whole.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(part, WAD)
	return out.Div(out, whole)
}

// MinOut applies a slippage tolerance to a quoted output:
// quote * (WAD - slippage) / WAD.
func MinOut(quote, slippage *big.Int) *big.Int {
	if quote == nil || quote.Sign() <= 0 {
		return new(big.Int)
	}
	keep := new(big.Int).Sub(WAD, slippage)
	if keep.Sign() < 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(quote, keep)
	return out.Div(out, WAD)
}

// MinBig returns the smaller of a and b as a fresh value.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// HalfUp returns amount / 2, rounding up. Used to split a liquidity deficit
// into a swap leg and a deposit leg without stranding the odd unit.
func HalfUp(amount *big.Int) *big.Int {
	out := new(big.Int).Add(amount, big.NewInt(1))
	return out.Rsh(out, 1)
}
