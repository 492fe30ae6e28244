package math

import (
	"math/big"
	"sync"
)

// BpsBase is the basis-point denominator: strike deviations and fee factors
// are expressed out of 10,000.
const BpsBase int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	// RoundDown floors toward negative infinity. Every strike, lock and
	// settlement amount uses this mode; the rounding direction is part of the
	// conservation arithmetic.
	RoundDown RoundingMode = iota

	// RoundHalfEven is banker's rounding, used where the quotient is a
	// statistical estimate rather than a conserved amount (the TWAP mean).
	RoundHalfEven
)

// DivideInt128 performs numerator / denominator with rounding.
// The denominator must be strictly positive — callers guarantee this via
// open-time range checks, so the zero case is not re-checked here.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	// DivMod is Euclidean: for a positive denominator the remainder is
	// always >= 0, so the quotient is already the floor.
	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// MulDivFloor computes a*b/denom with a 128-bit intermediate and floor
// rounding. This is the numeric convention for every strike, lock and
// settlement computation: multiply before divide, floor the result.
func MulDivFloor(a, b, denom int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denom, RoundDown)
	putInt128(num)
	return result
}

// CalculateProviderLocked scales the taker's locked cash so the dollar-width
// of the call range funded by the provider matches the dollar-width of the
// put range funded by the taker, per unit of locked cash:
//
//	providerLocked = takerLocked * (callDev - 10000) / (10000 - putDev)
//
// Floor division biases against the taker on tiny positions.
// Precondition: putDev < 10000 < callDev (validated at offer creation).
func CalculateProviderLocked(takerLocked, putStrikeDeviation, callStrikeDeviation int64) int64 {
	return MulDivFloor(takerLocked, callStrikeDeviation-BpsBase, BpsBase-putStrikeDeviation)
}

// StrikePrices derives absolute strike prices from the opening oracle price
// and basis-point deviations.
func StrikePrices(price, putStrikeDeviation, callStrikeDeviation int64) (putStrike, callStrike int64) {
	putStrike = MulDivFloor(price, putStrikeDeviation, BpsBase)
	callStrike = MulDivFloor(price, callStrikeDeviation, BpsBase)
	return putStrike, callStrike
}
