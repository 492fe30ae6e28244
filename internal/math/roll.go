package math

import "math/big"

// RollInput carries everything the roll transfer calculation needs: the old
// pair's economics, the roll offer's fee terms and the execution price.
type RollInput struct {
	StartPrice          int64 // Old position's opening oracle price
	PutStrikePrice      int64
	CallStrikePrice     int64
	PutStrikeDeviation  int64 // Basis points, copied from the provider side
	CallStrikeDeviation int64
	TakerLocked         int64
	ProviderLocked      int64

	RollFee             int64 // Signed base fee, paid by taker to provider
	FeeDeltaFactorBips  int64 // |factor| <= 10000
	FeeReferencePrice   int64 // Oracle price when the roll offer was created
	Price               int64 // Execution price
}

// RollTransfer is the net cash movement of executing a roll. ToTaker and
// ToProvider are signed from each party's perspective: positive means the
// party receives cash, negative means it pays in. The new escrow amounts are
// what the replacement pair locks at the execution price.
type RollTransfer struct {
	Fee               int64
	ToTaker           int64
	ToProvider        int64
	NewTakerLocked    int64
	NewProviderLocked int64
}

// RollFeeAt applies the price-sensitive adjustment to the base roll fee:
//
//	fee = rollFee + rollFee * feeDeltaFactorBips * (price - refPrice) / (refPrice * 10000)
//
// A positive factor grows the fee as price rises above the reference and
// shrinks it below; a negative factor inverts that. Truncates toward zero.
func RollFeeAt(rollFee, feeDeltaFactorBips, referencePrice, price int64) int64 {
	num := MultiplyInt128(rollFee, feeDeltaFactorBips)
	num.Mul(num, big.NewInt(price-referencePrice))

	denom := getInt128()
	denom.Mul(big.NewInt(referencePrice), big.NewInt(BpsBase))

	adj := getInt128()
	adj.Quo(num, denom)
	result := rollFee + adj.Int64()

	putInt128(num)
	putInt128(denom)
	putInt128(adj)

	return result
}

// CalculateRollTransfer settles the old pair at the execution price, re-locks
// the same notional scaled by price/startPrice, and nets out what each party
// receives or pays, fee included. Pure function. Conservation (fee is an
// internal transfer between the two parties, so it cancels):
//
//	ToTaker + ToProvider + NewTakerLocked + NewProviderLocked ==
//	    TakerLocked + ProviderLocked
func CalculateRollTransfer(in RollInput) RollTransfer {
	fee := RollFeeAt(in.RollFee, in.FeeDeltaFactorBips, in.FeeReferencePrice, in.Price)

	settled := Settle(
		in.StartPrice,
		in.PutStrikePrice,
		in.CallStrikePrice,
		in.TakerLocked,
		in.ProviderLocked,
		in.Price,
	)
	settledTaker := settled.TakerWithdrawable
	settledProvider := in.ProviderLocked + settled.ProviderDelta

	// Scale the taker escrow with price so the replacement pair carries the
	// same notional; the provider side follows from the unchanged deviations.
	newTakerLocked := MulDivFloor(in.TakerLocked, in.Price, in.StartPrice)
	newProviderLocked := CalculateProviderLocked(
		newTakerLocked, in.PutStrikeDeviation, in.CallStrikeDeviation,
	)

	return RollTransfer{
		Fee:               fee,
		ToTaker:           settledTaker - newTakerLocked - fee,
		ToProvider:        settledProvider - newProviderLocked + fee,
		NewTakerLocked:    newTakerLocked,
		NewProviderLocked: newProviderLocked,
	}
}
