package math

// SettlementResult is the outcome of settling one paired position.
// ProviderDelta is signed: positive means the provider gains (the move was
// funded out of the taker's escrow), negative means the provider pays the
// taker. Conservation holds by construction:
//
//	TakerWithdrawable + ProviderLocked + ProviderDelta == TakerLocked + ProviderLocked
type SettlementResult struct {
	EndPrice          int64 // After clamping to [putStrike, callStrike]
	TakerWithdrawable int64
	ProviderDelta     int64
}

// Settle computes the split of locked funds between taker and provider at
// expiration. Pure function: no state, no clock, no errors — inputs that
// satisfy the open-time invariants (putStrike < startPrice < callStrike,
// non-negative locked amounts) always produce a valid result.
func Settle(
	startPrice int64,
	putStrikePrice int64,
	callStrikePrice int64,
	takerLocked int64,
	providerLocked int64,
	endPrice int64,
) SettlementResult {
	// Clamp the end price into the collar range. Moves beyond a strike are
	// fully absorbed at the strike.
	if endPrice < putStrikePrice {
		endPrice = putStrikePrice
	}
	if endPrice > callStrikePrice {
		endPrice = callStrikePrice
	}

	switch {
	case endPrice == startPrice:
		// No transfer: each party keeps its own escrow.
		return SettlementResult{
			EndPrice:          endPrice,
			TakerWithdrawable: takerLocked,
			ProviderDelta:     0,
		}

	case endPrice < startPrice:
		// Price fell: the move is funded out of takerLocked, proportional
		// to how far it fell within the put range.
		providerGain := MulDivFloor(takerLocked, startPrice-endPrice, startPrice-putStrikePrice)
		return SettlementResult{
			EndPrice:          endPrice,
			TakerWithdrawable: takerLocked - providerGain,
			ProviderDelta:     providerGain,
		}

	default:
		// Price rose: the move is funded out of providerLocked,
		// proportional to the call range.
		takerGain := MulDivFloor(providerLocked, endPrice-startPrice, callStrikePrice-startPrice)
		return SettlementResult{
			EndPrice:          endPrice,
			TakerWithdrawable: takerLocked + takerGain,
			ProviderDelta:     -takerGain,
		}
	}
}
