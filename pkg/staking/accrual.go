package staking

import "math/big"

const (
	// RateUnit scales percentage rates: a stored rate of 50*RateUnit is 50% APR.
	RateUnit = 100

	// SecondsPerYear is the accrual year (365 days).
	SecondsPerYear = 365 * 24 * 60 * 60
)

// accruedInterest integrates balance x rate over the account's tier-history
// segments clipped to [from, to). Each segment contributes
//
//	balance * weightedRate(tier, segStart, segEnd) * (segEnd-segStart)
//	  / (SecondsPerYear * RateUnit) / 100
//
// with integer floor division at each step. The truncation order is a ledger
// compatibility contract and must not be rearranged.
func accruedInterest(balance uint64, tiers *TierHistory, rates map[Tier]*RateHistory, from, to uint64) uint64 {
	if balance == 0 || from >= to {
		return 0
	}
	var total uint64
	for i, e := range tiers.entries {
		segStart := e.At
		if segStart < from {
			segStart = from
		}
		segEnd := to
		if i+1 < len(tiers.entries) && tiers.entries[i+1].At < segEnd {
			segEnd = tiers.entries[i+1].At
		}
		if segStart >= segEnd {
			continue
		}
		hist, ok := rates[e.To]
		if !ok {
			continue
		}
		rate, err := hist.WeightedRate(segStart, segEnd)
		if err != nil {
			continue
		}
		total += segmentInterest(balance, rate, segEnd-segStart)
	}
	return total
}

// segmentInterest floors at each division, using big.Int intermediates since
// balance * rate * duration overflows 64 bits for realistic operands.
func segmentInterest(balance, rate, duration uint64) uint64 {
	n := new(big.Int).SetUint64(balance)
	n.Mul(n, new(big.Int).SetUint64(rate))
	n.Mul(n, new(big.Int).SetUint64(duration))
	n.Div(n, big.NewInt(SecondsPerYear*RateUnit))
	n.Div(n, big.NewInt(100))
	return n.Uint64()
}
