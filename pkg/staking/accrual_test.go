package staking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSegmentInterest tests the floored per-segment formula.
func TestSegmentInterest(t *testing.T) {
	tests := []struct {
		name     string
		balance  uint64
		rate     uint64
		duration uint64
		expected uint64
	}{
		{
			name:    "full year at 50 percent halves the balance",
			balance: 1_000_000, rate: 50 * RateUnit, duration: SecondsPerYear,
			expected: 500_000,
		},
		{
			name:    "half year at 50 percent",
			balance: 1_000_000, rate: 50 * RateUnit, duration: SecondsPerYear / 2,
			expected: 250_000,
		},
		{
			name:    "small balance floors to whole units",
			balance: 3, rate: 50 * RateUnit, duration: SecondsPerYear,
			expected: 1, // 1.5 floored
		},
		{
			name:    "zero duration accrues nothing",
			balance: 1_000_000, rate: 50 * RateUnit, duration: 0,
			expected: 0,
		},
		{
			name:    "dust accrues nothing over short windows",
			balance: 1, rate: 10 * RateUnit, duration: 3600,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, segmentInterest(tt.balance, tt.rate, tt.duration))
		})
	}
}

// TestAccruedInterest tests the tier-segment walk.
func TestAccruedInterest(t *testing.T) {
	rates := map[Tier]*RateHistory{
		Tier1: NewRateHistory(50*RateUnit, 0),
		Tier2: NewRateHistory(30*RateUnit, 0),
		Tier3: NewRateHistory(10*RateUnit, 0),
	}

	t.Run("zero balance", func(t *testing.T) {
		tiers := &TierHistory{}
		tiers.Append(Tier1, 0)
		assert.Equal(t, uint64(0), accruedInterest(0, tiers, rates, 0, SecondsPerYear))
	})

	t.Run("empty interval", func(t *testing.T) {
		tiers := &TierHistory{}
		tiers.Append(Tier1, 0)
		assert.Equal(t, uint64(0), accruedInterest(1_000_000, tiers, rates, 500, 500))
	})

	t.Run("single tier segment", func(t *testing.T) {
		tiers := &TierHistory{}
		tiers.Append(Tier1, 0)
		got := accruedInterest(1_000_000, tiers, rates, 0, SecondsPerYear)
		assert.Equal(t, uint64(500_000), got)
	})

	t.Run("tier change splits the window", func(t *testing.T) {
		// Tier3 over [0,1000), Tier1 over [1000,2000). Each segment floors
		// independently: 317/100=3 and 1585/100=15.
		tiers := &TierHistory{}
		tiers.Append(Tier3, 0)
		tiers.Append(Tier1, 1000)
		got := accruedInterest(1_000_000, tiers, rates, 0, 2000)
		assert.Equal(t, uint64(18), got)
	})

	t.Run("window clipped to tier segments", func(t *testing.T) {
		// Accrual window starts mid-segment; only [500,1000) of the Tier3
		// segment counts.
		tiers := &TierHistory{}
		tiers.Append(Tier3, 0)
		tiers.Append(Tier1, 1000)
		clipped := accruedInterest(1_000_000, tiers, rates, 500, 2000)
		full := accruedInterest(1_000_000, tiers, rates, 0, 2000)
		assert.Less(t, clipped, full)
	})

	t.Run("rate change within a tier segment", func(t *testing.T) {
		// Tier1 throughout; rate doubles halfway. The weighted rate over the
		// whole window is 75%, so a year yields 750k on 1m.
		local := map[Tier]*RateHistory{Tier1: NewRateHistory(50*RateUnit, 0)}
		local[Tier1].Append(100*RateUnit, SecondsPerYear/2)
		tiers := &TierHistory{}
		tiers.Append(Tier1, 0)
		got := accruedInterest(1_000_000, tiers, local, 0, SecondsPerYear)
		assert.Equal(t, uint64(750_000), got)
	})
}
