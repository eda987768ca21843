package staking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRateHistoryAppend tests the append-only log and timestamp clamping.
func TestRateHistoryAppend(t *testing.T) {
	h := NewRateHistory(5000, 100)
	assert.Equal(t, uint64(5000), h.Current())

	h.Append(7000, 200)
	assert.Equal(t, uint64(7000), h.Current())

	// A regressed timestamp is clamped up to the last entry.
	h.Append(9000, 150)
	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(200), entries[2].EffectiveFrom)
	assert.Equal(t, uint64(9000), entries[2].Rate)
}

// TestRateHistoryEntriesIsCopy tests that callers cannot mutate the log.
func TestRateHistoryEntriesIsCopy(t *testing.T) {
	h := NewRateHistory(5000, 100)
	entries := h.Entries()
	entries[0].Rate = 1
	assert.Equal(t, uint64(5000), h.Current())
}

// TestRateHistoryWeightedRate tests the duration-weighted average.
func TestRateHistoryWeightedRate(t *testing.T) {
	t.Run("invalid interval", func(t *testing.T) {
		h := NewRateHistory(5000, 100)
		_, err := h.WeightedRate(200, 200)
		assert.ErrorIs(t, err, ErrInvalidInterval)
		_, err = h.WeightedRate(300, 200)
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("single entry", func(t *testing.T) {
		h := NewRateHistory(5000, 100)
		rate, err := h.WeightedRate(100, 200)
		require.NoError(t, err)
		assert.Equal(t, uint64(5000), rate)
	})

	t.Run("interval before first entry clamps", func(t *testing.T) {
		h := NewRateHistory(5000, 100)
		rate, err := h.WeightedRate(0, 50)
		require.NoError(t, err)
		assert.Equal(t, uint64(5000), rate, "interval ending before the log resolves to the initial rate")
	})

	t.Run("piecewise average", func(t *testing.T) {
		// 5000 over [100,200), 10000 over [200,300): average 7500.
		h := NewRateHistory(5000, 100)
		h.Append(10000, 200)
		rate, err := h.WeightedRate(100, 300)
		require.NoError(t, err)
		assert.Equal(t, uint64(7500), rate)
	})

	t.Run("uneven segment weights", func(t *testing.T) {
		// 3000 for 3 units, 6000 for 1 unit: (3000*3 + 6000*1) / 4 = 3750.
		h := NewRateHistory(3000, 0)
		h.Append(6000, 3)
		rate, err := h.WeightedRate(0, 4)
		require.NoError(t, err)
		assert.Equal(t, uint64(3750), rate)
	})

	t.Run("flooring", func(t *testing.T) {
		// (100*1 + 101*2) / 3 = 100.67 -> 100.
		h := NewRateHistory(100, 0)
		h.Append(101, 1)
		rate, err := h.WeightedRate(0, 3)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), rate)
	})
}
