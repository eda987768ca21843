package custody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryReserve tests reserve accounting and the underflow guard.
func TestMemoryReserve(t *testing.T) {
	m := NewMemory(1000, nil)
	assert.Equal(t, uint64(1000), m.Available())

	require.NoError(t, m.Debit(400))
	assert.Equal(t, uint64(600), m.Available())

	assert.ErrorIs(t, m.Debit(601), ErrReserveUnderflow)
	assert.Equal(t, uint64(600), m.Available(), "failed debit must not move the reserve")

	m.Credit(400)
	assert.Equal(t, uint64(1000), m.Available())
}

// TestMemoryValueMovement tests the per-address release and reward ledgers.
func TestMemoryValueMovement(t *testing.T) {
	m := NewMemory(0, nil)
	ctx := context.Background()

	require.NoError(t, m.Release(ctx, "alice", 100))
	require.NoError(t, m.Release(ctx, "alice", 50))
	require.NoError(t, m.PayReward(ctx, "alice", 25))

	assert.Equal(t, uint64(150), m.Released("alice"))
	assert.Equal(t, uint64(25), m.Rewards("alice"))
	assert.Equal(t, uint64(0), m.Released("bob"))
}
