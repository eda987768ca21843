package staking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tiervault/tiervault/pkg/custody"
)

// fakeClock is a manually advanced clock for deterministic accrual windows.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureSink records emitted events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *captureSink) ofType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestVault(t *testing.T, capacity int, reserve uint64) (*Vault, *fakeClock, *custody.Memory, *captureSink) {
	t.Helper()
	clk := newFakeClock()
	mem := custody.NewMemory(reserve, zaptest.NewLogger(t))
	sink := &captureSink{}
	cfg := Config{
		Capacity:             capacity,
		EligibilityThreshold: 1000,
		UnstakeDelay:         100 * time.Second,
		InitialRates: map[Tier]uint64{
			Tier1: 50 * RateUnit,
			Tier2: 30 * RateUnit,
			Tier3: 10 * RateUnit,
		},
		CompoundingEnabled: true,
	}
	v := New(cfg, clk.Now, mem, mem, sink, zaptest.NewLogger(t))
	return v, clk, mem, sink
}

// TestStakeValidation tests input validation and unknown-account queries.
func TestStakeValidation(t *testing.T) {
	v, _, _, _ := newTestVault(t, 10, 0)

	_, err := v.Stake("alice", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = v.CurrentTier("nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	_, err = v.AccountInfo("nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	_, err = v.RequestWithdraw("nobody", 100)
	assert.ErrorIs(t, err, ErrUnknownAccount)
	_, err = v.SettleAndClaim(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

// TestStakeCreatesRankedAccount tests first qualifying entry.
func TestStakeCreatesRankedAccount(t *testing.T) {
	v, _, _, sink := newTestVault(t, 10, 0)

	tier, err := v.Stake("alice", 2000)
	require.NoError(t, err)
	assert.Equal(t, Tier1, tier, "sole member of the ranked set is tier1")

	rank, err := v.RankOf("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	assert.Equal(t, 1, v.Population())

	info, err := v.AccountInfo("alice")
	require.NoError(t, err)
	assert.True(t, info.Ranked)
	assert.Equal(t, uint64(2000), info.Balance)
	assert.Equal(t, uint64(50*RateUnit), info.Rate)

	stakes := sink.ofType("stake")
	require.Len(t, stakes, 1)
	ev := stakes[0].(StakeEvent)
	assert.Equal(t, "alice", ev.Address)
	assert.Equal(t, uint64(2000), ev.Amount)
	assert.Equal(t, Tier1, ev.Tier)
}

// TestStakeBelowThresholdPermanentlyUnranked tests that a small first stake
// never enters the ranked set, even after topping up past the threshold.
func TestStakeBelowThresholdPermanentlyUnranked(t *testing.T) {
	v, _, _, _ := newTestVault(t, 10, 0)

	tier, err := v.Stake("bob", 500)
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)
	assert.Equal(t, 0, v.Population())

	rank, err := v.RankOf("bob")
	require.NoError(t, err)
	assert.Equal(t, 0, rank)

	// Topping up far past the threshold changes nothing: ranking is decided
	// once, at first contact.
	tier, err = v.Stake("bob", 100_000)
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)
	assert.Equal(t, 0, v.Population())
	rank, _ = v.RankOf("bob")
	assert.Equal(t, 0, rank)

	info, err := v.AccountInfo("bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(100_500), info.Balance)
	assert.False(t, info.Ranked)
}

// TestGrowthToTen tests the join-order tier distribution at population 10.
func TestGrowthToTen(t *testing.T) {
	v, _, _, _ := newTestVault(t, 100, 0)

	for i := 1; i <= 10; i++ {
		_, err := v.Stake(fmt.Sprintf("acct-%02d", i), 2000)
		require.NoError(t, err)
	}

	t1, t2, t3 := v.TierCounts()
	assert.Equal(t, 2, t1)
	assert.Equal(t, 3, t2)
	assert.Equal(t, 5, t3)

	expected := map[int]Tier{
		1: Tier1, 2: Tier1,
		3: Tier2, 4: Tier2, 5: Tier2,
		6: Tier3, 7: Tier3, 8: Tier3, 9: Tier3, 10: Tier3,
	}
	for i := 1; i <= 10; i++ {
		addr := fmt.Sprintf("acct-%02d", i)

		// FCFS: join order is rank order.
		rank, err := v.RankOf(addr)
		require.NoError(t, err)
		assert.Equal(t, i, rank, addr)

		tier, err := v.CurrentTier(addr)
		require.NoError(t, err)
		assert.Equal(t, expected[i], tier, addr)

		// Rank -> address round trip.
		got, err := v.AccountAtRank(i)
		require.NoError(t, err)
		assert.Equal(t, addr, got)
	}

	_, err := v.AccountAtRank(11)
	assert.ErrorIs(t, err, ErrUnknownRank)
	_, err = v.AccountAtRank(0)
	assert.ErrorIs(t, err, ErrUnknownRank)
}

// TestCapacityExceeded tests the hard slot cap.
func TestCapacityExceeded(t *testing.T) {
	v, _, _, _ := newTestVault(t, 2, 0)

	_, err := v.Stake("a", 2000)
	require.NoError(t, err)
	_, err = v.Stake("b", 2000)
	require.NoError(t, err)

	_, err = v.Stake("c", 2000)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// Below-threshold accounts never take a slot, so they still get in.
	tier, err := v.Stake("d", 500)
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)
}

// TestWithdrawLifecycle tests request, time lock, completion and the
// exactly-once guarantee.
func TestWithdrawLifecycle(t *testing.T) {
	v, clk, mem, sink := newTestVault(t, 10, 0)
	ctx := context.Background()

	_, err := v.Stake("alice", 2000)
	require.NoError(t, err)

	_, err = v.RequestWithdraw("alice", 5000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	id, err := v.RequestWithdraw("alice", 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "request ids start at 1")

	// Balance stayed above the threshold: no demotion.
	rank, _ := v.RankOf("alice")
	assert.Equal(t, 1, rank)

	// The unstake window has not elapsed.
	_, err = v.CompleteWithdraw(ctx, "alice", id)
	assert.ErrorIs(t, err, ErrWindowNotElapsed)

	// Wrong owner or unknown id never completes.
	_, err = v.CompleteWithdraw(ctx, "mallory", id)
	assert.ErrorIs(t, err, ErrUnknownRequest)
	_, err = v.CompleteWithdraw(ctx, "alice", 99)
	assert.ErrorIs(t, err, ErrUnknownRequest)

	clk.Advance(100 * time.Second)
	amount, err := v.CompleteWithdraw(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), amount)
	assert.Equal(t, uint64(500), mem.Released("alice"), "custody released the amount")

	_, err = v.CompleteWithdraw(ctx, "alice", id)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	reqs := v.PendingWithdrawals("alice")
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Completed)
	assert.NotZero(t, reqs[0].CompletedAt)

	assert.Len(t, sink.ofType("withdraw.requested"), 1)
	assert.Len(t, sink.ofType("withdraw.completed"), 1)
}

// TestWithdrawDemotion tests the balance-driven one-way exit from the ranked
// set and the promotion it triggers.
func TestWithdrawDemotion(t *testing.T) {
	v, _, _, _ := newTestVault(t, 10, 0)

	for i := 1; i <= 7; i++ {
		_, err := v.Stake(fmt.Sprintf("acct-%d", i), 2000)
		require.NoError(t, err)
	}
	// Population 7 splits 1/2/4.
	tier, _ := v.CurrentTier("acct-1")
	assert.Equal(t, Tier1, tier)

	// acct-1 withdraws below the threshold and falls out of the ranked set.
	_, err := v.RequestWithdraw("acct-1", 1500)
	require.NoError(t, err)

	assert.Equal(t, 6, v.Population())
	tier, _ = v.CurrentTier("acct-1")
	assert.Equal(t, Tier3, tier)
	rank, _ := v.RankOf("acct-1")
	assert.Equal(t, 0, rank)

	// The next in line inherits tier1.
	tier, _ = v.CurrentTier("acct-2")
	assert.Equal(t, Tier1, tier)
	rank, _ = v.RankOf("acct-2")
	assert.Equal(t, 1, rank)
	tier, _ = v.CurrentTier("acct-3")
	assert.Equal(t, Tier2, tier)

	// Re-staking past the threshold does not re-rank: the exit is one-way.
	_, err = v.Stake("acct-1", 10_000)
	require.NoError(t, err)
	assert.Equal(t, 6, v.Population())
	rank, _ = v.RankOf("acct-1")
	assert.Equal(t, 0, rank)
	tier, _ = v.CurrentTier("acct-1")
	assert.Equal(t, Tier3, tier)
}

// TestAccrualAndClaim tests the interest preview, claim payout and reserve
// accounting.
func TestAccrualAndClaim(t *testing.T) {
	v, clk, mem, sink := newTestVault(t, 10, 1_000_000)
	ctx := context.Background()

	_, err := v.Stake("alice", 1_000_000)
	require.NoError(t, err)

	clk.Advance(SecondsPerYear * time.Second)

	// 50% APR for a full year halves the balance into interest.
	owed, err := v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), owed)

	// The preview is read-only: repeating it changes nothing.
	again, err := v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, owed, again)

	paid, err := v.SettleAndClaim(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), paid)
	assert.Equal(t, uint64(500_000), mem.Rewards("alice"))
	assert.Equal(t, uint64(500_000), mem.Available(), "reserve drew down")

	// Settled: the preview resets to zero.
	owed, err = v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), owed)

	// A second claim with nothing owed is a no-op, not an error.
	paid, err = v.SettleAndClaim(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), paid)

	assert.Len(t, sink.ofType("interest.claimed"), 1)
}

// TestClaimInsufficientReserve tests that an underfunded reserve rejects the
// claim without losing the accrual.
func TestClaimInsufficientReserve(t *testing.T) {
	v, clk, _, _ := newTestVault(t, 10, 0)
	ctx := context.Background()

	_, err := v.Stake("alice", 1_000_000)
	require.NoError(t, err)
	clk.Advance(SecondsPerYear * time.Second)

	_, err = v.SettleAndClaim(ctx, "alice")
	assert.ErrorIs(t, err, ErrInsufficientReserve)

	owed, err := v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), owed, "rejected claim preserves the accrual")
}

// TestCompound tests settling interest into the balance.
func TestCompound(t *testing.T) {
	v, clk, mem, _ := newTestVault(t, 10, 1_000_000)

	_, err := v.Stake("alice", 1_000_000)
	require.NoError(t, err)
	clk.Advance(SecondsPerYear * time.Second)

	got, err := v.SettleAndCompound("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), got)

	info, err := v.AccountInfo("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), info.Balance)
	assert.Equal(t, uint64(500_000), mem.Available())
	assert.Equal(t, uint64(0), mem.Rewards("alice"), "compound pays nothing out")

	v.SetCompounding(false)
	assert.False(t, v.CompoundingEnabled())
	_, err = v.SettleAndCompound("alice")
	assert.ErrorIs(t, err, ErrCompoundingDisabled)
}

// TestRateChangeProspective tests that a rate change splits the in-flight
// accrual window instead of rewriting it.
func TestRateChangeProspective(t *testing.T) {
	v, clk, _, sink := newTestVault(t, 10, 0)

	_, err := v.Stake("alice", 1_000_000)
	require.NoError(t, err)

	clk.Advance(SecondsPerYear / 2 * time.Second)
	require.NoError(t, v.SetTierRate(Tier1, 100*RateUnit))
	clk.Advance(SecondsPerYear / 2 * time.Second)

	// Half a year at 50% plus half a year at 100%.
	owed, err := v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(750_000), owed)

	assert.ErrorIs(t, v.SetTierRate(Tier(9), 100), ErrInvalidTier)
	assert.Len(t, sink.ofType("rate.changed"), 1)

	entries, err := v.RateHistoryOf(Tier1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(100*RateUnit), entries[1].Rate)
}

// TestThresholdRaiseDoesNotDemote tests that raising the bar only affects
// future joins.
func TestThresholdRaiseDoesNotDemote(t *testing.T) {
	v, _, _, _ := newTestVault(t, 10, 0)

	_, err := v.Stake("alice", 2000)
	require.NoError(t, err)

	v.SetEligibilityThreshold(5000)
	assert.Equal(t, uint64(5000), v.EligibilityThreshold())

	rank, _ := v.RankOf("alice")
	assert.Equal(t, 1, rank, "existing members keep their standing")

	// New joiner is judged by the new bar.
	tier, err := v.Stake("bob", 2000)
	require.NoError(t, err)
	assert.Equal(t, Tier3, tier)
	assert.Equal(t, 1, v.Population())
}

// TestSettlementWatermark tests that a settle folds the accrual into the
// stored amount without double counting.
func TestSettlementWatermark(t *testing.T) {
	v, clk, _, _ := newTestVault(t, 10, 0)

	_, err := v.Stake("alice", 1_000_000)
	require.NoError(t, err)
	clk.Advance(SecondsPerYear * time.Second)

	// A top-up settles first; the owed amount survives the balance change.
	_, err = v.Stake("alice", 1000)
	require.NoError(t, err)

	owed, err := v.UnsettledInterest("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), owed)

	info, err := v.AccountInfo("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_001_000), info.Balance)
}

// TestSetAllRates tests the atomic three-rate update.
func TestSetAllRates(t *testing.T) {
	v, _, _, sink := newTestVault(t, 10, 0)

	v.SetAllRates(60*RateUnit, 40*RateUnit, 20*RateUnit)

	for tier, want := range map[Tier]uint64{Tier1: 6000, Tier2: 4000, Tier3: 2000} {
		rate, err := v.CurrentRate(tier)
		require.NoError(t, err)
		assert.Equal(t, want, rate)
	}
	assert.Len(t, sink.ofType("rate.changed"), 3)
}
