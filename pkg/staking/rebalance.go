package staking

import "go.uber.org/zap"

// rebalanceLocked re-resolves tier assignments around the two tier boundaries
// after the ranked population moved from oldN to n. Caller holds the writer
// lock and has already applied the RankIndex delta.
//
// For each boundary (tier1 cutoff and tier1+tier2 cutoff):
//   - position moved: re-resolve the symmetric-difference rank range
//     (lo, hi], clipped to the live population. On growth this includes the
//     new position; on shrink ranks past the population clip away.
//   - position unchanged: still re-resolve the occupant at that exact rank —
//     a leave shifts every higher rank down by one and a join appends at the
//     end, so the account at an unmoved boundary may differ even though the
//     count did not. The no-op suppression in TierHistory makes this safe
//     when the occupant's tier is in fact unchanged.
//
// At most two boundaries move per event, but each can shift by more than one
// position when the minimum-1-per-tier clamps flip.
func (v *Vault) rebalanceLocked(oldN, n int, now uint64) []Event {
	oldT1, oldT2, _ := TierCounts(oldN)
	newT1, newT2, _ := TierCounts(n)

	var events []Event
	seen := make(map[int]bool, 4)
	for _, b := range [2][2]int{{oldT1, newT1}, {oldT1 + oldT2, newT1 + newT2}} {
		lo, hi := b[0], b[1]
		if lo == hi {
			v.reresolveLocked(lo, n, now, seen, &events)
			continue
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi-lo > 1 {
			v.logger.Debug("tier boundary shifted multiple ranks",
				zap.Int("from", b[0]), zap.Int("to", b[1]), zap.Int("population", n))
		}
		for rank := lo + 1; rank <= hi; rank++ {
			v.reresolveLocked(rank, n, now, seen, &events)
		}
	}
	return events
}

// reresolveLocked maps a rank back to its occupant and reclassifies it,
// appending a tier-history entry only when the tier actually changed.
func (v *Vault) reresolveLocked(rank, n int, now uint64, seen map[int]bool, events *[]Event) {
	if rank < 1 || rank > n || seen[rank] {
		return
	}
	seen[rank] = true

	slot := v.index.FindByCumulativeCount(rank)
	if slot == 0 {
		return
	}
	acct := v.slots[slot]
	if acct == nil || !acct.Ranked {
		return
	}
	tier := TierForRank(rank, n)
	prev := acct.currentTier()
	if acct.Tiers.Append(tier, now) {
		*events = append(*events, TierChangedEvent{
			Event: "tier.changed", Address: acct.Address, From: prev, To: tier, Rank: rank, At: now,
		})
	}
}
