package staking

import "strconv"

// Tier is a reward tier. Tier1 is the best-rewarded tier; unranked accounts
// always sit in Tier3.
type Tier uint8

const (
	TierNone Tier = 0 // no classification yet
	Tier1    Tier = 1
	Tier2    Tier = 2
	Tier3    Tier = 3
)

// Fixed tier splits over the ranked population.
const (
	tier1Percent = 20
	tier2Percent = 30
)

func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

func (t Tier) String() string {
	if !t.Valid() {
		return "tier?"
	}
	return "tier" + strconv.Itoa(int(t))
}

// TierCounts splits a ranked population of n into the three tier sizes.
// Tier1 takes 20% and Tier2 30%, both floored, with a floor-to-1 so that any
// non-empty population has a Tier1 member and any remainder after Tier1 has a
// Tier2 member. Pure; usable for live state and what-if audits alike.
func TierCounts(n int) (t1, t2, t3 int) {
	if n <= 0 {
		return 0, 0, 0
	}
	t1 = n * tier1Percent / 100
	if t1 == 0 {
		t1 = 1
	}
	rem := n - t1
	t2 = n * tier2Percent / 100
	if t2 > rem {
		t2 = rem
	}
	if rem > 0 && t2 == 0 {
		t2 = 1
	}
	t3 = n - t1 - t2
	return t1, t2, t3
}

// TierForRank classifies a 1-based rank within a population of n.
// Rank 0 (no rank) and ranks beyond the population resolve to Tier3.
func TierForRank(rank, n int) Tier {
	if rank <= 0 || rank > n {
		return Tier3
	}
	t1, t2, _ := TierCounts(n)
	if rank <= t1 {
		return Tier1
	}
	if rank <= t1+t2 {
		return Tier2
	}
	return Tier3
}
