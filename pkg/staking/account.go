package staking

// Account is the per-participant ledger record. Records are created on first
// stake and never deleted; an account that ends at balance 0 persists as an
// address-keyed terminal record.
type Account struct {
	Address string
	Balance uint64 // smallest unit

	// JoinSlot is assigned exactly once, on the first qualifying stake, and
	// never reused. 0 means the account never entered the ranked set.
	JoinSlot int

	// Ranked is one-way: once an account leaves the ranked set it never
	// returns, regardless of future balance.
	Ranked bool

	LastSettlement  uint64 // unix seconds
	Unsettled       uint64 // accrued but unclaimed interest
	LifetimeSettled uint64 // monotonic, audit only

	Tiers *TierHistory
}

// currentTier is the account's effective tier: the latest tier-history entry,
// or Tier3 for an account with no classification yet.
func (a *Account) currentTier() Tier {
	if t := a.Tiers.Current(); t.Valid() {
		return t
	}
	return Tier3
}
