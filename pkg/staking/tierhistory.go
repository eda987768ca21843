package staking

// TierChange is one append-only tier-transition record for an account.
type TierChange struct {
	From Tier   `json:"fromTier"`
	To   Tier   `json:"toTier"`
	At   uint64 `json:"at"` // unix seconds
}

// TierHistory is a per-account append-only log of tier transitions.
// Timestamps are non-decreasing and consecutive entries never repeat the same
// destination tier: no-op transitions are suppressed at the source so the
// accrual walk sees only real segment boundaries.
type TierHistory struct {
	entries []TierChange
}

// Append records a transition to a tier, suppressing no-ops. Returns true
// when an entry was actually written.
func (h *TierHistory) Append(to Tier, at uint64) bool {
	if n := len(h.entries); n > 0 {
		last := h.entries[n-1]
		if last.To == to {
			return false
		}
		if at < last.At {
			at = last.At
		}
		h.entries = append(h.entries, TierChange{From: last.To, To: to, At: at})
		return true
	}
	h.entries = append(h.entries, TierChange{From: TierNone, To: to, At: at})
	return true
}

// Current returns the latest recorded tier, or TierNone for an empty log.
func (h *TierHistory) Current() Tier {
	if len(h.entries) == 0 {
		return TierNone
	}
	return h.entries[len(h.entries)-1].To
}

func (h *TierHistory) Len() int { return len(h.entries) }

// Entries returns a copy of the log, oldest first.
func (h *TierHistory) Entries() []TierChange {
	out := make([]TierChange, len(h.entries))
	copy(out, h.entries)
	return out
}
