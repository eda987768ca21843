package staking

import "math/big"

// RateEntry is one append-only rate-change record for a tier.
type RateEntry struct {
	Rate          uint64 `json:"rate"`          // percent x RateUnit (e.g. 5000 = 50% APR)
	EffectiveFrom uint64 `json:"effectiveFrom"` // unix seconds
}

// RateHistory is a per-tier append-only log of rate changes. Exactly one
// entry exists at construction; further entries come only from explicit rate
// changes. Entries are never deleted.
type RateHistory struct {
	entries []RateEntry
}

func NewRateHistory(rate, at uint64) *RateHistory {
	return &RateHistory{entries: []RateEntry{{Rate: rate, EffectiveFrom: at}}}
}

// Current returns the latest rate.
func (h *RateHistory) Current() uint64 {
	return h.entries[len(h.entries)-1].Rate
}

// Append records a new rate effective from at. Timestamps are clamped to be
// non-decreasing; the single-writer clock makes regressions impossible in
// practice.
func (h *RateHistory) Append(rate, at uint64) {
	if last := h.entries[len(h.entries)-1]; at < last.EffectiveFrom {
		at = last.EffectiveFrom
	}
	h.entries = append(h.entries, RateEntry{Rate: rate, EffectiveFrom: at})
}

// Entries returns a copy of the log, oldest first.
func (h *RateHistory) Entries() []RateEntry {
	out := make([]RateEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// WeightedRate returns the duration-weighted average rate over [from, to),
// floored. A from earlier than the first entry is clamped up to it; an
// interval that ends before the first entry resolves to the initial rate.
func (h *RateHistory) WeightedRate(from, to uint64) (uint64, error) {
	if from >= to {
		return 0, ErrInvalidInterval
	}
	if first := h.entries[0].EffectiveFrom; from < first {
		from = first
	}
	if from >= to {
		return h.entries[0].Rate, nil
	}

	weighted := new(big.Int)
	var total uint64
	for i, e := range h.entries {
		segStart := e.EffectiveFrom
		if segStart < from {
			segStart = from
		}
		segEnd := to
		if i+1 < len(h.entries) && h.entries[i+1].EffectiveFrom < segEnd {
			segEnd = h.entries[i+1].EffectiveFrom
		}
		if segStart >= segEnd {
			continue
		}
		dur := segEnd - segStart
		term := new(big.Int).SetUint64(e.Rate)
		term.Mul(term, new(big.Int).SetUint64(dur))
		weighted.Add(weighted, term)
		total += dur
	}
	if total == 0 {
		return h.entries[len(h.entries)-1].Rate, nil
	}
	weighted.Div(weighted, new(big.Int).SetUint64(total))
	return weighted.Uint64(), nil
}
