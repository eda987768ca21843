// Package models defines the ClickHouse row types for the append-only
// history tables. Entries are never updated or deleted; every table is a
// plain MergeTree ordered by time.
package models

const (
	TierChangesTableName = "tier_changes"
	RateChangesTableName = "rate_changes"
	SettlementsTableName = "settlements"
	WithdrawalsTableName = "withdrawals"
)

// TierChange is one per-account tier transition.
type TierChange struct {
	Address  string `ch:"address" json:"address"`
	FromTier uint8  `ch:"from_tier" json:"fromTier"`
	ToTier   uint8  `ch:"to_tier" json:"toTier"`
	At       uint64 `ch:"at" json:"at"`
}

// RateChange is one per-tier rate-history entry.
type RateChange struct {
	Tier uint8  `ch:"tier" json:"tier"`
	Rate uint64 `ch:"rate" json:"rate"`
	At   uint64 `ch:"at" json:"at"`
}

// Settlement records a claim or compound payout.
type Settlement struct {
	Address string `ch:"address" json:"address"`
	Kind    string `ch:"kind" json:"kind"` // "claim" or "compound"
	Amount  uint64 `ch:"amount" json:"amount"`
	At      uint64 `ch:"at" json:"at"`
}

// Withdrawal tracks a time-locked withdrawal request through completion.
// Requested and completed rows share a request_id; readers take the latest.
type Withdrawal struct {
	Address     string `ch:"address" json:"address"`
	RequestID   uint64 `ch:"request_id" json:"requestId"`
	Amount      uint64 `ch:"amount" json:"amount"`
	RequestedAt uint64 `ch:"requested_at" json:"requestedAt"`
	CompletedAt uint64 `ch:"completed_at" json:"completedAt,omitempty"` // 0 while pending
}
