package staking

import "errors"

// Business failures surfaced to callers. Every mutating operation validates
// before writing, so a returned error implies no state change.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCapacityExceeded    = errors.New("rank index capacity exceeded")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrInvalidTier         = errors.New("invalid tier")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrUnknownRank         = errors.New("no account at rank")
	ErrUnknownRequest      = errors.New("unknown withdrawal request")
	ErrWindowNotElapsed    = errors.New("unstake window not elapsed")
	ErrAlreadyCompleted    = errors.New("withdrawal already completed")
	ErrInsufficientReserve = errors.New("insufficient reward reserve")
	ErrCompoundingDisabled = errors.New("compounding disabled")
)
