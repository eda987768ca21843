package staking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tiervault/tiervault/pkg/custody"
	"go.uber.org/zap"
)

// Clock supplies the vault's single global clock. Tests inject a manual one.
type Clock func() time.Time

// Config fixes the vault's construction-time parameters. Capacity can never
// change; threshold, rates and the compounding flag are admin-settable later.
type Config struct {
	Capacity             int
	EligibilityThreshold uint64
	UnstakeDelay         time.Duration
	InitialRates         map[Tier]uint64 // percent x RateUnit, one per tier
	CompoundingEnabled   bool
}

// WithdrawalRequest is a queued, time-locked withdrawal. Requests are
// immutable once created and are completed exactly once; there is no
// cancellation.
type WithdrawalRequest struct {
	ID          uint64 `json:"id"`
	Address     string `json:"address"`
	Amount      uint64 `json:"amount"`
	RequestedAt uint64 `json:"requestedAt"`
	AvailableAt uint64 `json:"availableAt"`
	Completed   bool   `json:"completed"`
	CompletedAt uint64 `json:"completedAt,omitempty"`
}

// AccountInfo is the read-side projection served to queries.
type AccountInfo struct {
	Address   string `json:"address"`
	Balance   uint64 `json:"balance"`
	Tier      Tier   `json:"tier"`
	Rate      uint64 `json:"rate"`
	Unsettled uint64 `json:"unsettledInterest"`
	Ranked    bool   `json:"ranked"`
	Rank      int    `json:"rank,omitempty"`
}

// Vault is the ranking/accrual engine. All mutating operations serialize on a
// single writer lock so no caller ever observes a RankIndex update without
// its rebalance pass; queries run under the read lock and never mutate.
// Events are emitted only after the lock is released.
type Vault struct {
	mu     sync.RWMutex
	cfg    Config
	clock  Clock
	logger *zap.Logger

	index    *RankIndex
	accounts map[string]*Account
	slots    []*Account // slot -> account, index 0 unused
	nextSlot int

	rates map[Tier]*RateHistory

	requests       map[uint64]*WithdrawalRequest
	requestsByAcct map[string][]uint64
	nextRequestID  uint64

	custody custody.Custody
	reserve custody.Reserve
	sink    EventSink
}

// New constructs a vault. A nil clock means time.Now; a nil sink drops
// events; a nil logger logs nothing.
func New(cfg Config, clock Clock, cust custody.Custody, res custody.Reserve, sink EventSink, logger *zap.Logger) *Vault {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	v := &Vault{
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
		index:          NewRankIndex(cfg.Capacity),
		accounts:       make(map[string]*Account),
		slots:          make([]*Account, cfg.Capacity+1),
		nextSlot:       1,
		rates:          make(map[Tier]*RateHistory),
		requests:       make(map[uint64]*WithdrawalRequest),
		requestsByAcct: make(map[string][]uint64),
		nextRequestID:  1,
		custody:        cust,
		reserve:        res,
		sink:           sink,
	}
	now := v.now()
	for _, t := range []Tier{Tier1, Tier2, Tier3} {
		v.rates[t] = NewRateHistory(cfg.InitialRates[t], now)
	}
	return v
}

func (v *Vault) now() uint64 {
	return uint64(v.clock().Unix())
}

func (v *Vault) emit(events []Event) {
	if v.sink == nil {
		return
	}
	for _, e := range events {
		v.sink.Emit(e)
	}
}

// Stake credits a deposit to an account, creating it on first contact.
// A new account qualifying against the eligibility threshold enters the
// ranked set FCFS; a new account below it is permanently unranked. Existing
// accounts only grow their balance, whatever their state. Custody transfer-in
// is the caller's responsibility.
func (v *Vault) Stake(address string, amount uint64) (Tier, error) {
	if amount == 0 {
		return TierNone, ErrInvalidAmount
	}
	v.mu.Lock()
	tier, events, err := v.stakeLocked(address, amount)
	v.mu.Unlock()
	if err != nil {
		return TierNone, err
	}
	v.emit(events)
	return tier, nil
}

func (v *Vault) stakeLocked(address string, amount uint64) (Tier, []Event, error) {
	now := v.now()
	acct, ok := v.accounts[address]
	var events []Event

	if !ok {
		acct = &Account{Address: address, LastSettlement: now, Tiers: &TierHistory{}}
		if amount >= v.cfg.EligibilityThreshold {
			if v.nextSlot > v.cfg.Capacity {
				return TierNone, nil, ErrCapacityExceeded
			}
			slot := v.nextSlot
			v.nextSlot++
			if err := v.index.Update(slot, +1); err != nil {
				return TierNone, nil, err
			}
			acct.JoinSlot = slot
			acct.Ranked = true
			acct.Balance = amount
			v.accounts[address] = acct
			v.slots[slot] = acct

			n := v.index.Size()
			rank := v.index.PrefixCount(slot)
			acct.Tiers.Append(TierForRank(rank, n), now)
			events = v.rebalanceLocked(n-1, n, now)
		} else {
			// Below threshold on first entry: permanently unranked, never
			// touches the rank index.
			acct.Balance = amount
			acct.Tiers.Append(Tier3, now)
			v.accounts[address] = acct
		}
	} else {
		v.settleLocked(acct, now)
		acct.Balance += amount
	}

	tier := acct.currentTier()
	events = append(events, StakeEvent{
		Event: "stake", Address: address, Amount: amount, Balance: acct.Balance, Tier: tier, At: now,
	})
	return tier, events, nil
}

// RequestWithdraw settles, debits the balance, demotes a ranked account that
// fell below the threshold, and queues a time-locked request. No value moves
// until CompleteWithdraw.
func (v *Vault) RequestWithdraw(address string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	v.mu.Lock()
	id, events, err := v.requestWithdrawLocked(address, amount)
	v.mu.Unlock()
	if err != nil {
		return 0, err
	}
	v.emit(events)
	return id, nil
}

func (v *Vault) requestWithdrawLocked(address string, amount uint64) (uint64, []Event, error) {
	acct, ok := v.accounts[address]
	if !ok {
		return 0, nil, ErrUnknownAccount
	}
	if amount > acct.Balance {
		return 0, nil, ErrInsufficientBalance
	}

	now := v.now()
	v.settleLocked(acct, now)
	acct.Balance -= amount

	var events []Event
	if acct.Ranked && acct.Balance < v.cfg.EligibilityThreshold {
		// Demotion is balance-driven and one-way.
		if err := v.index.Update(acct.JoinSlot, -1); err != nil {
			return 0, nil, err
		}
		acct.Ranked = false
		prev := acct.currentTier()
		if acct.Tiers.Append(Tier3, now) {
			events = append(events, TierChangedEvent{
				Event: "tier.changed", Address: address, From: prev, To: Tier3, At: now,
			})
		}
		n := v.index.Size()
		events = append(events, v.rebalanceLocked(n+1, n, now)...)
	}

	id := v.nextRequestID
	v.nextRequestID++
	req := &WithdrawalRequest{
		ID:          id,
		Address:     address,
		Amount:      amount,
		RequestedAt: now,
		AvailableAt: now + uint64(v.cfg.UnstakeDelay/time.Second),
	}
	v.requests[id] = req
	v.requestsByAcct[address] = append(v.requestsByAcct[address], id)

	events = append(events, WithdrawRequestedEvent{
		Event: "withdraw.requested", Address: address, RequestID: id, Amount: amount,
		At: now, AvailableAt: req.AvailableAt,
	})
	return id, events, nil
}

// CompleteWithdraw finishes a matured request exactly once and signals
// custody to release the amount.
func (v *Vault) CompleteWithdraw(ctx context.Context, address string, id uint64) (uint64, error) {
	v.mu.Lock()
	req, ok := v.requests[id]
	if !ok || req.Address != address {
		v.mu.Unlock()
		return 0, ErrUnknownRequest
	}
	if req.Completed {
		v.mu.Unlock()
		return 0, ErrAlreadyCompleted
	}
	now := v.now()
	if now < req.AvailableAt {
		v.mu.Unlock()
		return 0, ErrWindowNotElapsed
	}
	req.Completed = true
	req.CompletedAt = now
	amount := req.Amount
	v.mu.Unlock()

	// Ledger state is committed before the custody call; a release failure is
	// a custody-side condition to retry there, never a ledger rollback.
	if v.custody != nil {
		if err := v.custody.Release(ctx, address, amount); err != nil {
			v.logger.Error("custody release failed", zap.String("address", address), zap.Uint64("requestId", id), zap.Error(err))
			return 0, fmt.Errorf("custody release: %w", err)
		}
	}
	v.emit([]Event{WithdrawCompletedEvent{
		Event: "withdraw.completed", Address: address, RequestID: id, Amount: amount, At: now,
	}})
	return amount, nil
}

// SettleAndClaim settles accrued interest and pays it out of the reward
// reserve.
func (v *Vault) SettleAndClaim(ctx context.Context, address string) (uint64, error) {
	v.mu.Lock()
	acct, ok := v.accounts[address]
	if !ok {
		v.mu.Unlock()
		return 0, ErrUnknownAccount
	}
	now := v.now()
	owed := v.unsettledLocked(acct, now)
	if owed == 0 {
		acct.Unsettled = 0
		acct.LastSettlement = now
		v.mu.Unlock()
		return 0, nil
	}
	if v.reserve != nil && v.reserve.Available() < owed {
		v.mu.Unlock()
		return 0, ErrInsufficientReserve
	}
	acct.Unsettled = 0
	acct.LastSettlement = now
	acct.LifetimeSettled += owed
	if v.reserve != nil {
		if err := v.reserve.Debit(owed); err != nil {
			// Available was checked under the same lock; this is a reserve
			// implementation bug, not a business condition.
			v.logger.Error("reserve debit failed after availability check", zap.Error(err))
		}
	}
	v.mu.Unlock()

	if v.custody != nil {
		if err := v.custody.PayReward(ctx, address, owed); err != nil {
			v.logger.Error("custody reward payout failed", zap.String("address", address), zap.Error(err))
			return 0, fmt.Errorf("custody payout: %w", err)
		}
	}
	v.emit([]Event{InterestClaimedEvent{Event: "interest.claimed", Address: address, Amount: owed, At: now}})
	return owed, nil
}

// SettleAndCompound settles accrued interest and re-adds it to the balance
// instead of paying it out. Compounding never re-ranks: the ranked flag is
// one-way and ranked accounts keep their FCFS slot regardless of balance.
func (v *Vault) SettleAndCompound(address string) (uint64, error) {
	v.mu.Lock()
	if !v.cfg.CompoundingEnabled {
		v.mu.Unlock()
		return 0, ErrCompoundingDisabled
	}
	acct, ok := v.accounts[address]
	if !ok {
		v.mu.Unlock()
		return 0, ErrUnknownAccount
	}
	now := v.now()
	owed := v.unsettledLocked(acct, now)
	if owed == 0 {
		acct.Unsettled = 0
		acct.LastSettlement = now
		v.mu.Unlock()
		return 0, nil
	}
	if v.reserve != nil && v.reserve.Available() < owed {
		v.mu.Unlock()
		return 0, ErrInsufficientReserve
	}
	acct.Unsettled = 0
	acct.LastSettlement = now
	acct.LifetimeSettled += owed
	acct.Balance += owed
	balance := acct.Balance
	if v.reserve != nil {
		if err := v.reserve.Debit(owed); err != nil {
			v.logger.Error("reserve debit failed after availability check", zap.Error(err))
		}
	}
	v.mu.Unlock()

	v.emit([]Event{InterestCompoundedEvent{
		Event: "interest.compounded", Address: address, Amount: owed, Balance: balance, At: now,
	}})
	return owed, nil
}

// SetTierRate appends a rate-history entry for one tier, effective now.
// Rates apply prospectively only: accruals already settled are untouched and
// in-flight windows pick up the new rate from its effective time.
func (v *Vault) SetTierRate(tier Tier, rate uint64) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	v.mu.Lock()
	now := v.now()
	v.rates[tier].Append(rate, now)
	v.mu.Unlock()
	v.emit([]Event{RateChangedEvent{Event: "rate.changed", Tier: tier, Rate: rate, At: now}})
	return nil
}

// SetAllRates appends one entry per tier at the same instant.
func (v *Vault) SetAllRates(r1, r2, r3 uint64) {
	v.mu.Lock()
	now := v.now()
	v.rates[Tier1].Append(r1, now)
	v.rates[Tier2].Append(r2, now)
	v.rates[Tier3].Append(r3, now)
	v.mu.Unlock()
	v.emit([]Event{
		RateChangedEvent{Event: "rate.changed", Tier: Tier1, Rate: r1, At: now},
		RateChangedEvent{Event: "rate.changed", Tier: Tier2, Rate: r2, At: now},
		RateChangedEvent{Event: "rate.changed", Tier: Tier3, Rate: r3, At: now},
	})
}

// SetEligibilityThreshold affects only future join decisions. Raising it
// never demotes an existing ranked account; demotion is balance-driven on
// withdrawal only.
func (v *Vault) SetEligibilityThreshold(amount uint64) {
	v.mu.Lock()
	v.cfg.EligibilityThreshold = amount
	now := v.now()
	v.mu.Unlock()
	v.emit([]Event{ThresholdChangedEvent{Event: "threshold.changed", Threshold: amount, At: now}})
}

// SetCompounding toggles the collaborator-controlled compounding flag.
func (v *Vault) SetCompounding(enabled bool) {
	v.mu.Lock()
	v.cfg.CompoundingEnabled = enabled
	v.mu.Unlock()
}

// settleLocked folds accrued interest into the stored unsettled amount and
// advances the settlement watermark. Must precede every balance mutation so
// rate and tier changes only ever apply prospectively.
func (v *Vault) settleLocked(acct *Account, now uint64) {
	acct.Unsettled = v.unsettledLocked(acct, now)
	acct.LastSettlement = now
}

// unsettledLocked is the read-only accrual projection: stored unsettled plus
// the integral over [lastSettlement, now). A zero balance accrues nothing.
func (v *Vault) unsettledLocked(acct *Account, now uint64) uint64 {
	if acct.Balance == 0 {
		return acct.Unsettled
	}
	return acct.Unsettled + accruedInterest(acct.Balance, acct.Tiers, v.rates, acct.LastSettlement, now)
}

// --- queries (read lock, never mutate) ---

// CurrentTier returns the account's effective tier.
func (v *Vault) CurrentTier(address string) (Tier, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct, ok := v.accounts[address]
	if !ok {
		return TierNone, ErrUnknownAccount
	}
	return acct.currentTier(), nil
}

// TierCounts returns the live population split.
func (v *Vault) TierCounts() (t1, t2, t3 int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return TierCounts(v.index.Size())
}

// Population returns the ranked population size.
func (v *Vault) Population() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.index.Size()
}

// AccountInfo returns the account projection including a live (unpersisted)
// interest preview.
func (v *Vault) AccountInfo(address string) (AccountInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct, ok := v.accounts[address]
	if !ok {
		return AccountInfo{}, ErrUnknownAccount
	}
	tier := acct.currentTier()
	rank := 0
	if acct.Ranked {
		rank = v.index.PrefixCount(acct.JoinSlot)
	}
	return AccountInfo{
		Address:   address,
		Balance:   acct.Balance,
		Tier:      tier,
		Rate:      v.rates[tier].Current(),
		Unsettled: v.unsettledLocked(acct, v.now()),
		Ranked:    acct.Ranked,
		Rank:      rank,
	}, nil
}

// RankOf returns the account's live 1-based rank, or 0 for unranked accounts.
func (v *Vault) RankOf(address string) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct, ok := v.accounts[address]
	if !ok {
		return 0, ErrUnknownAccount
	}
	if !acct.Ranked {
		return 0, nil
	}
	return v.index.PrefixCount(acct.JoinSlot), nil
}

// AccountAtRank resolves a live rank back to its address.
func (v *Vault) AccountAtRank(rank int) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	slot := v.index.FindByCumulativeCount(rank)
	if slot == 0 || v.slots[slot] == nil {
		return "", ErrUnknownRank
	}
	return v.slots[slot].Address, nil
}

// UnsettledInterest previews the interest owed as of now. Repeated calls
// without intervening mutations return the same value.
func (v *Vault) UnsettledInterest(address string) (uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct, ok := v.accounts[address]
	if !ok {
		return 0, ErrUnknownAccount
	}
	return v.unsettledLocked(acct, v.now()), nil
}

// PendingWithdrawals lists the account's withdrawal requests, oldest first.
func (v *Vault) PendingWithdrawals(address string) []WithdrawalRequest {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := v.requestsByAcct[address]
	out := make([]WithdrawalRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, *v.requests[id])
	}
	return out
}

// TierHistoryOf returns the account's append-only tier log.
func (v *Vault) TierHistoryOf(address string) ([]TierChange, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	acct, ok := v.accounts[address]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return acct.Tiers.Entries(), nil
}

// RateHistoryOf returns a tier's append-only rate log.
func (v *Vault) RateHistoryOf(tier Tier) ([]RateEntry, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rates[tier].Entries(), nil
}

// CurrentRate returns a tier's live rate.
func (v *Vault) CurrentRate(tier Tier) (uint64, error) {
	if !tier.Valid() {
		return 0, ErrInvalidTier
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rates[tier].Current(), nil
}

// EligibilityThreshold returns the current join threshold.
func (v *Vault) EligibilityThreshold() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cfg.EligibilityThreshold
}

// CompoundingEnabled reports the compounding flag.
func (v *Vault) CompoundingEnabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cfg.CompoundingEnabled
}
