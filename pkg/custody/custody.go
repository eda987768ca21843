// Package custody defines the value-movement collaborators the staking vault
// signals after its own state is committed. The vault never moves value
// itself: withdrawals and reward payouts are released through a Custody
// implementation, and interest payouts draw down a Reserve.
package custody

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Custody releases value to participants. Implementations are invoked only
// after the vault has fully committed the corresponding ledger mutation.
type Custody interface {
	// Release transfers a completed withdrawal back to its owner.
	Release(ctx context.Context, address string, amount uint64) error
	// PayReward transfers claimed interest from the reward pool.
	PayReward(ctx context.Context, address string, amount uint64) error
}

// Reserve tracks the reward pool backing interest claims and compounds.
type Reserve interface {
	Available() uint64
	Debit(amount uint64) error
	Credit(amount uint64)
}

var ErrReserveUnderflow = errors.New("reserve underflow")

// Memory is an in-process custody/reserve pair for tests and single-node
// deployments. It records what was released and paid per address so tests
// can assert on value movement.
type Memory struct {
	mu       sync.Mutex
	reserve  uint64
	released map[string]uint64
	rewards  map[string]uint64
	logger   *zap.Logger
}

func NewMemory(initialReserve uint64, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		reserve:  initialReserve,
		released: make(map[string]uint64),
		rewards:  make(map[string]uint64),
		logger:   logger,
	}
}

func (m *Memory) Release(_ context.Context, address string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released[address] += amount
	m.logger.Debug("custody release", zap.String("address", address), zap.Uint64("amount", amount))
	return nil
}

func (m *Memory) PayReward(_ context.Context, address string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[address] += amount
	m.logger.Debug("custody reward payout", zap.String("address", address), zap.Uint64("amount", amount))
	return nil
}

func (m *Memory) Available() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve
}

func (m *Memory) Debit(amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount > m.reserve {
		return ErrReserveUnderflow
	}
	m.reserve -= amount
	return nil
}

func (m *Memory) Credit(amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserve += amount
}

// Released reports the total released to an address so far.
func (m *Memory) Released(address string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[address]
}

// Rewards reports the total interest paid to an address so far.
func (m *Memory) Rewards(address string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rewards[address]
}
