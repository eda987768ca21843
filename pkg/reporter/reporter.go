// Package reporter fans engine events out to the history store and Redis.
// The engine emits events synchronously after each committed mutation; the
// reporter buffers them and flushes in batches on a cron tick so event I/O
// can never slow down or fail the ledger.
package reporter

import (
	"context"
	"errors"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"github.com/tiervault/tiervault/pkg/db"
	"github.com/tiervault/tiervault/pkg/db/models"
	redisclient "github.com/tiervault/tiervault/pkg/redis"
	"github.com/tiervault/tiervault/pkg/staking"
	"github.com/tiervault/tiervault/pkg/utils"
	"go.uber.org/zap"
)

// Reporter implements staking.EventSink. History and Redis are both
// optional; a nil collaborator simply disables that output.
type Reporter struct {
	logger  *zap.Logger
	history *db.HistoryDB
	redis   *redisclient.Client
	pool    pond.Pool
	cron    *cron.Cron
	ctx     context.Context

	mu          sync.Mutex
	tierChanges []models.TierChange
	rateChanges []models.RateChange
	settlements []models.Settlement
	withdrawals []models.Withdrawal
}

// New builds the reporter and starts its flush schedule.
// REPORTER_FLUSH_SPEC is a seconds-granularity cron spec (default every 10s);
// REPORTER_WORKERS sizes the insert worker pool.
func New(ctx context.Context, logger *zap.Logger, history *db.HistoryDB, redis *redisclient.Client) (*Reporter, error) {
	r := &Reporter{
		logger:  logger.Named("reporter"),
		history: history,
		redis:   redis,
		pool:    pond.NewPool(utils.EnvInt("REPORTER_WORKERS", 4)),
		ctx:     ctx,
	}

	r.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	spec := utils.Env("REPORTER_FLUSH_SPEC", "*/10 * * * * *")
	if _, err := r.cron.AddFunc(spec, func() { r.Flush(ctx) }); err != nil {
		return nil, err
	}
	r.cron.Start()
	r.logger.Info("Reporter started", zap.String("flushSpec", spec))
	return r, nil
}

// Emit buffers the event for the next flush and publishes it to Redis off
// the caller's goroutine. Never blocks the engine.
func (r *Reporter) Emit(event staking.Event) {
	if r.redis != nil {
		r.pool.Submit(func() { r.redis.PublishEvent(r.ctx, event) })
	}
	if r.history == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch e := event.(type) {
	case staking.TierChangedEvent:
		r.tierChanges = append(r.tierChanges, models.TierChange{
			Address: e.Address, FromTier: uint8(e.From), ToTier: uint8(e.To), At: e.At,
		})
	case staking.RateChangedEvent:
		r.rateChanges = append(r.rateChanges, models.RateChange{
			Tier: uint8(e.Tier), Rate: e.Rate, At: e.At,
		})
	case staking.InterestClaimedEvent:
		r.settlements = append(r.settlements, models.Settlement{
			Address: e.Address, Kind: "claim", Amount: e.Amount, At: e.At,
		})
	case staking.InterestCompoundedEvent:
		r.settlements = append(r.settlements, models.Settlement{
			Address: e.Address, Kind: "compound", Amount: e.Amount, At: e.At,
		})
	case staking.WithdrawRequestedEvent:
		r.withdrawals = append(r.withdrawals, models.Withdrawal{
			Address: e.Address, RequestID: e.RequestID, Amount: e.Amount, RequestedAt: e.At,
		})
	case staking.WithdrawCompletedEvent:
		r.withdrawals = append(r.withdrawals, models.Withdrawal{
			Address: e.Address, RequestID: e.RequestID, Amount: e.Amount, CompletedAt: e.At,
		})
	}
}

// Flush drains the buffers and batch-inserts each table in parallel. Failed
// batches are re-queued for the next tick; history is append-only so retries
// can at worst duplicate rows, which readers collapse by key.
func (r *Reporter) Flush(ctx context.Context) {
	if r.history == nil {
		return
	}

	r.mu.Lock()
	tiers, rates, settles, withdrawals := r.tierChanges, r.rateChanges, r.settlements, r.withdrawals
	r.tierChanges, r.rateChanges, r.settlements, r.withdrawals = nil, nil, nil, nil
	r.mu.Unlock()

	if len(tiers)+len(rates)+len(settles)+len(withdrawals) == 0 {
		return
	}

	group := r.pool.NewGroup()
	group.Submit(func() {
		if err := r.history.InsertTierChanges(ctx, tiers); err != nil {
			r.logger.Warn("Failed to flush tier changes", zap.Int("rows", len(tiers)), zap.Error(err))
			r.requeueTierChanges(tiers)
		}
	})
	group.Submit(func() {
		if err := r.history.InsertRateChanges(ctx, rates); err != nil {
			r.logger.Warn("Failed to flush rate changes", zap.Int("rows", len(rates)), zap.Error(err))
			r.requeueRateChanges(rates)
		}
	})
	group.Submit(func() {
		if err := r.history.InsertSettlements(ctx, settles); err != nil {
			r.logger.Warn("Failed to flush settlements", zap.Int("rows", len(settles)), zap.Error(err))
			r.requeueSettlements(settles)
		}
	})
	group.Submit(func() {
		if err := r.history.InsertWithdrawals(ctx, withdrawals); err != nil {
			r.logger.Warn("Failed to flush withdrawals", zap.Int("rows", len(withdrawals)), zap.Error(err))
			r.requeueWithdrawals(withdrawals)
		}
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.logger.Warn("Flush group error", zap.Error(err))
	}

	r.logger.Debug("Flushed history batches",
		zap.Int("tierChanges", len(tiers)),
		zap.Int("rateChanges", len(rates)),
		zap.Int("settlements", len(settles)),
		zap.Int("withdrawals", len(withdrawals)))
}

func (r *Reporter) requeueTierChanges(rows []models.TierChange) {
	r.mu.Lock()
	r.tierChanges = append(rows, r.tierChanges...)
	r.mu.Unlock()
}

func (r *Reporter) requeueRateChanges(rows []models.RateChange) {
	r.mu.Lock()
	r.rateChanges = append(rows, r.rateChanges...)
	r.mu.Unlock()
}

func (r *Reporter) requeueSettlements(rows []models.Settlement) {
	r.mu.Lock()
	r.settlements = append(rows, r.settlements...)
	r.mu.Unlock()
}

func (r *Reporter) requeueWithdrawals(rows []models.Withdrawal) {
	r.mu.Lock()
	r.withdrawals = append(rows, r.withdrawals...)
	r.mu.Unlock()
}

// Close stops the schedule, flushes what remains, and drains the pool.
func (r *Reporter) Close() {
	r.cron.Stop()
	r.Flush(context.Background())
	r.pool.StopAndWait()
}
