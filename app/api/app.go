// Package api assembles the tiervault service: the staking engine, its
// collaborators, and the HTTP surface.
package api

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tiervault/tiervault/app/api/types"
	"github.com/tiervault/tiervault/pkg/custody"
	"github.com/tiervault/tiervault/pkg/db"
	"github.com/tiervault/tiervault/pkg/logging"
	"github.com/tiervault/tiervault/pkg/redis"
	"github.com/tiervault/tiervault/pkg/reporter"
	"github.com/tiervault/tiervault/pkg/staking"
	"github.com/tiervault/tiervault/pkg/utils"
	"go.uber.org/zap"
)

// Initialize wires the application from environment configuration.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg := staking.Config{
		Capacity:             utils.EnvInt("VAULT_CAPACITY", 10000),
		EligibilityThreshold: utils.EnvUint64("VAULT_THRESHOLD", 1_000_000),
		UnstakeDelay:         utils.EnvDuration("VAULT_UNSTAKE_DELAY", 21*24*time.Hour),
		InitialRates: map[staking.Tier]uint64{
			staking.Tier1: utils.EnvUint64("VAULT_RATE_TIER1", 50*staking.RateUnit),
			staking.Tier2: utils.EnvUint64("VAULT_RATE_TIER2", 30*staking.RateUnit),
			staking.Tier3: utils.EnvUint64("VAULT_RATE_TIER3", 10*staking.RateUnit),
		},
		CompoundingEnabled: utils.Env("VAULT_COMPOUNDING", "true") == "true",
	}

	vaultCustody := custody.NewMemory(utils.EnvUint64("VAULT_RESERVE", 0), logger)

	// Redis fan-out is optional.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - real-time events will be disabled", zap.Error(err))
			redisClient = nil
		}
	} else {
		logger.Info("Redis disabled - real-time events will not be available")
	}

	// ClickHouse history is optional.
	var historyDB *db.HistoryDB
	if utils.Env("CLICKHOUSE_ENABLED", "false") == "true" {
		historyDB, err = db.NewHistoryDB(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to initialize history database", zap.Error(err))
		}
	} else {
		logger.Info("ClickHouse disabled - history endpoints serve from engine memory")
	}

	var rep *reporter.Reporter
	var sink staking.EventSink
	if historyDB != nil || redisClient != nil {
		rep, err = reporter.New(ctx, logger, historyDB, redisClient)
		if err != nil {
			logger.Fatal("Unable to start reporter", zap.Error(err))
		}
		sink = rep
	}

	vault := staking.New(cfg, nil, vaultCustody, vaultCustody, sink, logger)

	passHash, err := utils.HashOrRead(utils.Env("ADMIN_PASSWORD", "admin"))
	if err != nil {
		logger.Fatal("Unable to prepare admin password hash", zap.Error(err))
	}

	return &types.App{
		Vault:         vault,
		Custody:       vaultCustody,
		Reserve:       vaultCustody,
		HistoryDB:     historyDB,
		RedisClient:   redisClient,
		Reporter:      rep,
		WSClients:     xsync.NewMap[uint64, *types.WSClient](),
		Logger:        logger,
		AdminToken:    utils.Env("ADMIN_TOKEN", ""),
		AdminUser:     utils.Env("ADMIN_USER", "admin"),
		AdminPassHash: passHash,
		JWTSecret:     []byte(utils.Env("JWT_SECRET", "tiervault-dev-secret")),
	}
}
