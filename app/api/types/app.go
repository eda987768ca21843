package types

import (
	"context"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tiervault/tiervault/pkg/custody"
	"github.com/tiervault/tiervault/pkg/db"
	"github.com/tiervault/tiervault/pkg/redis"
	"github.com/tiervault/tiervault/pkg/reporter"
	"github.com/tiervault/tiervault/pkg/staking"
	"go.uber.org/zap"
)

// WSClient tracks one live websocket subscriber.
type WSClient struct {
	RemoteAddr  string
	ConnectedAt time.Time
}

type App struct {
	// Vault is the ranking/accrual engine; the single writer for all staking state.
	Vault *staking.Vault

	// Custody releases value after the ledger commits; Reserve backs interest payouts.
	Custody custody.Custody
	Reserve custody.Reserve

	// HistoryDB is the ClickHouse history store (optional).
	HistoryDB *db.HistoryDB

	// RedisClient feeds the websocket bridge (optional).
	RedisClient *redis.Client

	// Reporter fans engine events out to HistoryDB and Redis (optional).
	Reporter *reporter.Reporter

	// WSClients tracks live websocket connections by connection id.
	WSClients *xsync.Map[uint64, *WSClient]

	// Zap Logger
	Logger *zap.Logger

	// Server handles incoming client requests.
	Server *http.Server

	// Admin auth material.
	AdminToken    string
	AdminUser     string
	AdminPassHash []byte
	JWTSecret     []byte
}

// Start runs the HTTP server until the context is cancelled, then shuts
// everything down in dependency order.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Reporter != nil {
		a.Reporter.Close()
	}
	if a.HistoryDB != nil {
		if err := a.HistoryDB.Close(); err != nil {
			a.Logger.Error("Failed to close history database", zap.Error(err))
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	a.Logger.Info("Shutdown complete")
}
