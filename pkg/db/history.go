// Package db exposes the history store: append-only ClickHouse tables fed by
// the reporter and read back through the paginated history endpoints.
package db

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tiervault/tiervault/pkg/db/clickhouse"
	"github.com/tiervault/tiervault/pkg/db/models"
	"go.uber.org/zap"
)

// HistoryDB wraps the ClickHouse client with the tiervault tables.
type HistoryDB struct {
	*clickhouse.Client
}

// NewHistoryDB connects and creates the history tables.
func NewHistoryDB(ctx context.Context, logger *zap.Logger) (*HistoryDB, error) {
	client, err := clickhouse.New(ctx, logger.Named("history"))
	if err != nil {
		return nil, err
	}
	db := &HistoryDB{Client: client}
	if err := db.initTables(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return db, nil
}

func (db *HistoryDB) initTables(ctx context.Context) error {
	tables := []struct {
		name   string
		schema string
		order  string
	}{
		{models.TierChangesTableName,
			`address String, from_tier UInt8, to_tier UInt8, at UInt64`,
			`(address, at)`},
		{models.RateChangesTableName,
			`tier UInt8, rate UInt64, at UInt64`,
			`(tier, at)`},
		{models.SettlementsTableName,
			`address String, kind LowCardinality(String), amount UInt64, at UInt64`,
			`(address, at)`},
		{models.WithdrawalsTableName,
			`address String, request_id UInt64, amount UInt64, requested_at UInt64, completed_at UInt64`,
			`(address, request_id)`},
	}
	for _, t := range tables {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" (%s)
			ENGINE = MergeTree
			ORDER BY %s
		`, db.Database, t.name, t.schema, t.order)
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return nil
}

// InsertTierChanges batch-inserts tier transitions.
func (db *HistoryDB) InsertTierChanges(ctx context.Context, rows []models.TierChange) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO "%s"."%s" (address, from_tier, to_tier, at) VALUES`,
		db.Database, models.TierChangesTableName))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) { _ = batch.Abort() }(batch)

	for _, r := range rows {
		if err := batch.Append(r.Address, r.FromTier, r.ToTier, r.At); err != nil {
			return err
		}
	}
	return batch.Send()
}

// InsertRateChanges batch-inserts rate-history entries.
func (db *HistoryDB) InsertRateChanges(ctx context.Context, rows []models.RateChange) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO "%s"."%s" (tier, rate, at) VALUES`,
		db.Database, models.RateChangesTableName))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) { _ = batch.Abort() }(batch)

	for _, r := range rows {
		if err := batch.Append(r.Tier, r.Rate, r.At); err != nil {
			return err
		}
	}
	return batch.Send()
}

// InsertSettlements batch-inserts claim/compound records.
func (db *HistoryDB) InsertSettlements(ctx context.Context, rows []models.Settlement) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO "%s"."%s" (address, kind, amount, at) VALUES`,
		db.Database, models.SettlementsTableName))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) { _ = batch.Abort() }(batch)

	for _, r := range rows {
		if err := batch.Append(r.Address, r.Kind, r.Amount, r.At); err != nil {
			return err
		}
	}
	return batch.Send()
}

// InsertWithdrawals batch-inserts withdrawal request/completion rows.
func (db *HistoryDB) InsertWithdrawals(ctx context.Context, rows []models.Withdrawal) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO "%s"."%s" (address, request_id, amount, requested_at, completed_at) VALUES`,
		db.Database, models.WithdrawalsTableName))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) { _ = batch.Abort() }(batch)

	for _, r := range rows {
		if err := batch.Append(r.Address, r.RequestID, r.Amount, r.RequestedAt, r.CompletedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

// QueryTierChanges returns an account's tier transitions with cursor
// pagination (cursor = at, exclusive; limit+1 pattern handled by caller).
func (db *HistoryDB) QueryTierChanges(ctx context.Context, address string, cursor uint64, limit int, desc bool) ([]models.TierChange, error) {
	dir, cmp := "ASC", ">"
	if desc {
		dir, cmp = "DESC", "<"
	}
	where := `address = ?`
	args := []any{address}
	if cursor > 0 {
		where += fmt.Sprintf(` AND at %s ?`, cmp)
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`
		SELECT address, from_tier, to_tier, at
		FROM "%s"."%s"
		WHERE %s
		ORDER BY at %s
		LIMIT %d
	`, db.Database, models.TierChangesTableName, where, dir, limit)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.TierChange
	for rows.Next() {
		var r models.TierChange
		if err := rows.Scan(&r.Address, &r.FromTier, &r.ToTier, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryRateChanges returns a tier's rate entries with cursor pagination.
func (db *HistoryDB) QueryRateChanges(ctx context.Context, tier uint8, cursor uint64, limit int, desc bool) ([]models.RateChange, error) {
	dir, cmp := "ASC", ">"
	if desc {
		dir, cmp = "DESC", "<"
	}
	where := `tier = ?`
	args := []any{tier}
	if cursor > 0 {
		where += fmt.Sprintf(` AND at %s ?`, cmp)
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`
		SELECT tier, rate, at
		FROM "%s"."%s"
		WHERE %s
		ORDER BY at %s
		LIMIT %d
	`, db.Database, models.RateChangesTableName, where, dir, limit)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.RateChange
	for rows.Next() {
		var r models.RateChange
		if err := rows.Scan(&r.Tier, &r.Rate, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
