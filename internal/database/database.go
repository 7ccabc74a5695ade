package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const connectAttempts = 5

// Open connects to Postgres, retrying while the server comes up. A DSN starting with
// "file:" opens a SQLite database instead, which is handy for local runs.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if strings.HasPrefix(cfg.DSN, "file:") {
		return OpenSQLite(ctx, cfg.DSN)
	}

	var (
		sqldb *sql.DB
		err   error
	)
	for i := 1; i <= connectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i, connectAttempts))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL not reachable: %v", err))
		if i < connectAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres after %d attempts: %w", connectAttempts, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// OpenSQLite opens a SQLite database and creates the schema. SQLite serializes writers,
// so the pool is limited to a single connection.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CreateSchema builds the tables from the bun models. Postgres deployments use the SQL
// migrations instead; this is for SQLite.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Event)(nil),
		(*models.TicketClass)(nil),
		(*models.Booking)(nil),
		(*models.DailySales)(nil),
		(*models.SalesLedgerEntry)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_one_active_per_user_event").
		Unique().
		IfNotExists().
		Column("user_id", "event_id").
		Where("status IN (?)", bun.In(models.ActiveStatuses)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create active booking index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_provider_order_id").
		Unique().
		IfNotExists().
		Column("payment_provider_order_id").
		Where("payment_provider_order_id IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create provider order index: %w", err)
	}
	return nil
}
