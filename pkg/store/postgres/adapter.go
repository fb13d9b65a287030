// Package postgres stores the queue in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/sqlkv"
)

// Config holds the connection string, table and pool settings.
type Config struct {
	URL             string
	Table           string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

func (c Config) kv() sqlkv.Config {
	return sqlkv.Config{Table: c.Table, OperationTimeout: c.QueryTimeout}
}

// PostgreSQLAdapter is a store.KV on a pooled PostgreSQL connection.
type PostgreSQLAdapter struct {
	*sqlkv.Store
	log logger.Logger
}

// NewPostgreSQLAdapter connects and, with AutoMigrate, creates the table.
func NewPostgreSQLAdapter(cfg Config, log logger.Logger) (*PostgreSQLAdapter, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	kv, err := sqlkv.Open(sqlkv.OpenOptions{
		Driver:  "postgres",
		DSN:     cfg.URL,
		Dialect: sqlkv.Postgres,
		Config:  cfg.kv(),
		Migrate: cfg.AutoMigrate,
		Pool: sqlkv.Pool{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		},
	}, log)
	if err != nil {
		return nil, err
	}
	return &PostgreSQLAdapter{Store: kv, log: log}, nil
}

func newAdapterWithDB(ctx context.Context, db *sql.DB, cfg Config, log logger.Logger) (*PostgreSQLAdapter, error) {
	kv, err := sqlkv.New(db, sqlkv.Postgres, cfg.kv(), log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := kv.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return &PostgreSQLAdapter{Store: kv, log: log}, nil
}

// Close releases the pool.
func (a *PostgreSQLAdapter) Close() error {
	err := a.Store.Close()
	if err != nil {
		a.log.Error("postgres store close failed", "error", err)
	}
	return err
}
