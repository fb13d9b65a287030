// Package mysql stores the queue in a MySQL table.
package mysql

import (
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/sqlkv"
)

// Config takes a go-sql-driver DSN such as user:pass@tcp(host:3306)/db.
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

// MySQLAdapter is a store.KV on a MySQL table.
type MySQLAdapter struct {
	*sqlkv.Store
}

// NewMySQLAdapter connects and, with AutoMigrate, creates the table.
func NewMySQLAdapter(cfg Config, log logger.Logger) (*MySQLAdapter, error) {
	kv, err := sqlkv.Open(sqlkv.OpenOptions{
		Driver:  "mysql",
		DSN:     cfg.URL,
		Dialect: sqlkv.MySQL,
		Config:  sqlkv.Config{Table: cfg.Table, OperationTimeout: cfg.QueryTimeout},
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
	return &MySQLAdapter{Store: kv}, nil
}
