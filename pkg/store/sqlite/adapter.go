// Package sqlite stores the queue in an on-device SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/sqlkv"
)

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// Config holds SQLite configuration.
type Config struct {
	Path             string
	Table            string
	OperationTimeout time.Duration
}

// Adapter is a store.KV on a single SQLite database file. The table is
// always created on open.
type Adapter struct {
	*sqlkv.Store
	path string
}

// NewAdapter opens or creates the database at cfg.Path.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	path := strings.TrimSpace(cfg.Path)
	kv, err := sqlkv.Open(sqlkv.OpenOptions{
		Driver:  "sqlite3",
		DSN:     path,
		Dialect: sqlkv.SQLite,
		Config:  sqlkv.Config{Table: cfg.Table, OperationTimeout: cfg.OperationTimeout},
		Migrate: true,
		// one writer at a time
		Pool:    sqlkv.Pool{MaxOpenConns: 1, MaxIdleConns: 1},
		Prepare: applyPragmas,
	}, log)
	if err != nil {
		return nil, err
	}
	return &Adapter{Store: kv, path: path}, nil
}

// Path returns the database file path.
func (a *Adapter) Path() string {
	return a.path
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	return nil
}
