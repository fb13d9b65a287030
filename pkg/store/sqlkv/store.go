// Package sqlkv implements store.KV on a single SQL table shared by the
// sqlite, postgres and mysql adapters.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/gate"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "offline_queue_kv"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures the table-backed store.
type Config struct {
	Table            string
	OperationTimeout time.Duration
}

// Store persists values in a (store_key, store_value, updated_at) table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time
}

// New wraps an open database. The caller keeps ownership of connection pool settings.
func New(db *sql.DB, dialect Dialect, cfg Config, log logger.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		table:   table,
		timeout: cfg.OperationTimeout,
		logger:  log,
		now:     time.Now,
	}, nil
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the table name values are stored in.
func (s *Store) Table() string {
	return s.table
}

// EnsureSchema creates the table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	opCtx, cancel := s.withOperationTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(opCtx, s.dialect.createTable(s.table)); err != nil {
		return fmt.Errorf("failed to create %s table %s: %w", s.dialect.Name, s.table, err)
	}
	return nil
}

// Get reads a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := s.withOperationTimeout(ctx)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(opCtx, s.dialect.selectValue(s.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or overwrites a value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	opCtx, cancel := s.withOperationTimeout(ctx)
	defer cancel()

	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(opCtx, s.dialect.upsert(s.table), key, value, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings the database with a short timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(hcCtx); err != nil {
		s.logger.Error("SQL store health check failed", "dialect", s.dialect.Name, "error", err)
		return fmt.Errorf("%s health check failed: %w", s.dialect.Name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s connection: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Store) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return gate.Bound(ctx, s.timeout)
}
