package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const (
	defaultPostgresLockTable     = "offlinequeue_locks"
	defaultPostgresLockOperation = 3 * time.Second
)

var identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresLockProviderConfig configures leases stored as table rows.
type PostgresLockProviderConfig struct {
	URL              string
	Table            string
	OperationTimeout time.Duration
}

// postgresLockSQL holds the statements for one lease table.
type postgresLockSQL struct {
	create, acquire, renew, release string
}

func lockStatements(table string) postgresLockSQL {
	return postgresLockSQL{
		create: `CREATE TABLE IF NOT EXISTS ` + table + ` (
	lock_key TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		// The conflict branch only fires for expired rows, so a live lease
		// yields no row and the caller loses.
		acquire: `INSERT INTO ` + table + ` AS l (lock_key, token, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (lock_key) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, acquired_at = NOW()
WHERE l.expires_at <= NOW()
RETURNING l.token`,
		renew:   `UPDATE ` + table + ` SET expires_at = $3 WHERE lock_key = $1 AND token = $2 AND expires_at > NOW()`,
		release: `DELETE FROM ` + table + ` WHERE lock_key = $1 AND token = $2`,
	}
}

// PostgresLockProvider keeps one row per lease key in a table it creates on
// connect. An expired row is taken over by the next Acquire.
type PostgresLockProvider struct {
	db      *sql.DB
	sql     postgresLockSQL
	table   string
	timeout time.Duration
	log     logger.Logger
}

// NewPostgresLockProvider connects to cfg.URL and creates the lease table.
func NewPostgresLockProvider(cfg PostgresLockProviderConfig, log logger.Logger) (*PostgresLockProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, schedulerError(ErrInvalidArgument, "postgres url is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p, err := newPostgresLockProviderWithDB(db, cfg, log)
	if err == nil {
		err = p.migrate()
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	p.log.Info("postgres lock provider connected", "table", p.table)
	return p, nil
}

func newPostgresLockProviderWithDB(db *sql.DB, cfg PostgresLockProviderConfig, log logger.Logger) (*PostgresLockProvider, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultPostgresLockTable
	}
	if !identifier.MatchString(table) {
		return nil, schedulerError(ErrValidation, fmt.Sprintf("invalid lease table name %q", table))
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultPostgresLockOperation
	}
	return &PostgresLockProvider{
		db:      db,
		sql:     lockStatements(table),
		table:   table,
		timeout: timeout,
		log:     log,
	}, nil
}

func (p *PostgresLockProvider) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.HealthCheck(ctx); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, p.sql.create); err != nil {
		return fmt.Errorf("create lease table %s: %w", p.table, err)
	}
	return nil
}

// Acquire inserts the lease row, or takes it over when it has expired.
func (p *PostgresLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockLease, bool, error) {
	lease, err := newLease(key, ttl)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var token string
	err = p.db.QueryRowContext(ctx, p.sql.acquire, lease.Key, lease.Token, lease.ExpireAt).Scan(&token)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Join(schedulerError(ErrRetryable, "postgres acquire failed"), err)
	}
	p.log.Debug("lease acquired", "key", lease.Key, "ttl", ttl)
	return lease, true, nil
}

// Renew pushes the expiry of a still-held, unexpired lease to now+ttl.
func (p *PostgresLockProvider) Renew(ctx context.Context, lease *LockLease, ttl time.Duration) error {
	if ttl <= 0 {
		return schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}
	key, token, err := heldLease(lease)
	if err != nil {
		return err
	}
	expireAt := time.Now().UTC().Add(ttl)
	if err := p.execOwned(ctx, "renew", p.sql.renew, key, token, expireAt); err != nil {
		return err
	}
	lease.ExpireAt = expireAt
	return nil
}

// Release deletes a still-held lease row.
func (p *PostgresLockProvider) Release(ctx context.Context, lease *LockLease) error {
	key, token, err := heldLease(lease)
	if err != nil {
		return err
	}
	return p.execOwned(ctx, "release", p.sql.release, key, token)
}

// execOwned runs a statement that must touch exactly the caller's row.
func (p *PostgresLockProvider) execOwned(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	res, err := p.db.ExecContext(ctx, query, args...)
	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	if err != nil {
		return errors.Join(schedulerError(ErrRetryable, "postgres "+op+" failed"), err)
	}
	if n == 0 {
		return lostLease(op)
	}
	return nil
}

// HealthCheck pings the database.
func (p *PostgresLockProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return errors.Join(schedulerError(ErrRetryable, "postgres ping failed"), err)
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresLockProvider) Close() error {
	return p.db.Close()
}
