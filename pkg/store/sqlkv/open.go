package sqlkv

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const connectTimeout = 5 * time.Second

// Pool mirrors the database/sql pool knobs. Zero values keep the driver defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

// OpenOptions describes one connection attempt.
type OpenOptions struct {
	Driver  string
	DSN     string
	Dialect Dialect
	Pool    Pool
	Config  Config
	// Migrate creates the table after connecting.
	Migrate bool
	// Prepare runs on the verified connection before the table is touched.
	Prepare func(ctx context.Context, db *sql.DB) error
}

// Open connects with opts.Driver, verifies the connection and returns a Store
// that owns the pool. Any failure closes the pool.
func Open(opts OpenOptions, log logger.Logger) (*Store, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("%s connection string is required", opts.Dialect.Name)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Dialect.Name, err)
	}
	opts.Pool.apply(db)

	s, err := connect(db, opts, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("SQL store connected",
		"dialect", opts.Dialect.Name,
		"table", s.Table(),
		"max_open_conns", opts.Pool.MaxOpenConns,
	)
	return s, nil
}

func connect(db *sql.DB, opts OpenOptions, log logger.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", opts.Dialect.Name, err)
	}
	if opts.Prepare != nil {
		if err := opts.Prepare(ctx, db); err != nil {
			return nil, err
		}
	}
	s, err := New(db, opts.Dialect, opts.Config, log)
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}
