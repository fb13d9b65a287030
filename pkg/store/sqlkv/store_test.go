package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, dialect, Config{OperationTimeout: time.Second}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return s, mock
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Postgres, Config{}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for nil db")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	if _, err := New(db, Postgres, Config{Table: "queue; DROP TABLE x"}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for unsafe table name")
	}
	s, err := New(db, Postgres, Config{}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.Table() != DefaultTable {
		t.Fatalf("expected default table, got %q", s.Table())
	}
}

func TestStore_EnsureSchema(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, "CREATE TABLE IF NOT EXISTS offline_queue_kv (store_key TEXT PRIMARY KEY, store_value BYTEA NOT NULL, updated_at BIGINT NOT NULL)"},
		{SQLite, "CREATE TABLE IF NOT EXISTS offline_queue_kv (store_key TEXT PRIMARY KEY, store_value BLOB NOT NULL, updated_at BIGINT NOT NULL)"},
		{MySQL, "CREATE TABLE IF NOT EXISTS offline_queue_kv (store_key VARCHAR(255) PRIMARY KEY, store_value LONGBLOB NOT NULL, updated_at BIGINT NOT NULL)"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			s, mock := newMockStore(t, tt.dialect)
			mock.ExpectExec(tt.want).WillReturnResult(sqlmock.NewResult(0, 0))
			if err := s.EnsureSchema(context.Background()); err != nil {
				t.Fatalf("ensure schema: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestStore_Get(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectQuery("SELECT store_value FROM offline_queue_kv WHERE store_key = $1").
		WithArgs("offline_queue:queue").
		WillReturnRows(sqlmock.NewRows([]string{"store_value"}).AddRow([]byte(`[]`)))

	value, found, err := s.Get(context.Background(), "offline_queue:queue")
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if string(value) != "[]" {
		t.Fatalf("unexpected value %q", value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectQuery("SELECT store_value FROM offline_queue_kv WHERE store_key = ?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	value, found, err := s.Get(context.Background(), "missing")
	if err != nil || found || value != nil {
		t.Fatalf("expected clean miss, got value=%q found=%v err=%v", value, found, err)
	}
}

func TestStore_GetError(t *testing.T) {
	s, mock := newMockStore(t, MySQL)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT store_value FROM offline_queue_kv WHERE store_key = ?").
		WithArgs("k").
		WillReturnError(boom)

	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestStore_SetUpserts(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, "INSERT INTO offline_queue_kv (store_key, store_value, updated_at) VALUES ($1, $2, $3) ON CONFLICT (store_key) DO UPDATE SET store_value = EXCLUDED.store_value, updated_at = EXCLUDED.updated_at"},
		{SQLite, "INSERT INTO offline_queue_kv (store_key, store_value, updated_at) VALUES (?, ?, ?) ON CONFLICT (store_key) DO UPDATE SET store_value = excluded.store_value, updated_at = excluded.updated_at"},
		{MySQL, "INSERT INTO offline_queue_kv (store_key, store_value, updated_at) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE store_value = VALUES(store_value), updated_at = VALUES(updated_at)"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			s, mock := newMockStore(t, tt.dialect)
			mock.ExpectExec(tt.want).
				WithArgs("offline_queue:sync_status", []byte(`{}`), int64(1_700_000_000_000)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			if err := s.Set(context.Background(), "offline_queue:sync_status", []byte(`{}`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestStore_HealthCheckAndClose(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectPing()
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("down"))
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected failing health check")
	}

	mock.ExpectClose()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithOperationTimeout_RespectsCallerDeadline(t *testing.T) {
	s := &Store{timeout: time.Hour}
	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctx, done := s.withOperationTimeout(parent)
	defer done()
	deadline, _ := ctx.Deadline()
	if time.Until(deadline) > time.Second {
		t.Fatal("expected caller deadline to be kept")
	}
}
