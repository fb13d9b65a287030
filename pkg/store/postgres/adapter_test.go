package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func TestNewPostgreSQLAdapter_RequiresURL(t *testing.T) {
	if _, err := NewPostgreSQLAdapter(Config{QueryTimeout: time.Second}, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestNewAdapterWithDB_AutoMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS queue_state (store_key TEXT PRIMARY KEY, store_value BYTEA")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	adapter, err := newAdapterWithDB(context.Background(), db, Config{Table: "queue_state", AutoMigrate: true}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_state (store_key, store_value, updated_at) VALUES ($1, $2, $3) ON CONFLICT")).
		WithArgs("offline_queue:queue", []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := adapter.Set(context.Background(), "offline_queue:queue", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	mock.ExpectClose()
	if err := adapter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewAdapterWithDB_SkipsMigrationByDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	if _, err := newAdapterWithDB(context.Background(), db, Config{}, logger.NewNopLogger()); err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements: %v", err)
	}
}
