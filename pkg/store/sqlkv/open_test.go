package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(OpenOptions{Driver: "postgres", DSN: "  ", Dialect: Postgres}, nil)
	if err == nil {
		t.Fatal("expected error for blank connection string")
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name     string
		migrate  bool
		prepErr  error
		pingErr  error
		wantErr  bool
		wantPrep bool
	}{
		{name: "ping, prepare and migrate", migrate: true, wantPrep: true},
		{name: "no migration", wantPrep: true},
		{name: "ping failure stops early", pingErr: errors.New("refused"), wantErr: true},
		{name: "prepare failure", prepErr: errors.New("pragma"), wantErr: true, wantPrep: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(
				sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
				sqlmock.MonitorPingsOption(true),
			)
			if err != nil {
				t.Fatalf("sqlmock new: %v", err)
			}
			defer db.Close()

			ping := mock.ExpectPing()
			if tt.pingErr != nil {
				ping.WillReturnError(tt.pingErr)
			}
			if tt.migrate && tt.prepErr == nil && tt.pingErr == nil {
				mock.ExpectExec(SQLite.createTable(DefaultTable)).WillReturnResult(sqlmock.NewResult(0, 0))
			}

			prepared := false
			opts := OpenOptions{
				Dialect: SQLite,
				Migrate: tt.migrate,
				Prepare: func(context.Context, *sql.DB) error {
					prepared = true
					return tt.prepErr
				},
			}
			s, err := connect(db, opts, logger.NewNopLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("connect err=%v, wantErr=%v", err, tt.wantErr)
			}
			if prepared != tt.wantPrep {
				t.Fatalf("prepare called=%v, want %v", prepared, tt.wantPrep)
			}
			if !tt.wantErr && s.Table() != DefaultTable {
				t.Fatalf("expected default table, got %q", s.Table())
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}
