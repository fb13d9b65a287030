package mysql

import (
	"testing"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func TestNewMySQLAdapter_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty URL", cfg: Config{}},
		{name: "malformed DSN", cfg: Config{URL: "not a dsn"}},
		{name: "bad table name", cfg: Config{URL: "queue:queue@tcp(127.0.0.1:1)/offlinequeue", Table: "kv; DROP"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMySQLAdapter(tt.cfg, logger.NewNopLogger()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
