package sqlkv

import (
	"fmt"
	"strings"
)

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name string
	// BindVar returns the placeholder for the n-th (1-based) argument.
	BindVar func(n int) string
	// ValueType is the column type used for the opaque value.
	ValueType string
	// KeyType is the column type used for the primary key.
	KeyType string
	// UpsertSuffix completes an INSERT so that it overwrites an existing key.
	UpsertSuffix string
}

var (
	// Postgres targets PostgreSQL through lib/pq.
	Postgres = Dialect{
		Name:         "postgres",
		BindVar:      func(n int) string { return fmt.Sprintf("$%d", n) },
		KeyType:      "TEXT",
		ValueType:    "BYTEA",
		UpsertSuffix: "ON CONFLICT (store_key) DO UPDATE SET store_value = EXCLUDED.store_value, updated_at = EXCLUDED.updated_at",
	}
	// SQLite targets an on-device database through mattn/go-sqlite3.
	SQLite = Dialect{
		Name:         "sqlite",
		BindVar:      func(int) string { return "?" },
		KeyType:      "TEXT",
		ValueType:    "BLOB",
		UpsertSuffix: "ON CONFLICT (store_key) DO UPDATE SET store_value = excluded.store_value, updated_at = excluded.updated_at",
	}
	// MySQL targets MySQL through go-sql-driver/mysql.
	MySQL = Dialect{
		Name:         "mysql",
		BindVar:      func(int) string { return "?" },
		KeyType:      "VARCHAR(255)",
		ValueType:    "LONGBLOB",
		UpsertSuffix: "ON DUPLICATE KEY UPDATE store_value = VALUES(store_value), updated_at = VALUES(updated_at)",
	}
)

func (d Dialect) createTable(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (store_key %s PRIMARY KEY, store_value %s NOT NULL, updated_at BIGINT NOT NULL)",
		table, d.KeyType, d.ValueType,
	)
}

func (d Dialect) selectValue(table string) string {
	return fmt.Sprintf("SELECT store_value FROM %s WHERE store_key = %s", table, d.BindVar(1))
}

func (d Dialect) upsert(table string) string {
	return strings.Join([]string{
		fmt.Sprintf("INSERT INTO %s (store_key, store_value, updated_at) VALUES (%s, %s, %s)",
			table, d.BindVar(1), d.BindVar(2), d.BindVar(3)),
		d.UpsertSuffix,
	}, " ")
}
