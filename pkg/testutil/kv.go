package testutil

import (
	"bytes"
	"context"
	"testing"
)

// KV mirrors store.KV so store packages can use the contract without an
// import cycle.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	HealthCheck(ctx context.Context) error
}

// RunKVContract checks the behaviour every queue store must share: misses are
// not errors, writes overwrite, keys are independent and large snapshots
// round-trip unchanged.
func RunKVContract(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		if err := kv.HealthCheck(ctx); err != nil {
			t.Fatalf("health check: %v", err)
		}
	})

	t.Run("miss", func(t *testing.T) {
		value, found, err := kv.Get(ctx, "contract:never-written")
		if err != nil || found || len(value) != 0 {
			t.Fatalf("expected clean miss, got value=%q found=%v err=%v", value, found, err)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		for _, v := range []string{`[{"id":"a"}]`, `[]`} {
			if err := kv.Set(ctx, "contract:queue", []byte(v)); err != nil {
				t.Fatalf("set %s: %v", v, err)
			}
		}
		value, found, err := kv.Get(ctx, "contract:queue")
		if err != nil || !found || string(value) != `[]` {
			t.Fatalf("expected last write, got value=%q found=%v err=%v", value, found, err)
		}
	})

	t.Run("independent keys", func(t *testing.T) {
		if err := kv.Set(ctx, "contract:a", []byte("A")); err != nil {
			t.Fatalf("set a: %v", err)
		}
		if err := kv.Set(ctx, "contract:b", []byte("B")); err != nil {
			t.Fatalf("set b: %v", err)
		}
		a, _, _ := kv.Get(ctx, "contract:a")
		b, _, _ := kv.Get(ctx, "contract:b")
		if string(a) != "A" || string(b) != "B" {
			t.Fatalf("keys interfere: a=%q b=%q", a, b)
		}
	})

	t.Run("large snapshot", func(t *testing.T) {
		payload := bytes.Repeat([]byte(`{"id":"x","data":{"n":1}},`), 4096)
		if err := kv.Set(ctx, "contract:large", payload); err != nil {
			t.Fatalf("set: %v", err)
		}
		value, found, err := kv.Get(ctx, "contract:large")
		if err != nil || !found || !bytes.Equal(value, payload) {
			t.Fatalf("large value did not round-trip (found=%v err=%v len=%d)", found, err, len(value))
		}
	})
}
