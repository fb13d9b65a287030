package gate

import (
	"context"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	g := New("s3", time.Second)

	ctx, cancel, err := g.Enter(context.Background())
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected the operation timeout to apply")
	}
	cancel()

	if !g.Shut() {
		t.Fatal("first Shut should close the gate")
	}
	if g.Shut() {
		t.Fatal("second Shut should report already closed")
	}
	if _, _, err := g.Enter(context.Background()); err == nil || err.Error() != "s3 adapter is closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestBound(t *testing.T) {
	tests := []struct {
		name      string
		timeout   time.Duration
		parent    time.Duration
		wantBound bool
		wantMax   time.Duration
	}{
		{name: "no timeout", wantBound: false},
		{name: "timeout applied", timeout: time.Minute, wantBound: true, wantMax: time.Minute},
		{name: "caller deadline kept", timeout: time.Hour, parent: time.Second, wantBound: true, wantMax: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := context.Background()
			if tt.parent > 0 {
				var cancel context.CancelFunc
				parent, cancel = context.WithTimeout(parent, tt.parent)
				defer cancel()
			}
			ctx, done := Bound(parent, tt.timeout)
			defer done()

			deadline, ok := ctx.Deadline()
			if ok != tt.wantBound {
				t.Fatalf("deadline set=%v, want %v", ok, tt.wantBound)
			}
			if ok && time.Until(deadline) > tt.wantMax {
				t.Fatalf("deadline %s exceeds %s", time.Until(deadline), tt.wantMax)
			}
		})
	}
}
