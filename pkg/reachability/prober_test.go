package reachability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func TestNewProber_Validation(t *testing.T) {
	for _, url := range []string{"", "ftp://example.com"} {
		if _, err := NewProber(ProberConfig{URL: url}, logger.NewNopLogger()); err == nil {
			t.Fatalf("expected error for %q", url)
		}
	}
}

func TestProber_Current(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p, err := NewProber(ProberConfig{URL: srv.URL, Timeout: time.Second}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}

	var mu sync.Mutex
	var changes []State
	p.Subscribe(func(s State) {
		mu.Lock()
		changes = append(changes, s)
		mu.Unlock()
	})

	ctx := context.Background()
	state, err := p.Current(ctx)
	if err != nil || !state.Online() {
		t.Fatalf("expected online, got %+v err=%v", state, err)
	}
	if _, err := p.Current(ctx); err != nil {
		t.Fatalf("second probe: %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	state, err = p.Current(ctx)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !state.Connected || state.InternetReachable {
		t.Fatalf("expected connected but unreachable, got %+v", state)
	}
	if err := p.HealthCheck(ctx); err == nil {
		t.Fatal("expected unhealthy prober")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("expected 2 change notifications, got %+v", changes)
	}
}

func TestProber_TransportErrorMeansOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewProber(ProberConfig{URL: url, Timeout: 500 * time.Millisecond}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}
	state, err := p.Current(context.Background())
	if err != nil {
		t.Fatalf("transport errors must not surface, got %v", err)
	}
	if state.Connected || state.InternetReachable {
		t.Fatalf("expected offline, got %+v", state)
	}
	if last, known := p.Last(); !known || last != state {
		t.Fatalf("expected last reading recorded, got %+v known=%v", last, known)
	}
}

func TestProber_StartStop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewProber(ProberConfig{URL: srv.URL, Interval: 10 * time.Millisecond, Timeout: time.Second}, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("new prober: %v", err)
	}

	online := make(chan struct{}, 1)
	p.Subscribe(func(s State) {
		if s.Online() {
			select {
			case online <- struct{}{}:
			default:
			}
		}
	})

	p.Start(context.Background())
	p.Start(context.Background())
	select {
	case <-online:
	case <-time.After(2 * time.Second):
		t.Fatal("expected online notification from background probe")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	p.Stop()

	if hits.Load() < 3 {
		t.Fatalf("expected repeated probes, got %d", hits.Load())
	}
	after := hits.Load()
	time.Sleep(50 * time.Millisecond)
	if hits.Load() != after {
		t.Fatal("expected probing to stop")
	}
}
