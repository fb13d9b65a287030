package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

func TestServerStartAndShutdown(t *testing.T) {
	// Given: a server on an ephemeral port
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := NewServer(Config{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: time.Second,
	}, mux, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	// When: it is reachable
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	// Then: cancelling the context shuts it down cleanly
	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerStart_BindError(t *testing.T) {
	srv := NewServer(Config{Host: "127.0.0.1", Port: -1}, http.NewServeMux(), nil)
	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("expected bind error")
	}
}

func TestServerShutdown_BeforeStart(t *testing.T) {
	srv := NewServer(Config{}, http.NewServeMux(), nil)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}
