package reachability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

// ProberConfig configures the HTTP probe.
type ProberConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// Prober is an Observer that issues GET requests against a health URL.
// A transport error means disconnected; any response means connected; a
// status below 400 also means the internet (the backend) is reachable.
type Prober struct {
	client   *resty.Client
	url      string
	interval time.Duration
	logger   logger.Logger

	mu    sync.Mutex
	last  State
	known bool
	subs  subscribers

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber validates cfg and builds the resty client.
func NewProber(cfg ProberConfig, log logger.Logger) (*Prober, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("probe URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("probe URL %q must be http or https", cfg.URL)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.NoRedirectPolicy()).
		SetHeader("User-Agent", "offlinequeue-prober")

	return &Prober{
		client:   client,
		url:      url,
		interval: cfg.Interval,
		logger:   log.With("component", "reachability"),
	}, nil
}

// Current performs a live probe and records the result.
func (p *Prober) Current(ctx context.Context) (State, error) {
	state, err := p.probe(ctx)
	if err != nil {
		return State{}, err
	}
	p.record(state)
	return state, nil
}

// Subscribe registers fn for state changes observed by Current or the background loop.
func (p *Prober) Subscribe(fn func(State)) func() {
	return p.subs.add(fn)
}

// Last returns the most recent reading and whether any probe completed yet.
func (p *Prober) Last() (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.known
}

// Start probes immediately and then every interval until Stop or ctx is done.
func (p *Prober) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			if _, err := p.Current(runCtx); err != nil && runCtx.Err() == nil {
				p.logger.Warn("reachability probe failed", "error", err)
			}
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}(p.done)

	p.logger.Info("reachability prober started", "url", p.url, "interval", p.interval)
}

// Stop halts the background loop and waits for it to exit.
func (p *Prober) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// HealthCheck fails when the last probe found the backend unreachable.
func (p *Prober) HealthCheck(ctx context.Context) error {
	state, err := p.Current(ctx)
	if err != nil {
		return err
	}
	if !state.Online() {
		return fmt.Errorf("backend %s unreachable (connected=%t)", p.url, state.Connected)
	}
	return nil
}

func (p *Prober) probe(ctx context.Context) (State, error) {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return State{}, ctxErr
		}
		p.logger.Debug("probe transport error", "url", p.url, "error", err)
		return State{}, nil
	}
	code := resp.StatusCode()
	return State{Connected: true, InternetReachable: code > 0 && code < http.StatusBadRequest}, nil
}

func (p *Prober) record(state State) {
	p.mu.Lock()
	changed := !p.known || p.last != state
	p.last = state
	p.known = true
	p.mu.Unlock()

	if changed {
		p.logger.Info("reachability changed", "connected", state.Connected, "internet_reachable", state.InternetReachable)
		p.subs.notify(state)
	}
}
