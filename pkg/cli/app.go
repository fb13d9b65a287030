package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/offlinequeue/pkg/backoff"
	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/eventbus"
	eventbusfactory "github.com/nimburion/offlinequeue/pkg/eventbus/factory"
	"github.com/nimburion/offlinequeue/pkg/health"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/observability/metrics"
	"github.com/nimburion/offlinequeue/pkg/observability/tracing"
	"github.com/nimburion/offlinequeue/pkg/persistence"
	"github.com/nimburion/offlinequeue/pkg/processor"
	"github.com/nimburion/offlinequeue/pkg/processor/broker"
	"github.com/nimburion/offlinequeue/pkg/processor/httpapi"
	"github.com/nimburion/offlinequeue/pkg/queue"
	"github.com/nimburion/offlinequeue/pkg/reachability"
	"github.com/nimburion/offlinequeue/pkg/resilience"
	"github.com/nimburion/offlinequeue/pkg/scheduler"
	"github.com/nimburion/offlinequeue/pkg/store"
	"github.com/nimburion/offlinequeue/pkg/version"
)

const (
	healthCheckTimeout = 5 * time.Second
	drainSweepTask     = "drain-sweep"
)

// ProcessorRegistrar registers processors that are not described in configuration.
type ProcessorRegistrar func(cfg *config.Config, log logger.Logger, registry *queue.Registry) error

// BuildOptions adjusts how an App is assembled for a command.
type BuildOptions struct {
	// SkipInitialDrain overrides queue.drain_on_start with false.
	SkipInitialDrain bool
	// Observer replaces the configured connectivity observer.
	Observer reachability.Observer
	// KV replaces the configured store.
	KV store.KV
	// Producer replaces the configured broker producer.
	Producer eventbus.Producer
	// Lock replaces the configured sweep lock provider.
	Lock scheduler.LockProvider
	// Processors run after the configured processors are registered.
	Processors []ProcessorRegistrar
}

// App is the assembled queue with its stores, observers and registries.
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Engine  *queue.Engine
	Health  *health.Registry
	Metrics *metrics.Registry
	// Manual is set when connectivity is operator controlled.
	Manual *reachability.Manual
	// Prober is set when connectivity is probed over HTTP.
	Prober *reachability.Prober
	// Scheduler is set when sweeps are configured.
	Scheduler *scheduler.Runtime

	kv       store.KV
	producer eventbus.Producer
	lock     scheduler.LockProvider
	tracer   *tracing.TracerProvider
}

// Build wires cfg into an initialized App. The caller must Close it.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts BuildOptions) (app *App, err error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	app = &App{
		Config:  cfg,
		Logger:  log,
		Health:  health.NewRegistry(),
		Metrics: metrics.NewRegistry(append(queue.Collectors(), scheduler.Collectors()...)...),
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	info := version.Current(cfg.Service.Name)
	app.tracer, err = tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Insecure:       cfg.Observability.TracingInsecure,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	app.kv = opts.KV
	if app.kv == nil {
		if app.kv, err = store.NewKVStore(cfg.Store, log); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	app.Health.Register(health.NewAdapterChecker("store", app.kv, healthCheckTimeout))

	observer, err := app.buildObserver(opts.Observer)
	if err != nil {
		return nil, err
	}
	app.Health.Register(health.NewConnectivityChecker("connectivity", observer))

	registry := queue.NewRegistry()
	if err := app.registerProcessors(registry, opts.Producer); err != nil {
		return nil, err
	}
	for _, register := range opts.Processors {
		if err := register(cfg, log, registry); err != nil {
			return nil, fmt.Errorf("register processors: %w", err)
		}
	}

	app.Engine, err = queue.NewEngine(queue.Options{
		Persistence: persistence.NewAdapter(app.kv, cfg.Queue.KeyPrefix, log),
		Observer:    observer,
		Registry:    registry,
		Backoff: backoff.Policy{
			Base:    cfg.Queue.BackoffBase,
			Ceiling: cfg.Queue.BackoffCeiling,
		},
		MaxRetries:       cfg.Queue.MaxRetries,
		AttemptTimeout:   cfg.Queue.AttemptTimeout,
		SkipInitialDrain: opts.SkipInitialDrain || !cfg.Queue.DrainOnStart,
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("create queue engine: %w", err)
	}
	if err := app.Engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize queue: %w", err)
	}
	app.Health.Register(queue.NewHealthChecker("", app.Engine, healthCheckTimeout))
	app.Health.Register(queue.NewDeadLetterChecker("", app.Engine))

	if cfg.Sweep.Enabled() {
		if err := app.buildScheduler(opts.Lock); err != nil {
			return nil, err
		}
	}

	log.Info("offline queue ready",
		"store", cfg.Store.Type,
		"reachability", cfg.Reachability.Type,
		"endpoints", registry.Endpoints(),
		"pending", app.Engine.QueueLength(),
		"sweep_interval", cfg.Sweep.Interval,
		"sweep_schedule", cfg.Sweep.Schedule,
	)
	return app, nil
}

func (a *App) buildObserver(override reachability.Observer) (reachability.Observer, error) {
	if override != nil {
		if manual, ok := override.(*reachability.Manual); ok {
			a.Manual = manual
		}
		return override, nil
	}

	rc := a.Config.Reachability
	switch strings.ToLower(strings.TrimSpace(rc.Type)) {
	case config.ReachabilityProbe:
		prober, err := reachability.NewProber(reachability.ProberConfig{
			URL:      rc.ProbeURL,
			Interval: rc.ProbeInterval,
			Timeout:  rc.ProbeTimeout,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("create connectivity prober: %w", err)
		}
		a.Prober = prober
		return prober, nil
	default:
		a.Manual = reachability.NewManual(reachability.State{
			Connected:         rc.InitialOnline,
			InternetReachable: rc.InitialOnline,
		})
		return a.Manual, nil
	}
}

// buildScheduler schedules drain sweeps that catch work the connectivity
// trigger missed, such as requests left pending after a failed pass.
func (a *App) buildScheduler(override scheduler.LockProvider) error {
	sc := a.Config.Sweep
	a.lock = override
	if a.lock == nil {
		var err error
		switch strings.ToLower(strings.TrimSpace(sc.Lock)) {
		case config.SweepLockRedis:
			a.lock, err = opened(scheduler.NewRedisLockProvider(scheduler.RedisLockProviderConfig{
				URL:    sc.LockURL,
				Prefix: strings.TrimSuffix(a.Config.Queue.KeyPrefix, ":") + ":lock",
			}, a.Logger))
		case config.SweepLockPostgres:
			a.lock, err = opened(scheduler.NewPostgresLockProvider(scheduler.PostgresLockProviderConfig{
				URL:   sc.LockURL,
				Table: sc.LockTable,
			}, a.Logger))
		}
		if err != nil {
			return fmt.Errorf("create sweep lock provider: %w", err)
		}
	}
	if a.lock != nil {
		a.Health.Register(scheduler.NewLockProviderHealthChecker("sweep-lock", a.lock, healthCheckTimeout))
	}

	a.Scheduler = scheduler.NewRuntime(a.lock, a.Logger, scheduler.Config{
		RunTimeout:     sc.Timeout,
		DefaultLockTTL: sc.LockTTL,
	})
	return a.Scheduler.Register(scheduler.Task{
		Name:     drainSweepTask,
		Interval: sc.Interval,
		Schedule: strings.TrimSpace(sc.Schedule),
		Run:      a.sweep,
	})
}

func (a *App) sweep(ctx context.Context) error {
	if a.Engine.QueueLength() == 0 {
		return nil
	}
	report := a.Engine.ProcessQueue(ctx)
	if report.Outcome == queue.OutcomeInterrupted {
		return fmt.Errorf("drain sweep interrupted after %d attempts", report.Attempted)
	}
	return nil
}

// opened keeps a failed constructor's typed nil out of the LockProvider interface.
func opened[T scheduler.LockProvider](p T, err error) (scheduler.LockProvider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *App) registerProcessors(registry *queue.Registry, producer eventbus.Producer) error {
	cfg := a.Config
	userAgent := cfg.Remote.UserAgent
	if userAgent == "" {
		userAgent = version.Current(cfg.Service.Name).UserAgent()
	}

	for _, pc := range cfg.Processors {
		var (
			p   queue.Processor
			err error
		)
		switch strings.ToLower(strings.TrimSpace(pc.Kind)) {
		case config.ProcessorKindHTTP:
			p, err = httpapi.New(httpapi.Config{
				BaseURL:           cfg.Remote.BaseURL,
				Path:              pc.Path,
				Headers:           cfg.Remote.Headers,
				Timeout:           cfg.Remote.Timeout,
				RateLimit:         cfg.Remote.RateLimit,
				Burst:             cfg.Remote.Burst,
				DropOnClientError: cfg.Remote.DropOnClientError,
				UserAgent:         userAgent,
			}, a.Logger)
		case config.ProcessorKindBroker:
			if a.producer == nil {
				if a.producer = producer; a.producer == nil {
					if a.producer, err = eventbusfactory.NewProducer(cfg.Broker, a.Logger); err != nil {
						return fmt.Errorf("create broker producer: %w", err)
					}
				}
				a.Health.Register(health.NewAdapterChecker("broker", a.producer, healthCheckTimeout))
			}
			p, err = broker.New(a.producer, broker.Config{Topic: pc.Topic, System: cfg.Broker.Type}, a.Logger)
		default:
			err = fmt.Errorf("unsupported processor kind %q", pc.Kind)
		}
		if err != nil {
			return fmt.Errorf("processor for %s: %w", pc.Endpoint, err)
		}

		p = processor.WithTimeout(p, pc.Timeout)
		if pc.CircuitBreaker.Enabled {
			p = processor.WithCircuitBreaker(p, a.newCircuitBreaker(pc))
		}
		if err := registry.Register(pc.Endpoint, p); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) newCircuitBreaker(pc config.ProcessorConfig) *resilience.CircuitBreaker {
	log := a.Logger.With("endpoint", pc.Endpoint)
	opts := []resilience.Option{
		resilience.WithStateListener(func(from, to resilience.State) {
			log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		}),
	}
	if strings.EqualFold(pc.Kind, config.ProcessorKindHTTP) {
		opts = append(opts, resilience.WithFailureFilter(httpapi.IsServerFailure))
	}
	return resilience.NewCircuitBreaker(pc.CircuitBreaker.MaxFailures, pc.CircuitBreaker.ResetTimeout, opts...)
}

// Close releases everything Build opened, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.Engine != nil {
		if err := a.Engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}
	if a.Prober != nil {
		a.Prober.Stop()
	}
	if a.lock != nil {
		if err := a.lock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sweep lock provider: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker producer: %w", err))
		}
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}
