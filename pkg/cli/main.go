// Package cli builds the offlinequeue command tree on cobra.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/queue"
	"github.com/nimburion/offlinequeue/pkg/server"
	"github.com/nimburion/offlinequeue/pkg/version"
)

// Output format constants
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// Options customizes the command tree.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Optional: registers processors in addition to the configured ones.
	Processors []ProcessorRegistrar
	// Optional: replaces Build, for tests.
	Build func(ctx context.Context, cfg *config.Config, log logger.Logger, opts BuildOptions) (*App, error)
}

type rootState struct {
	opts           Options
	cfgPath        string
	secretFilePath string
	output         string
}

// NewRootCommand creates the offlinequeue CLI.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "offlinequeue"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	if opts.Build == nil {
		opts.Build = Build
	}
	st := &rootState{opts: opts}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&st.cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&st.secretFilePath, "secret-file", "", "path to secrets file (sets <PREFIX>_SECRETS_FILE)")
	pf.StringVarP(&st.output, "output", "o", OutputYAML, "output format: yaml or json")
	registerConfigFlags(pf)

	runCmd := st.newRunCommand()
	rootCmd.RunE = runCmd.RunE

	rootCmd.AddCommand(
		st.newVersionCommand(),
		runCmd,
		st.newEnqueueCommand(),
		st.newStatusCommand(),
		st.newListCommand(),
		st.newDrainCommand(),
		st.newRemoveCommand(),
		st.newClearCommand(),
		st.newDeadLetterCommand(),
		st.newHealthcheckCommand(),
		st.newConfigCommand(),
	)
	return rootCmd
}

func registerConfigFlags(pf *pflag.FlagSet) {
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or text")
	pf.String("store-type", "", "store type: memory, sqlite, postgres, mysql, redis, mongodb, dynamodb, s3")
	pf.String("store-path", "", "sqlite database path")
	pf.String("store-url", "", "store connection URL")
	pf.String("management-host", "", "management server host")
	pf.Int("management-port", 0, "management server port")
	pf.String("remote-base-url", "", "base URL for HTTP processors")
}

// session is a loaded configuration with its logger.
type session struct {
	cfg      *config.Config
	loader   *config.ViperLoader
	log      logger.Logger
	closeLog func()
}

func (st *rootState) load(flags *pflag.FlagSet) (*session, error) {
	if err := applySecretFileFlag(st.opts.EnvPrefix, st.secretFilePath); err != nil {
		return nil, err
	}
	loader := config.NewViperLoader(st.cfgPath, st.opts.EnvPrefix).WithFlags(flags)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, closeLog, err := NewLogger(cfg.Observability, version.Current(cfg.Service.Name))
	if err != nil {
		return nil, err
	}
	logConfigIfDebug(log, cfg, loader.Secrets())
	return &session{cfg: cfg, loader: loader, log: log, closeLog: closeLog}, nil
}

// withApp loads configuration, builds the App, runs fn and closes everything.
func (st *rootState) withApp(cmd *cobra.Command, opts BuildOptions, fn func(ctx context.Context, app *App) error) error {
	sess, err := st.load(cmd.Flags())
	if err != nil {
		return err
	}
	defer sess.closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.Processors = append(opts.Processors, st.opts.Processors...)
	app, err := st.opts.Build(ctx, sess.cfg, sess.log, opts)
	if err != nil {
		return err
	}

	runErr := fn(ctx, app)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sess.cfg.Queue.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, app.Close(closeCtx))
}

// NewLogger builds the zap logger, optionally wrapped for async dispatch.
// Every entry carries the service name and version. The returned func
// flushes and releases the logger.
func NewLogger(cfg config.ObservabilityConfig, info version.Info) (logger.Logger, func(), error) {
	base, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.LogLevel),
		Format: logger.LogFormat(cfg.LogFormat),
		Fields: info.LogFields(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log := logger.WrapAsync(base, logger.AsyncConfig{
		Enabled:      cfg.AsyncLogging.Enabled,
		QueueSize:    cfg.AsyncLogging.QueueSize,
		WorkerCount:  cfg.AsyncLogging.WorkerCount,
		DropWhenFull: cfg.AsyncLogging.DropWhenFull,
	})
	closeLog := func() {
		if async, ok := log.(*logger.AsyncLogger); ok {
			async.Close()
		}
		_ = base.Sync()
	}
	return log, closeLog, nil
}

func (st *rootState) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(st.opts.Name)
			if st.output == OutputJSON {
				return st.print(cmd.OutOrStdout(), info)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Service:    %s\n", info.Service)
			fmt.Fprintf(w, "Version:    %s\n", info.Version)
			fmt.Fprintf(w, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(w, "Build Time: %s\n", info.BuildTime)
			return nil
		},
	}
}

func (st *rootState) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the queue with its connectivity trigger and management server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{}, func(ctx context.Context, app *App) error {
				return Serve(ctx, app)
			})
		},
	}
}

// Serve runs the prober and the management server until ctx is cancelled or
// one of them fails.
func Serve(ctx context.Context, app *App) error {
	g, gctx := errgroup.WithContext(ctx)

	if app.Prober != nil {
		app.Prober.Start(gctx)
	}
	if app.Config.Management.Enabled {
		mgmt, err := server.NewManagementServer(app.Config.Management, server.Dependencies{
			Queue:        app.Engine,
			Health:       app.Health,
			Metrics:      app.Metrics,
			Connectivity: app.Manual,
		}, app.Logger)
		if err != nil {
			return fmt.Errorf("create management server: %w", err)
		}
		g.Go(func() error { return mgmt.Start(gctx) })
	}
	if app.Scheduler != nil {
		g.Go(func() error { return app.Scheduler.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	app.Logger.Info("offline queue running",
		"management", app.Config.Management.Enabled,
		"sweep", app.Scheduler != nil,
	)
	err := g.Wait()
	app.Logger.Info("offline queue stopping")
	return err
}

func (st *rootState) newEnqueueCommand() *cobra.Command {
	var (
		reqType  string
		endpoint string
		data     string
		metadata map[string]string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a mutation; it is delivered right away when online",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := mutation.ParseRequestType(reqType)
			if err != nil {
				return err
			}
			req := mutation.Request{Type: t, Endpoint: endpoint, Data: json.RawMessage(data)}
			if len(metadata) > 0 {
				req.Metadata = make(map[string]any, len(metadata))
				for k, v := range metadata {
					req.Metadata[k] = v
				}
			}
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				id, err := app.Engine.Add(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reqType, "type", "t", string(mutation.TypeCreate), "request type: CREATE, UPDATE or DELETE")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "endpoint the mutation targets")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload")
	cmd.Flags().StringToStringVarP(&metadata, "metadata", "m", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func (st *rootState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and dead-letter counts and sync timestamps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				return st.print(cmd.OutOrStdout(), app.Engine.Status())
			})
		},
	}
}

func (st *rootState) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending mutations in delivery order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				pending := app.Engine.PendingRequests()
				views := make([]server.RequestView, 0, len(pending))
				for _, req := range pending {
					views = append(views, server.NewRequestView(req))
				}
				return st.print(cmd.OutOrStdout(), views)
			})
		},
	}
}

func (st *rootState) newDrainCommand() *cobra.Command {
	var (
		untilEmpty bool
		maxPasses  int
	)
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run a drain pass and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPasses < 1 {
				return fmt.Errorf("--max-passes must be at least 1, got %d", maxPasses)
			}
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				reports := Drain(ctx, app.Engine, untilEmpty, maxPasses)
				return st.print(cmd.OutOrStdout(), reports)
			})
		},
	}
	cmd.Flags().BoolVar(&untilEmpty, "until-empty", false, "repeat passes while requests remain and the last pass made progress")
	cmd.Flags().IntVar(&maxPasses, "max-passes", 10, "upper bound on passes with --until-empty")
	return cmd
}

// Drainer runs drain passes.
type Drainer interface {
	ProcessQueue(ctx context.Context) queue.DrainReport
	QueueLength() int
}

// Drain runs one pass, or with untilEmpty keeps running completed passes
// while requests remain, up to maxPasses.
func Drain(ctx context.Context, q Drainer, untilEmpty bool, maxPasses int) []queue.DrainReport {
	var reports []queue.DrainReport
	for pass := 0; pass < maxPasses; pass++ {
		report := q.ProcessQueue(ctx)
		reports = append(reports, report)
		if !untilEmpty || report.Outcome != queue.OutcomeCompleted || q.QueueLength() == 0 || ctx.Err() != nil {
			break
		}
	}
	return reports
}

func (st *rootState) newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a pending mutation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				if !app.Engine.Remove(ctx, args[0]) {
					return fmt.Errorf("no pending request with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func (st *rootState) newClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every pending mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the queue without --yes")
			}
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				n := app.Engine.QueueLength()
				app.Engine.Clear(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d pending requests\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func (st *rootState) newDeadLetterCommand() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:     "dlq",
		Aliases: []string{"dead-letter"},
		Short:   "Dead-letter queue commands",
	}

	dlqCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dead-lettered mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				items := app.Engine.DeadLetterItems()
				views := make([]server.DeadLetterView, 0, len(items))
				for _, item := range items {
					views = append(views, server.NewDeadLetterView(item))
				}
				return st.print(cmd.OutOrStdout(), views)
			})
		},
	})

	dlqCmd.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Move a dead-lettered mutation back to the queue with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				if !app.Engine.RetryDeadLetterItem(ctx, args[0]) {
					return fmt.Errorf("no dead-lettered request with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
				return nil
			})
		},
	})

	dlqCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a dead-lettered mutation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				if !app.Engine.RemoveDeadLetterItem(ctx, args[0]) {
					return fmt.Errorf("no dead-lettered request with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every dead-lettered mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the dead-letter queue without --yes")
			}
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				n := len(app.Engine.DeadLetterItems())
				app.Engine.ClearDeadLetterQueue(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d dead-lettered requests\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	dlqCmd.AddCommand(clearCmd)

	return dlqCmd
}

func (st *rootState) newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the store, connectivity, broker and queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withApp(cmd, BuildOptions{SkipInitialDrain: true}, func(ctx context.Context, app *App) error {
				result := app.Health.Check(ctx)
				if err := st.print(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.IsHealthy() {
					return errors.New("one or more dependencies are unhealthy")
				}
				return nil
			})
		},
	}
}

func (st *rootState) newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := st.load(cmd.Flags())
			if err != nil {
				return err
			}
			defer sess.closeLog()
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := st.load(cmd.Flags())
			if err != nil {
				return err
			}
			defer sess.closeLog()
			if showSecrets {
				fmt.Fprint(cmd.OutOrStdout(), sess.cfg.String())
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), sess.cfg.Redacted(sess.loader.Secrets()))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print values read from the secrets file")
	configCmd.AddCommand(showCmd)

	return configCmd
}

// print writes v in the selected output format. YAML output goes through the
// JSON form so json tags and raw payloads render the same way in both.
func (st *rootState) print(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	switch st.output {
	case OutputJSON:
		_, err = fmt.Fprintln(w, string(data))
		return err
	case OutputYAML, "":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("convert output: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q (supported: yaml, json)", st.output)
	}
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(strings.ToUpper(strings.TrimSpace(envPrefix))+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config, secrets *config.Config) {
	if log == nil || cfg == nil {
		return
	}
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration", "config", cfg.Redacted(secrets))
}

// Execute runs cmd and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
