// Package cli implements the workletd command line.
//
//	workletd run   [-c config.yaml] [--duration 5s]   run the configured scripts
//	workletd check FILE...                            evaluate scripts and list their worklets
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dop251/goja"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	workletrunner "github.com/Swind/go-worklet-runner"
	"github.com/Swind/go-worklet-runner/core"
	obs "github.com/Swind/go-worklet-runner/observability/prometheus"
	"github.com/Swind/go-worklet-runner/worklet"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

const shutdownTimeout = 5 * time.Second

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "workletd",
		Short: "workletd: run JavaScript worklets on a UI thread next to a JS runtime",
		Long: `workletd hosts two JavaScript runtimes:
- a worklet runtime driven by a display link on the UI thread
- a host runtime on the JS thread
Scripts talk across them with require("worklet").`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults are used when empty)")

	rootCmd.AddCommand(buildRunCommand(&configFile))
	rootCmd.AddCommand(buildCheckCommand())

	return rootCmd
}

func buildRunCommand(configFile *string) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runtimes and run the configured scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSystem(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, duration)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func buildCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Evaluate scripts on a scratch worklet runtime and list their worklets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkScripts(cmd.OutOrStdout(), args)
		},
	}
}

func loadConfig(path string) (*workletrunner.Config, error) {
	if path == "" {
		return workletrunner.DefaultConfig(), nil
	}
	cfg, err := workletrunner.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runSystem(ctx context.Context, out, logOut io.Writer, cfg *workletrunner.Config, duration time.Duration) error {
	logger, err := core.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	opts := []workletrunner.Option{workletrunner.WithLogger(logger)}

	var reg *prom.Registry
	if cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		opts = append(opts, workletrunner.WithMetrics(exporter))
	}

	rt, err := workletrunner.NewRuntime(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("runtime did not shut down cleanly", core.F("error", err))
		}
	}()

	if reg != nil {
		stopMetrics, err := serveMetrics(ctx, cfg, reg, rt, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	if err := rt.LoadScripts(ctx); err != nil {
		return err
	}
	rt.Start()
	logger.Info("workletd running",
		core.F("worklets", len(cfg.Scripts.Worklets)),
		core.F("js", len(cfg.Scripts.JS)),
	)

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	<-ctx.Done()

	stats := rt.Stats()
	fmt.Fprintf(out, "ui jobs: %d, js jobs: %d, errors reported: %d\n",
		stats.Scheduler.ExecutedUI, stats.Scheduler.ScheduledJS, rt.ErrorHandler().Reported())
	return nil
}

func serveMetrics(ctx context.Context, cfg *workletrunner.Config, reg *prom.Registry, rt *workletrunner.Runtime, logger core.Logger) (func(), error) {
	poller, err := obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("snapshot poller: %w", err)
	}
	poller.AddThread(core.QueueUI, rt.UIThread())
	poller.AddThread(core.QueueJS, rt.JSThread())
	poller.AddScheduler("main", rt.Scheduler())
	poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("starting metrics server", core.F("addr", cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", core.F("error", err))
		}
	}()

	return func() {
		poller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

// checkScripts evaluates each file on its own scratch worklet runtime and
// prints the global functions it defines. Functions that cannot be captured
// as worklets (anonymous ones) are listed as invalid.
func checkScripts(out io.Writer, paths []string) error {
	var failed []string
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}

		names, invalid, err := inspectScript(path, string(src))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, strings.Join(names, ", "))
		for _, name := range invalid {
			fmt.Fprintf(out, "%s: global %q is not a named function\n", path, name)
		}
		if len(invalid) > 0 {
			failed = append(failed, path)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d scripts failed: %s", len(failed), len(paths), strings.Join(failed, ", "))
	}
	return nil
}

func inspectScript(path, src string) (names, invalid []string, err error) {
	sched := core.NewScheduler(&core.Config{Logger: core.NewNoOpLogger()})
	var reported []string
	eh := worklet.NewUIErrorHandler(sched, worklet.ReporterFunc(func(e worklet.ErrorWrapper) {
		reported = append(reported, e.Message)
	}))
	m, err := worklet.NewRuntimeManager(worklet.RuntimeUI, sched, eh)
	if err != nil {
		return nil, nil, err
	}

	var scriptErr error
	err = m.Run(func(rt *goja.Runtime) {
		before := make(map[string]bool)
		for _, k := range rt.GlobalObject().Keys() {
			before[k] = true
		}
		if _, scriptErr = rt.RunScript(path, src); scriptErr != nil {
			return
		}
		for _, k := range rt.GlobalObject().Keys() {
			v := rt.Get(k)
			if before[k] || v == nil {
				continue
			}
			if _, ok := goja.AssertFunction(v); !ok {
				continue
			}
			if _, herr := worklet.NewHostFunctionHandler(m, rt, v); herr != nil {
				invalid = append(invalid, k)
				continue
			}
			names = append(names, k)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	for sched.TriggerUI() {
	}

	if scriptErr != nil {
		return nil, nil, scriptErr
	}
	if len(reported) > 0 {
		return nil, nil, errors.New(reported[0])
	}
	slices.Sort(names)
	slices.Sort(invalid)
	return names, invalid, nil
}
