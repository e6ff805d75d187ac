package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aristath/minions/internal/config"
	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/events"
	"github.com/aristath/minions/internal/manifest"
	"github.com/aristath/minions/internal/metrics"
	"github.com/aristath/minions/internal/scheduler"
	"github.com/aristath/minions/internal/tui"
)

// errTasksFailed makes the process exit non-zero after the summary has
// already been printed.
var errTasksFailed = errors.New("one or more tasks failed")

// runOptions are the flags shared by run and apply.
type runOptions struct {
	workers     int
	maxRetries  int
	tui         bool
	metricsAddr string
	logFile     string
}

func (ro *runOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&ro.workers, "workers", "w", 0, "concurrent tasks (overrides swarm.workers)")
	f.IntVar(&ro.maxRetries, "max-retries", 0, "retries after the first attempt (overrides swarm.max_retries)")
	f.BoolVar(&ro.tui, "tui", false, "show the interactive progress view")
	f.StringVar(&ro.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.StringVar(&ro.logFile, "log-file", "", "write logs to this file instead of stderr")
}

// apply copies flags the user set onto cfg and re-validates it.
func (ro *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("workers") {
		cfg.Swarm.Workers = ro.workers
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Swarm.MaxRetries = ro.maxRetries
	}
	return cfg.Validate()
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <manifest.yaml>",
		Short: "Run every task in a manifest",
		Long: `Run every task in a YAML manifest:

  max_retries: 2
  tasks:
    - path: src/app.py
      instruction: add a docstring to every public function
    - pattern: "src/**/*.py"
      instruction: add type hints to {file}

A max_retries set in the manifest takes precedence over --max-retries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			return execute(cmd, opts, ro, func(cfg *config.Config) ([]scheduler.Request, error) {
				return m.Expand(cfg.Workspace.Root, cfg.Swarm.MaxRetries)
			})
		},
	}
	ro.register(cmd)
	return cmd
}

func newApplyCommand(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "apply <path> <instruction>...",
		Short: "Apply one instruction to one file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.Join(args[1:], " ")
			return execute(cmd, opts, ro, func(cfg *config.Config) ([]scheduler.Request, error) {
				return []scheduler.Request{{
					Path:        filepath.ToSlash(filepath.Clean(args[0])),
					Instruction: instruction,
					MaxRetries:  cfg.Swarm.MaxRetries,
				}}, nil
			})
		},
	}
	ro.register(cmd)
	return cmd
}

// execute loads config, builds the engine and runs the requests produced by
// build, reporting through the TUI or plain text.
func execute(cmd *cobra.Command, opts *globalOptions, ro *runOptions, build func(*config.Config) ([]scheduler.Request, error)) error {
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()

	cfg, globalPath, projectPath, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := ro.apply(cmd, cfg); err != nil {
		return err
	}

	logOut, closeLog, err := ro.logWriter(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := opts.newLogger(logOut)
	if err != nil {
		return err
	}

	reqs, err := build(cfg)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Fprintln(stdout, "No tasks to run.")
		return nil
	}

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("closing engine", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if ro.metricsAddr != "" {
		srv := serveMetrics(ro.metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	bus := events.NewEventBus()
	defer bus.Close()
	pub := events.Tee(bus, m)
	runID := uuid.NewString()

	var report scheduler.Report
	if ro.tui {
		tuiCfg := *cfg
		report, err = runWithTUI(ctx, eng, runID, reqs, bus, pub, &tuiCfg, globalPath, projectPath)
	} else {
		report, err = runPlain(ctx, eng, runID, reqs, bus, pub, stdout)
	}
	if err != nil {
		return err
	}

	printSummary(stdout, report)
	if len(report.Failed) > 0 {
		return errTasksFailed
	}
	return nil
}

// logWriter returns the log destination. Without --log-file the TUI owns
// the terminal, so logs are dropped.
func (ro *runOptions) logWriter(stderr io.Writer) (io.Writer, func(), error) {
	if ro.logFile != "" {
		f, err := os.OpenFile(ro.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	if ro.tui {
		return io.Discard, func() {}, nil
	}
	return stderr, func() {}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

// runPlain prints one line per finished task while the run proceeds. Each
// task publishes exactly one outcome, so the buffer never fills.
func runPlain(ctx context.Context, eng *engine, runID string, reqs []scheduler.Request, bus *events.EventBus, pub events.Publisher, w io.Writer) (scheduler.Report, error) {
	sub := bus.Subscribe(events.TopicOutcome, len(reqs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			switch ev := ev.(type) {
			case events.TaskCommittedEvent:
				fmt.Fprintf(w, "✓ %s (%s, %d attempt(s), +%d -%d)\n",
					ev.Path, ev.Strategy, ev.AttemptsUsed, ev.LinesAdded, ev.LinesRemoved)
			case events.TaskFailedEvent:
				fmt.Fprintf(w, "✗ %s: %s\n", ev.Path, ev.Reason)
			}
		}
	}()

	report, err := eng.run(ctx, runID, reqs, pub)
	bus.Close()
	<-done
	return report, err
}

// runWithTUI runs the batch behind the Bubble Tea view. Quitting the view
// before the run finishes cancels the run.
func runWithTUI(ctx context.Context, eng *engine, runID string, reqs []scheduler.Request, bus *events.EventBus, pub events.Publisher, cfg *config.Config, globalPath, projectPath string) (scheduler.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.New(bus, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	type result struct {
		report scheduler.Report
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		report, err := eng.run(runCtx, runID, reqs, pub)
		bus.Close()
		resCh <- result{report, err}
	}()

	_, tuiErr := p.Run()
	cancel()
	res := <-resCh

	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return res.report, fmt.Errorf("tui: %w", tuiErr)
	}
	return res.report, res.err
}

func printSummary(w io.Writer, r scheduler.Report) {
	for _, res := range r.Failed {
		fmt.Fprintf(w, "FAILED %s after %d attempt(s): %s\n", res.TargetPath, res.AttemptsUsed, res.FinalReason)
	}
	fmt.Fprintf(w, "Run %s: %d committed, %d failed, %d retries, %d attempts in %v\n",
		r.RunID, r.Stats.Completed, r.Stats.Failed, r.Stats.Retries, r.Stats.AttemptsTotal,
		r.Stats.Elapsed.Round(time.Millisecond))
}

// statusLabel renders a task status for tables.
func statusLabel(res edit.TaskResult) string {
	if res.Succeeded() {
		return "ok"
	}
	return "FAILED"
}
