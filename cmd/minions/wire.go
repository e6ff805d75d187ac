package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aristath/minions/internal/backend"
	"github.com/aristath/minions/internal/config"
	"github.com/aristath/minions/internal/events"
	"github.com/aristath/minions/internal/gate"
	"github.com/aristath/minions/internal/llm"
	"github.com/aristath/minions/internal/persistence"
	"github.com/aristath/minions/internal/pipeline"
	"github.com/aristath/minions/internal/reconcile"
	"github.com/aristath/minions/internal/scheduler"
	"github.com/aristath/minions/internal/workspace"
)

// engine holds everything a run needs that outlives a single run.
type engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	pm         *backend.ProcessManager
	root       *workspace.Root
	store      persistence.Store // nil when history is disabled
	backends   []backend.Backend
	generator  *llm.Generator
	reviewer   *llm.Reviewer
	syntax     gate.Checker
	reconciler *reconcile.Reconciler
}

// newEngine wires collaborators, gates and storage from cfg.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine, error) {
	root, err := workspace.New(cfg.Workspace.Root, cfg.Workspace.BackupDir)
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:    cfg,
		logger: logger,
		pm:     backend.NewProcessManager(),
		root:   root,
		syntax: gate.NewCachedChecker(gate.NewSyntaxChecker(), cfg.SyntaxCacheSize),
		reconciler: reconcile.New(reconcile.Options{
			FuzzyThreshold: cfg.Reconcile.FuzzyThreshold,
			FuzzyMargin:    cfg.Reconcile.FuzzyMargin,
			DriftLines:     cfg.Reconcile.DriftLines,
		}),
	}

	breakers := backend.NewBreakerRegistry(cfg.Resilience.TripThreshold, logger)
	retry := retryConfig(cfg.Resilience)

	gen, err := e.roleBackend(cfg.Roles.Generator, breakers, retry)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("generator: %w", err)
	}
	rev, err := e.roleBackend(cfg.Roles.Reviewer, breakers, retry)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("reviewer: %w", err)
	}
	e.generator = llm.NewGenerator(gen, llm.RoleConfig{
		System:      cfg.Roles.Generator.SystemPrompt,
		Temperature: cfg.Roles.Generator.Temperature,
	}, logger)
	e.reviewer = llm.NewReviewer(rev, llm.RoleConfig{
		System:      cfg.Roles.Reviewer.SystemPrompt,
		Temperature: cfg.Roles.Reviewer.Temperature,
	})

	if cfg.Workspace.HistoryDB != "" {
		store, err := openStore(ctx, cfg.Workspace.HistoryDB)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			e.store = store
		}
	}

	return e, nil
}

func openStore(ctx context.Context, path string) (*persistence.SQLiteStore, error) {
	path, err := config.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return persistence.NewSQLiteStore(ctx, path)
}

func retryConfig(rc config.ResilienceConfig) backend.RetryConfig {
	retry := backend.DefaultRetryConfig()
	if rc.InitialIntervalMs > 0 {
		retry.InitialInterval = time.Duration(rc.InitialIntervalMs) * time.Millisecond
	}
	if rc.MaxIntervalMs > 0 {
		retry.MaxInterval = time.Duration(rc.MaxIntervalMs) * time.Millisecond
	}
	if rc.MaxElapsedSeconds > 0 {
		retry.MaxElapsedTime = time.Duration(rc.MaxElapsedSeconds) * time.Second
	}
	return retry
}

// roleBackend builds the resilient transport for one role. The provider
// key names the breaker, so roles sharing a provider share its breaker.
func (e *engine) roleBackend(role config.RoleConfig, breakers *backend.BreakerRegistry, retry backend.RetryConfig) (backend.Backend, error) {
	p, ok := e.cfg.Providers[role.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", role.Provider)
	}
	b, err := backend.New(backend.Config{
		Type:    p.Type,
		Name:    role.Provider,
		Model:   role.Model,
		BaseURL: p.BaseURL,
		Command: p.Command,
		Args:    p.Args,
		WorkDir: e.root.Dir(),
		Timeout: time.Duration(p.TimeoutSeconds) * time.Second,
	}, e.pm)
	if err != nil {
		return nil, err
	}
	e.backends = append(e.backends, b)
	return backend.NewResilient(b, breakers, retry, e.logger), nil
}

// run executes one batch under runID and publishes progress to pub.
func (e *engine) run(ctx context.Context, runID string, reqs []scheduler.Request, pub events.Publisher) (scheduler.Report, error) {
	pcfg := pipeline.Config{
		Generator:  e.generator,
		Reviewer:   e.reviewer,
		Syntax:     e.syntax,
		Reconciler: e.reconciler,
		Workspace:  e.root,
		Degrade:    scheduler.Degrade,
		Events:     pub,
		Logger:     e.logger,
	}
	scfg := scheduler.Config{
		Workers: e.cfg.Swarm.Workers,
		Reader:  e.root,
		Events:  pub,
		Logger:  e.logger,
	}
	if e.store != nil {
		pcfg.Recorder = persistence.NewAttemptRecorder(e.store, runID, e.logger)
		scfg.Ledger = e.store
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return scheduler.Report{}, err
	}
	scfg.Runner = p

	s, err := scheduler.New(scfg)
	if err != nil {
		return scheduler.Report{}, err
	}

	// Collaborator processes die with ctx; KillAll catches any that were
	// started without it.
	stop := context.AfterFunc(ctx, func() {
		if err := e.pm.KillAll(); err != nil {
			e.logger.Warn("killing collaborator processes", "error", err)
		}
	})
	defer stop()

	return s.Run(ctx, runID, reqs), nil
}

// Close releases backends and the history store.
func (e *engine) Close() error {
	var errs []error
	for _, b := range e.backends {
		errs = append(errs, b.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
