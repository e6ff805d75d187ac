package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/minions/internal/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	root       string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "minions",
		Short: "Apply natural-language edits to many files in parallel",
		Long: `minions sends each file and instruction to a generator model, checks the
candidate's syntax, asks a reviewer model for a verdict, reconciles the edit
against the file and writes it atomically. Failed attempts are retried with
feedback and a simplified instruction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "project config file (default "+config.ProjectPath+")")
	pf.StringVar(&opts.root, "root", "", "workspace root (overrides workspace.root)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newRunCommand(opts),
		newApplyCommand(opts),
		newHistoryCommand(opts),
		newRestoreCommand(opts),
	)
	return root
}

// loadConfig reads layered config and applies --root.
func (o *globalOptions) loadConfig() (*config.Config, string, string, error) {
	globalPath, err := config.GlobalPath()
	if err != nil {
		return nil, "", "", err
	}
	projectPath := o.configPath
	if projectPath == "" {
		projectPath = config.ProjectPath
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, "", "", err
	}
	if o.root != "" {
		cfg.Workspace.Root = o.root
	}
	return cfg, globalPath, projectPath, nil
}

// newLogger builds a text logger on w.
func (o *globalOptions) newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
