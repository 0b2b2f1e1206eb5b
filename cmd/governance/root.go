package main

import (
	"log/slog"
	"strings"

	"fangov/internal/app/bootstrap"
	"fangov/internal/platform/config"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "governance",
		Short: "Fan-organization proposal governance engine",
		Long: `governance runs the proposal lifecycle for fan organizations: the HTTP
API, the lifecycle scheduler and outbox relay worker, and admin commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default: ./governance.yaml or /etc/fangov)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddGroup(
		&cobra.Group{ID: "run", Title: "Run Commands"},
		&cobra.Group{ID: "admin", Title: "Admin Commands"},
	)

	apiCmd := newAPICmd(opts)
	apiCmd.GroupID = "run"
	workerCmd := newWorkerCmd(opts)
	workerCmd.GroupID = "run"
	migrateCmd := newMigrateCmd(opts)
	migrateCmd.GroupID = "admin"
	membersCmd := newMembersCmd(opts)
	membersCmd.GroupID = "admin"
	resultsCmd := newResultsCmd(opts)
	resultsCmd.GroupID = "admin"

	root.AddCommand(apiCmd, workerCmd, migrateCmd, membersCmd, resultsCmd, newVersionCmd())
	return root
}

// load resolves config and the process logger for one subcommand.
func (o *rootOptions) load(process string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if level := strings.TrimSpace(o.logLevel); level != "" {
		cfg.LogLevel = level
	}
	logger := bootstrap.NewLogger(cfg.LogLevel, cfg.ServiceName, process)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
