package main

import (
	"fangov/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

func newAPICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the governance HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load("api")
			if err != nil {
				return err
			}
			app, err := bootstrap.BuildAPI(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("api shutdown close failed", "error", err.Error())
				}
			}()
			return app.Run(cmd.Context())
		},
	}
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the lifecycle scheduler and outbox relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load("worker")
			if err != nil {
				return err
			}
			app, err := bootstrap.BuildWorker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("worker shutdown close failed", "error", err.Error())
				}
			}()
			return app.Run(cmd.Context())
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the governance tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load("migrate")
			if err != nil {
				return err
			}
			repo, closeDB, err := bootstrap.OpenRepository(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeDB() }()

			if err := repo.AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("governance schema is up to date")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the governance build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("governance version %s\n", version)
		},
	}
}
