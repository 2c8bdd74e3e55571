package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sozodigi/telecare/internal/api"
	"github.com/sozodigi/telecare/internal/config"
	"github.com/sozodigi/telecare/internal/db"
	"github.com/sozodigi/telecare/internal/jobs"
	"github.com/sozodigi/telecare/internal/relay"
	"github.com/sozodigi/telecare/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, relay and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "telecare.yaml", "path to Telecare config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbc := cfg.Database
	gormDB, err := db.Connect(dbc.Host, dbc.Port, dbc.User, dbc.Password, dbc.Name)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dbc.Name, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	issuer, err := session.NewTokenIssuer(cfg.Widget.TokenSecret, cfg.TokenTTL())
	if err != nil {
		return err
	}
	runner, err := jobs.NewRunner(jobs.RunnerOpts{
		DB:           gormDB,
		ReminderCron: cfg.Jobs.ReminderSchedule,
		SweepCron:    cfg.Jobs.StaleSweepSchedule,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Start(ctx, api.StartOpts{
			DB:     gormDB,
			Issuer: issuer,
			Port:   cfg.API.Port,
			RPS:    cfg.RateLimit.RequestsPerSecond,
			Burst:  cfg.RateLimit.Burst,
			Out:    out,
		})
	})
	g.Go(func() error {
		return relay.Start(ctx, relay.StartOpts{
			Hub:  relay.NewHub(),
			Port: cfg.Relay.Port,
			Out:  out,
		})
	})
	g.Go(func() error {
		runner.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	fmt.Fprintln(out, "Shut down cleanly.")
	return nil
}
