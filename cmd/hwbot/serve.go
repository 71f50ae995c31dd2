package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JekaCAP/homework-assistant-bot/internal/dashboard"
	"github.com/JekaCAP/homework-assistant-bot/internal/telegraph"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		migrate    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot",
		Long: `Connects to the configured chat platform, answers students and reviewers,
and relays notifications. When dashboard.enabled is set, the read-only
dashboard API is served alongside the bot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, migrate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to hwbot config file")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "migrate tables and seed courses and admins on startup")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, migrate bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Platform == "" {
		return fmt.Errorf("no platform configured in %s (set platform: slack or discord)", configPath)
	}

	if migrate {
		if err := migrateAndSeed(out, gormDB, cfg); err != nil {
			return err
		}
	}

	verifier, err := createVerifier(cfg)
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	daemon, err := telegraph.NewDaemon(telegraph.DaemonOpts{
		DB:       gormDB,
		Config:   cfg,
		Adapter:  adapter,
		Verifier: verifier,
		Out:      out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Dashboard.Enabled {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				DB:           gormDB,
				Port:         cfg.Dashboard.Port,
				Out:          out,
				PollInterval: 3 * time.Second,
			})
			if err != nil {
				log.Printf("hwbot: %v", err)
			}
		}()
	}

	return daemon.Run(ctx)
}
