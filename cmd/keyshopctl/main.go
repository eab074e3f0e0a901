package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/keyshop-backend/internal/bootstrap"
	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "keyshopctl",
		Short:         "Operator tooling for the keyshop order engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(reapCmd())
	rootCmd.AddCommand(countsCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(finalizeCmd())
	rootCmd.AddCommand(operatorKeyCmd())
	rootCmd.AddCommand(dlqCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired service graph for one command invocation.
type app struct {
	cfg   *config.Config
	logg  *logger.Logger
	db    *db.Client
	svcs  *bootstrap.Services
	close func()
}

func loadApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "keyshopctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Output:      os.Stderr,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	svcs, err := bootstrap.Build(cfg, logg, client, nil)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &app{
		cfg:  cfg,
		logg: logg,
		db:   client,
		svcs: svcs,
		close: func() {
			if err := client.Close(); err != nil {
				logg.Error(ctx, "error closing database", err)
			}
		},
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
