package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/keyshop-backend/pkg/config"
	"github.com/angelmondragon/keyshop-backend/pkg/db"
	"github.com/angelmondragon/keyshop-backend/pkg/logger"
	"github.com/angelmondragon/keyshop-backend/pkg/migrate"
)

func main() {
	var dir string
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and inspect keyshop schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")

	root.AddCommand(
		dbCommand("up", "Apply all pending migrations", cobra.NoArgs, &dir, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			n, err := r.Up(ctx)
			if err == nil {
				fmt.Printf("applied %d migration(s)\n", n)
			}
			return err
		}),
		dbCommand("down", "Roll back the newest migration", cobra.NoArgs, &dir, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			return r.Down(ctx)
		}),
		dbCommand("to <version>", "Migrate up or down to a version", cobra.ExactArgs(1), &dir, func(ctx context.Context, r *migrate.Runner, args []string) error {
			target, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return r.To(ctx, target)
		}),
		dbCommand("status", "List migrations and whether they are applied", cobra.NoArgs, &dir, func(ctx context.Context, r *migrate.Runner, _ []string) error {
			rows, err := r.Status(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}),
		&cobra.Command{
			Use:   "create <name>",
			Short: "Write a new empty migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				target := dir
				if target == "" {
					target = migrate.DefaultDir
				}
				path, err := migrate.CreateSQLMigration(target, args[0])
				if err != nil {
					return err
				}
				fmt.Println("created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration names and goose annotations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fsys, err := migrate.Source(dir)
				if err != nil {
					return err
				}
				if err := migrate.Validate(fsys); err != nil {
					return err
				}
				fmt.Println("migrations valid")
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runnerFunc func(ctx context.Context, r *migrate.Runner, args []string) error

// dbCommand builds a subcommand that needs a live database connection.
func dbCommand(use, short string, args cobra.PositionalArgs, dir *string, run runnerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logg := logger.New(logger.Options{
				ServiceName: "migrate",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				WarnStack:   cfg.App.LogWarnStack,
				Output:      os.Stderr,
			})
			ctx := logg.WithFields(cmd.Context(), map[string]any{"env": cfg.App.Env, "cmd": cmd.Name()})

			client, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer client.Close()
			sqlDB, err := client.DB().DB()
			if err != nil {
				return fmt.Errorf("unwrap sql.DB: %w", err)
			}

			fsys, err := migrate.Source(*dir)
			if err != nil {
				return err
			}
			runner, err := migrate.NewRunner(sqlDB, fsys, logg)
			if err != nil {
				return err
			}
			return run(ctx, runner, argv)
		},
	}
}
