// Command noticectl runs maintenance tasks against the notices database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	noticesvc "nebs-backend/internal/application/notices"
	"nebs-backend/internal/config"
	"nebs-backend/internal/infrastructure/database"
	"nebs-backend/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var databaseURI string

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "noticectl",
		Short:         "Maintenance tasks for the notices backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			b := config.ReadBasics()
			logger.Init(logger.Options{Level: b.LogLevel, Env: b.Env, Serverless: true})
		},
	}
	root.PersistentFlags().StringVar(&databaseURI, "database-uri", "", "database URI (defaults to DATABASE_URI or MONGODB_URI)")
	root.AddCommand(migrateCmd(), seedCmd(), checkCmd())
	return root
}

// connect dials the database once, failing fast instead of waiting on retries.
func connect(ctx context.Context) (*database.Manager, error) {
	uri := databaseURI
	var name string
	waitTimeout, connectTimeout := database.DefaultWaitTimeout, database.DefaultConnectTimeout
	if cfg, err := config.Load(); err == nil {
		name = cfg.DatabaseName
		waitTimeout, connectTimeout = cfg.DBWaitTimeout, cfg.DBConnectTimeout
		if uri == "" {
			uri = cfg.DatabaseURI
		}
	} else if uri == "" {
		return nil, err
	}
	m := database.NewManager(database.Options{
		URI:            func() (string, error) { return uri, nil },
		Connector:      database.Dialer{DatabaseName: name},
		WaitTimeout:    waitTimeout,
		ConnectTimeout: connectTimeout,
	})
	if err := m.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func withRepo(cmd *cobra.Command, fn func(*database.Manager) error) error {
	m, err := connect(cmd.Context())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := m.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Closing database failed")
		}
	}()
	return fn(m)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the notices table or collection indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(m *database.Manager) error {
				repo, err := m.Notices()
				if err != nil {
					return err
				}
				if err := repo.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				log.Info().Str("host", m.Host()).Msg("Migration complete")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Replace all notices with the sample set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(m *database.Manager) error {
				repo, err := m.Notices()
				if err != nil {
					return err
				}
				if err := repo.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				removed, err := noticesvc.Seed(cmd.Context(), repo, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				log.Info().Int64("removed", removed).Int("created", len(noticesvc.SampleNotices(time.Time{}))).Msg("Database seeded")
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to the database and print the resolved host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(m *database.Manager) error {
				if err := m.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", m.Host())
				return nil
			})
		},
	}
}
