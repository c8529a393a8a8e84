package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"publish-auth/internal/auth"
	"publish-auth/internal/config"
	"publish-auth/internal/db"
)

// NewRootCmd creates the operator CLI. Every subcommand reads the same
// environment as the API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operate the publish-auth database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())

	return cmd
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			cmd.Println("Running migrations...")
			if err := db.RunMigrations(cmd.Context(), database); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}

func NewPruneCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired refresh lineages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			deleted, err := auth.NewRepository(database).DeleteExpiredLineages(cmd.Context(), batchSize)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d expired refresh lineages\n", deleted)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "maximum rows to delete")
	return cmd
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load(config.Options{LoadDotEnv: true})
	if err != nil {
		return nil, err
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}
