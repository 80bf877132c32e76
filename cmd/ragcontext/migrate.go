package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ragcontext-mcp/internal/app"
	"github.com/dshills/ragcontext-mcp/internal/config"
	"github.com/dshills/ragcontext-mcp/internal/embedder"
	"github.com/dshills/ragcontext-mcp/internal/storage"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations, or roll back the latest one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			if rollback && cfg.Database.Driver != config.DriverSQLite {
				return fmt.Errorf("rollback is only supported for the sqlite driver")
			}

			// pgvector columns are sized by the embedding dimension
			dimension := 0
			if cfg.Database.Driver == config.DriverPostgres {
				provider, err := embedder.New(cfg.Embedding)
				if err != nil {
					return fmt.Errorf("failed to initialize embedder: %w", err)
				}
				dimension = provider.Dimension()
				_ = provider.Close()
			}

			// Opening a store applies pending migrations
			store, err := app.OpenStore(ctx, cfg.Database, dimension)
			if err != nil {
				return err
			}
			defer store.Close()

			if rollback {
				sqlite, ok := store.(*storage.SQLiteStorage)
				if !ok {
					return fmt.Errorf("rollback is only supported for the sqlite driver")
				}
				if err := storage.RollbackMigration(ctx, sqlite.DB()); err != nil {
					return err
				}
			}

			status, err := store.GetStatus(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %s (%s)\n", status.SchemaVersion, status.Backend)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the most recent migration (sqlite only)")
	return cmd
}
