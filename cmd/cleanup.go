package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flanksource/lint-api/cache"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/workspace"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired workspaces and cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		workspaces, err := workspace.NewManager(cfg.Workspace)
		if err != nil {
			return err
		}
		removedWorkspaces := workspaces.CleanupExpired()

		gormDB, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		// No cleanup interval here: one-shot invocation
		cacheCfg := cfg.Cache
		cacheCfg.CleanupIntervalMinutes = 0
		cacheService := cache.NewService(db.NewResultStore(gormDB), cacheCfg)

		removedEntries, err := cacheService.Cleanup(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d expired workspaces and %d expired cache entries\n",
			removedWorkspaces, removedEntries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
