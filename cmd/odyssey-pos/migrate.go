package main

import (
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|redo]",
		Short:     "Apply the embedded database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "redo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool, command); err != nil {
				return err
			}
			logger.Info("migrations applied", "command", command)
			return nil
		},
	}
}
