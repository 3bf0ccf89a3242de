package main

import (
	"github.com/spf13/cobra"

	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/store"
)

var migrateStatusOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or report) pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Development)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := store.Open(cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if migrateStatusOnly {
			return store.MigrationStatus(db.SQLDB())
		}
		return store.Migrate(db.SQLDB())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "Report migration status without applying anything")
}
