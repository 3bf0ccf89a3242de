package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/config"
	"github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/store"
)

var sweepInterval time.Duration

var sweepLocksCmd = &cobra.Command{
	Use:   "sweep-locks",
	Short: "Remove expired analysis locks once, or continuously with --interval",
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

		locks := store.NewLockRepository(db.Conn())

		if sweepInterval <= 0 {
			return sweepOnce(locks)
		}

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			if err := sweepOnce(locks); err != nil {
				logger.Warn("sweep failed", zap.Error(err))
			}
			<-ticker.C
		}
	},
}

func init() {
	rootCmd.AddCommand(sweepLocksCmd)
	sweepLocksCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Repeat the sweep on this interval instead of running once")
}

func sweepOnce(locks *store.LockRepository) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := locks.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s removed %d expired lock(s)\n", color.GreenString("ok"), n)
	return nil
}
