package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xmrbridge/config"
	"xmrbridge/pkg/ledger"
	"xmrbridge/pkg/logging"
	"xmrbridge/pkg/monero"
	"xmrbridge/pkg/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the background sweep daemon",
	Long: `Scans the settlement ledger folders and sweeps unlocked subaddress
funds to their recorded destinations. Runs until interrupted or until the
error budget is exhausted.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup("xmrbridge-sweep", cfg.Log)

	stores := make([]ledger.Store, 0, len(cfg.Sweep.Folders))
	for _, folder := range cfg.Sweep.Folders {
		store, err := ledger.NewFileStore(folder, logger)
		if err != nil {
			return err
		}
		stores = append(stores, store)
	}

	sweeper := sweep.New(sweep.Config{
		RetryInterval: cfg.Sweep.RetryInterval,
		ScanInterval:  cfg.Sweep.ScanInterval,
		MaxErrors:     cfg.Sweep.MaxErrors,
	}, monero.NewClient(cfg.Monero), stores, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sweep daemon",
		"folders", cfg.Sweep.Folders,
		"scan_interval", cfg.Sweep.ScanInterval.String())

	if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
