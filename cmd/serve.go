package cmd

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"xmrbridge/config"
	"xmrbridge/pkg/api"
	"xmrbridge/pkg/ledger"
	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/logging"
	"xmrbridge/pkg/monero"
	"xmrbridge/pkg/oracle"
	"xmrbridge/pkg/swap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the swap-serving HTTP API",
	Long: `Starts the HTTP API that quotes Lightning invoices in XMR, hands out
per-swap Monero subaddresses and settles confirmed payments over Lightning.

Settlement records for the sweep daemon are written to the configured ledger
folders: refunds to the first, successful swaps to the second.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup("xmrbridge", cfg.Log)

	refunds, settlements, err := openLedgers(cfg.Sweep.Folders, logger)
	if err != nil {
		return err
	}

	svc := swap.NewService(
		cfg.Service,
		lightning.NewClient(cfg.Lightning),
		monero.NewClient(cfg.Monero),
		oracle.NewFeed(cfg.Oracle),
		settlements,
		refunds,
		logger,
	)

	server := api.NewServer(svc, logger)
	logger.Info("listening", "addr", cfg.Service.ListenAddr)
	return http.ListenAndServe(cfg.Service.ListenAddr, server.Router())
}

// openLedgers opens the refund and settlement stores. The config default
// lists the refund folder first and the settlement folder second; the sweep
// daemon scans both.
func openLedgers(folders []string, logger *slog.Logger) (refunds, settlements ledger.Store, err error) {
	if len(folders) < 2 {
		folders = []string{"refund_invoices", "successful_invoices"}
	}

	refunds, err = ledger.NewFileStore(folders[0], logger)
	if err != nil {
		return nil, nil, err
	}
	settlements, err = ledger.NewFileStore(folders[1], logger)
	if err != nil {
		return nil, nil, err
	}
	return refunds, settlements, nil
}
