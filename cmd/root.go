package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "xmrbridge",
	Short: "A non-custodial Monero to Lightning settlement bridge",
	Long: `xmrbridge quotes an XMR amount for a Lightning invoice, watches a
dedicated Monero subaddress for the payment and, once it confirms, pays the
invoice from pooled channel liquidity. A companion sweep daemon later drains
the per-swap subaddresses into the settlement wallet or back to the payer.

Examples:
  xmrbridge serve
  xmrbridge sweep
  xmrbridge quote <bolt11-invoice>
  xmrbridge channels
  xmrbridge invoice 0.001`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
