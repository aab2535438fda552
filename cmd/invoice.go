package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"xmrbridge/config"
	"xmrbridge/pkg/lightning"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice <amount-btc> [description...]",
	Short: "Issue a Lightning invoice from the node",
	Long: `Asks the Lightning wallet daemon to issue a bolt11 invoice for the
given BTC amount, optionally with a description. Useful for pulling inbound
liquidity toward the node.

Examples:
  xmrbridge invoice 0.001
  xmrbridge invoice 0.001 rebalance deposit --json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runInvoice,
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
}

func runInvoice(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	amount, err := decimal.NewFromString(args[0])
	if err != nil || !amount.IsPositive() {
		printError(fmt.Errorf("invalid BTC amount %q", args[0]))
		os.Exit(1)
	}
	description := strings.Join(args[1:], " ")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	wallet := lightning.NewClient(cfg.Lightning)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Issuing invoice..."
		s.Start()
	}

	invoice, err := wallet.AddInvoice(context.Background(), amount, description)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]string{
			"amount_btc":  amount.String(),
			"description": description,
			"invoice":     invoice,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	bold := color.New(color.Bold)
	fmt.Println()
	bold.Println("Invoice issued")
	fmt.Printf("  Amount:  %s BTC\n", amount)
	if description != "" {
		fmt.Printf("  Memo:    %s\n", description)
	}
	color.Green("  %s", invoice)
	fmt.Println()
}
