package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xmrbridge/config"
	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/oracle"
	"xmrbridge/pkg/swap"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <bolt11-invoice>",
	Short: "Price a Lightning invoice in XMR",
	Long: `Decodes a Lightning invoice, fetches the current XMR/BTC rate and
prints the XMR amount due including the service margin. Runs the same
liquidity checks the API applies, so a printed quote is one the service would
actually accept.

Examples:
  xmrbridge quote lnbc1m1...
  xmrbridge quote lnbc1m1... --json`,
	Args: cobra.ExactArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) {
	invoice := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	wallet := lightning.NewClient(cfg.Lightning)
	engine := swap.NewQuoteEngine(wallet, oracle.NewFeed(cfg.Oracle), cfg.Service.FeeRate)
	gate := swap.NewLiquidityGate(wallet, cfg.Service.MaxAmountBTC, cfg.Service.MinLiquidityRatio)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	ctx := context.Background()
	quote, err := engine.Quote(ctx, invoice)
	if err == nil {
		err = gate.Check(ctx, quote.AmountBTC)
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]string{
			"payment_hash":   quote.PaymentHash,
			"amount_btc":     quote.AmountBTC.String(),
			"description":    quote.Description,
			"rate":           quote.Rate.String(),
			"fee_rate":       quote.FeeRate.String(),
			"xmr_amount_due": quote.XMRAmountDue.StringFixed(12),
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	bold := color.New(color.Bold)
	fmt.Println()
	bold.Println("Quote")
	fmt.Printf("  Invoice amount:  %s BTC\n", quote.AmountBTC)
	if quote.Description != "" {
		fmt.Printf("  Description:     %s\n", quote.Description)
	}
	fmt.Printf("  Payment hash:    %s\n", quote.PaymentHash)
	fmt.Printf("  XMR/BTC rate:    %s\n", quote.Rate)
	fmt.Printf("  Fee rate:        %s\n", quote.FeeRate)
	color.Green("  XMR due:         %s", quote.XMRAmountDue.StringFixed(12))
	fmt.Println()
}
