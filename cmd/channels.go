package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"xmrbridge/config"
	"xmrbridge/pkg/lightning"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Show Lightning channels and send liquidity",
	Long: `Lists the node's open channels with their local and remote balances
and prints the local balance as a percentage of total channel capacity — the
same liquidity ratio the swap gate checks against.`,
	Run: runChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func runChannels(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	wallet := lightning.NewClient(cfg.Lightning)
	channels, err := wallet.ListChannels(context.Background())
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var localSats, remoteSats int64
	for _, ch := range channels {
		localSats += ch.LocalBalance
		remoteSats += ch.RemoteBalance
	}

	local := lightning.BTCFromSats(localSats)
	remote := lightning.BTCFromSats(remoteSats)
	capacity := local.Add(remote)

	var ratio decimal.Decimal
	if !capacity.IsZero() {
		ratio = local.Div(capacity).Mul(decimal.New(100, 0)).Round(2)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]interface{}{
			"channels":            channels,
			"local_btc":           local.String(),
			"remote_btc":          remote.String(),
			"liquidity_percent":   ratio.String(),
			"min_ratio_threshold": cfg.Service.MinLiquidityRatio.String(),
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	bold := color.New(color.Bold)
	fmt.Println()
	bold.Printf("Channels (%d)\n", len(channels))
	for _, ch := range channels {
		fmt.Printf("  %-20s local %12d sat  remote %12d sat\n",
			ch.ChannelID, ch.LocalBalance, ch.RemoteBalance)
	}
	fmt.Println()
	fmt.Printf("  Local:    %s BTC\n", local)
	fmt.Printf("  Remote:   %s BTC\n", remote)

	minPercent := cfg.Service.MinLiquidityRatio.Mul(decimal.New(100, 0))
	if ratio.GreaterThanOrEqual(minPercent) {
		color.Green("  Send liquidity: %s%% (minimum %s%%)", ratio, minPercent)
	} else {
		color.Red("  Send liquidity: %s%% (below %s%% minimum, quotes will be rejected)", ratio, minPercent)
	}
	fmt.Println()
}
