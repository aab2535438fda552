package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.05", cfg.Service.FeeRate.String())
	require.Equal(t, "0.0015", cfg.Service.MaxAmountBTC.String())
	require.Equal(t, "0.1", cfg.Service.MinLiquidityRatio.String())
	require.Equal(t, "0.25", cfg.Service.ZeroConfThreshold.String())
	require.Equal(t, 2*time.Minute, cfg.Service.QuoteTTL)
	require.Equal(t, []string{"refund_invoices", "successful_invoices"}, cfg.Sweep.Folders)
	require.Equal(t, time.Hour, cfg.Sweep.RetryInterval)
	require.Equal(t, 20*time.Minute, cfg.Sweep.ScanInterval)
	require.Equal(t, 10, cfg.Sweep.MaxErrors)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("XMRBRIDGE_SERVICE_MAX_AMOUNT_BTC", "0.005")
	t.Setenv("XMRBRIDGE_MONERO_RPC_URL", "http://wallet:38083/json_rpc")
	t.Setenv("XMRBRIDGE_SWEEP_MAX_ERRORS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.005", cfg.Service.MaxAmountBTC.String())
	require.Equal(t, "http://wallet:38083/json_rpc", cfg.Monero.RPCURL)
	require.Equal(t, 3, cfg.Sweep.MaxErrors)
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	t.Setenv("XMRBRIDGE_SERVICE_FEE_RATE", "five percent")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "service.fee_rate")
}
