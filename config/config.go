package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// MoneroConfig holds connection details for monero-wallet-rpc.
type MoneroConfig struct {
	RPCURL       string
	Username     string
	Password     string
	AccountIndex uint32
}

// LightningConfig holds connection details for the Lightning wallet daemon.
type LightningConfig struct {
	RPCURL   string
	Username string
	Password string
}

// OracleConfig holds the price feed endpoint.
type OracleConfig struct {
	FeedURL string
	Timeout time.Duration
}

// ServiceConfig holds the swap-serving parameters.
type ServiceConfig struct {
	// ListenAddr is the bind address for the HTTP API.
	ListenAddr string

	// SettlementAddress receives swept funds from successful swaps.
	SettlementAddress string

	// FeeRate is the margin applied on top of the oracle rate.
	FeeRate decimal.Decimal

	// MaxAmountBTC is the safety ceiling for a single swap.
	MaxAmountBTC decimal.Decimal

	// MinLiquidityRatio is the minimum local/(local+remote) channel ratio.
	MinLiquidityRatio decimal.Decimal

	// ZeroConfThreshold is the XMR amount below which unconfirmed pool
	// transfers are accepted as payment.
	ZeroConfThreshold decimal.Decimal

	// QuoteTTL is how long a quoted swap stays payable.
	QuoteTTL time.Duration
}

// SweepConfig holds the sweep daemon parameters.
type SweepConfig struct {
	// Folders are the settlement ledger directories to scan.
	Folders []string

	// RetryInterval is the minimum time between sweep attempts for one
	// subaddress index.
	RetryInterval time.Duration

	// ScanInterval is the sleep between full folder scans.
	ScanInterval time.Duration

	// MaxErrors is the shared error budget before the loop exits.
	MaxErrors int
}

// LogConfig controls structured log output.
type LogConfig struct {
	// File is an optional log file path. Empty means stdout only.
	File string

	// MaxSizeMB and MaxBackups control rotation of the log file.
	MaxSizeMB  int
	MaxBackups int
}

// Config holds the application configuration.
type Config struct {
	Monero    MoneroConfig
	Lightning LightningConfig
	Oracle    OracleConfig
	Service   ServiceConfig
	Sweep     SweepConfig
	Log       LogConfig
}

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	viper.SetConfigName(".xmrbridge")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("monero.rpc_url", "http://127.0.0.1:38083/json_rpc")
	viper.SetDefault("monero.account_index", 0)
	viper.SetDefault("lightning.rpc_url", "http://127.0.0.1:5000")
	viper.SetDefault("oracle.timeout", "30s")
	viper.SetDefault("service.listen_addr", ":5555")
	viper.SetDefault("service.fee_rate", "0.05")
	viper.SetDefault("service.max_amount_btc", "0.0015")
	viper.SetDefault("service.min_liquidity_ratio", "0.10")
	viper.SetDefault("service.zero_conf_threshold", "0.25")
	viper.SetDefault("service.quote_ttl", "2m")
	viper.SetDefault("sweep.folders", []string{"refund_invoices", "successful_invoices"})
	viper.SetDefault("sweep.retry_interval", "1h")
	viper.SetDefault("sweep.scan_interval", "20m")
	viper.SetDefault("sweep.max_errors", 10)
	viper.SetDefault("log.max_size_mb", 10)
	viper.SetDefault("log.max_backups", 5)

	viper.SetEnvPrefix("XMRBRIDGE")
	// Dotted config keys map to underscored env vars, e.g.
	// service.max_amount_btc -> XMRBRIDGE_SERVICE_MAX_AMOUNT_BTC.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file is optional; env vars and defaults are enough to run.
	_ = viper.ReadInConfig()

	cfg := &Config{
		Monero: MoneroConfig{
			RPCURL:       viper.GetString("monero.rpc_url"),
			Username:     viper.GetString("monero.username"),
			Password:     viper.GetString("monero.password"),
			AccountIndex: uint32(viper.GetUint("monero.account_index")),
		},
		Lightning: LightningConfig{
			RPCURL:   viper.GetString("lightning.rpc_url"),
			Username: viper.GetString("lightning.username"),
			Password: viper.GetString("lightning.password"),
		},
		Oracle: OracleConfig{
			FeedURL: viper.GetString("oracle.feed_url"),
			Timeout: viper.GetDuration("oracle.timeout"),
		},
		Service: ServiceConfig{
			ListenAddr:        viper.GetString("service.listen_addr"),
			SettlementAddress: viper.GetString("service.settlement_address"),
			QuoteTTL:          viper.GetDuration("service.quote_ttl"),
		},
		Sweep: SweepConfig{
			Folders:       viper.GetStringSlice("sweep.folders"),
			RetryInterval: viper.GetDuration("sweep.retry_interval"),
			ScanInterval:  viper.GetDuration("sweep.scan_interval"),
			MaxErrors:     viper.GetInt("sweep.max_errors"),
		},
		Log: LogConfig{
			File:       viper.GetString("log.file"),
			MaxSizeMB:  viper.GetInt("log.max_size_mb"),
			MaxBackups: viper.GetInt("log.max_backups"),
		},
	}

	var err error
	if cfg.Service.FeeRate, err = parseDecimal("service.fee_rate"); err != nil {
		return nil, err
	}
	if cfg.Service.MaxAmountBTC, err = parseDecimal("service.max_amount_btc"); err != nil {
		return nil, err
	}
	if cfg.Service.MinLiquidityRatio, err = parseDecimal("service.min_liquidity_ratio"); err != nil {
		return nil, err
	}
	if cfg.Service.ZeroConfThreshold, err = parseDecimal("service.zero_conf_threshold"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDecimal(key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}
