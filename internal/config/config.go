// Package config loads server configuration from an optional YAML file and
// MEMEETF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/validation"
	"github.com/spf13/viper"

	"memeetf/internal/domain"
	"memeetf/internal/program"
)

var urlRule = validation.Match(regexp.MustCompile(`^(https?|wss?)://\S+$`)).Error("must be an http(s) or ws(s) URL")

// EnvPrefix prefixes every environment override, e.g. MEMEETF_SOLANA_RPC_URL.
const EnvPrefix = "MEMEETF"

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type SolanaConfig struct {
	RPCURL     string        `mapstructure:"rpc_url"`
	WSURL      string        `mapstructure:"ws_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	ProgramID  string        `mapstructure:"program_id"`
}

type ConfirmConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SwapConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	SlippageBps    int           `mapstructure:"slippage_bps"`
	JupiterURL     string        `mapstructure:"jupiter_url"`
	SubstituteMint string        `mapstructure:"substitute_mint"`
	AvailableMints []string      `mapstructure:"available_mints"`
}

type CustodyConfig struct {
	EncryptedKey string `mapstructure:"encrypted_key"`
	Passphrase   string `mapstructure:"passphrase"`
}

type StorageConfig struct {
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

type MarketDataConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type ReconcileConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	RefundAttempts int           `mapstructure:"refund_attempts"`
}

// Config is the full server configuration.
type Config struct {
	LogLevel       string           `mapstructure:"log_level"`
	Network        domain.Network   `mapstructure:"network"`
	PlatformWallet string           `mapstructure:"platform_wallet"`
	MetricsPrefix  string           `mapstructure:"metrics_prefix"`
	HTTP           HTTPConfig       `mapstructure:"http"`
	Solana         SolanaConfig     `mapstructure:"solana"`
	Confirm        ConfirmConfig    `mapstructure:"confirm"`
	Swap           SwapConfig       `mapstructure:"swap"`
	Custody        CustodyConfig    `mapstructure:"custody"`
	Storage        StorageConfig    `mapstructure:"storage"`
	MarketData     MarketDataConfig `mapstructure:"market_data"`
	Reconcile      ReconcileConfig  `mapstructure:"reconcile"`
}

// Load reads path (optional; a missing file is not an error), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("network", string(domain.NetworkDevnet))
	v.SetDefault("platform_wallet", "")
	v.SetDefault("metrics_prefix", "memeetf")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "120s")

	v.SetDefault("solana.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.timeout", "30s")
	v.SetDefault("solana.max_retries", 3)
	v.SetDefault("solana.program_id", program.DefaultProgramID)

	v.SetDefault("confirm.timeout", "60s")
	v.SetDefault("confirm.poll_interval", "2s")

	v.SetDefault("swap.timeout", "45s")
	v.SetDefault("swap.slippage_bps", 100)
	v.SetDefault("swap.jupiter_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("swap.substitute_mint", "")
	v.SetDefault("swap.available_mints", []string{})

	v.SetDefault("custody.encrypted_key", "")
	v.SetDefault("custody.passphrase", "")

	v.SetDefault("storage.use_memory", false)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("market_data.url", "https://api.dexscreener.com")
	v.SetDefault("market_data.timeout", "5s")
	v.SetDefault("market_data.redis_addr", "")
	v.SetDefault("market_data.redis_db", 0)
	v.SetDefault("market_data.cache_ttl", "1m")

	v.SetDefault("reconcile.sweep_interval", "5m")
	v.SetDefault("reconcile.refund_attempts", 3)
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Network, validation.Required, validation.In(domain.NetworkDevnet, domain.NetworkMainnet)),
		validation.Field(&c.PlatformWallet, validation.Required, domain.Address),
		validation.Field(&c.HTTP),
		validation.Field(&c.Solana),
		validation.Field(&c.Confirm),
		validation.Field(&c.Swap),
		validation.Field(&c.Custody),
		validation.Field(&c.Storage),
		validation.Field(&c.Reconcile),
	)
}

func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
	)
}

func (c SolanaConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RPCURL, validation.Required, urlRule),
		validation.Field(&c.WSURL, urlRule),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.ProgramID, validation.Required, domain.Address),
	)
}

func (c ConfirmConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Min(time.Second)),
		validation.Field(&c.PollInterval, validation.Min(10*time.Millisecond)),
	)
}

func (c SwapConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Min(time.Second)),
		validation.Field(&c.SlippageBps, validation.Min(1), validation.Max(10_000)),
		validation.Field(&c.JupiterURL, validation.Required, urlRule),
		validation.Field(&c.SubstituteMint, domain.Address),
		validation.Field(&c.AvailableMints, validation.Each(domain.Address)),
	)
}

func (c CustodyConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.EncryptedKey, validation.Required),
		validation.Field(&c.Passphrase, validation.Required),
	)
}

func (c StorageConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PostgresDSN, validation.When(!c.UseMemory, validation.Required)),
	)
}

func (c ReconcileConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SweepInterval, validation.Min(time.Second)),
		validation.Field(&c.RefundAttempts, validation.Min(1)),
	)
}
