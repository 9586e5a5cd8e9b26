package config

// Package config provides a reusable loader for the party node's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.2.0

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/redbridge-network/partychain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config represents the unified configuration for a party node.
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		Environment    string   `mapstructure:"environment" json:"environment"` // Main, Dev, Test, Local
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Party struct {
		EnablePartyMode                  bool  `mapstructure:"enable_party_mode" json:"enable_party_mode"`
		OrderCutoffDelayTimeMS           int64 `mapstructure:"order_cutoff_delay_time" json:"order_cutoff_delay_time"`
		PollIntervalMS                   int64 `mapstructure:"poll_interval" json:"poll_interval"`
		PortfolioFulfillmentAgentSeconds int64              `mapstructure:"portfolio_fulfillment_agent_seconds" json:"portfolio_fulfillment_agent_seconds"`
		KeystoreDir                      string             `mapstructure:"keystore_dir" json:"keystore_dir"`
		TargetAllocations                map[string]float64 `mapstructure:"target_allocations" json:"target_allocations"`
	} `mapstructure:"party" json:"party"`

	DAQ struct {
		PollDurationSeconds int64 `mapstructure:"poll_duration_seconds" json:"poll_duration_seconds"`
	} `mapstructure:"daq" json:"daq"`

	Chains struct {
		BitcoinRPCURLs  []string `mapstructure:"bitcoin_rpc_urls" json:"bitcoin_rpc_urls"`
		EthereumRPCURLs []string `mapstructure:"ethereum_rpc_urls" json:"ethereum_rpc_urls"`
		MoneroRPCURLs   []string `mapstructure:"monero_rpc_urls" json:"monero_rpc_urls"`
		SolanaRPCURLs   []string `mapstructure:"solana_rpc_urls" json:"solana_rpc_urls"`
	} `mapstructure:"chains" json:"chains"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Prune  bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath("/etc/partynode")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PARTY_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PARTY_ENV", ""))
}
