// Package config provides a reusable loader for node configuration files and
// environment variables, in the style of the pack's viper-based config
// packages.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"ledgerd/pkg/utils"
)

// Config is the unified configuration for a node process. Fields map
// directly onto SPEC_FULL.md's block log, sync manager, and connection
// settings.
type Config struct {
	Network struct {
		ChainID        string   `mapstructure:"chain_id" json:"chain_id"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	BlockLog struct {
		Dir            string `mapstructure:"dir" json:"dir"`
		PruneBlocks    uint32 `mapstructure:"prune_blocks" json:"prune_blocks"`
		PruneThreshold uint32 `mapstructure:"prune_threshold" json:"prune_threshold"`
	} `mapstructure:"block_log" json:"block_log"`

	Sync struct {
		MaxRequestsInFlight int `mapstructure:"max_requests_in_flight" json:"max_requests_in_flight"`
		ReqTrxTimeoutMS     int `mapstructure:"req_trx_timeout_ms" json:"req_trx_timeout_ms"`
		PeerBackoffMinMS    int `mapstructure:"peer_backoff_min_ms" json:"peer_backoff_min_ms"`
		PeerBackoffMaxMS    int `mapstructure:"peer_backoff_max_ms" json:"peer_backoff_max_ms"`
	} `mapstructure:"sync" json:"sync"`

	ControlAPI struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"control_api" json:"control_api"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the named config file (searched under ./config and
// ./cmd/noded/config) plus any environment-specific override, merges in
// environment variables, and stores the result in AppConfig.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/noded/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("LEDGERD")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LEDGERD_ENV environment
// variable to pick the override file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGERD_ENV", ""))
}

func setDefaults() {
	viper.SetDefault("network.max_peers", 25)
	viper.SetDefault("network.listen_addr", "0.0.0.0:9876")
	viper.SetDefault("block_log.dir", "data/blocks")
	viper.SetDefault("block_log.prune_blocks", 0)
	viper.SetDefault("block_log.prune_threshold", 1024)
	viper.SetDefault("sync.max_requests_in_flight", 20)
	viper.SetDefault("sync.req_trx_timeout_ms", 2000)
	viper.SetDefault("sync.peer_backoff_min_ms", 500)
	viper.SetDefault("sync.peer_backoff_max_ms", 30000)
	viper.SetDefault("control_api.enabled", false)
	viper.SetDefault("control_api.listen_addr", "127.0.0.1:8888")
	viper.SetDefault("logging.level", "info")
}
