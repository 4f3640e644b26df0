// Package config loads the node's runtime configuration in three
// layers, lowest to highest precedence: compiled-in defaults,
// config.ini, then CLI flags/env vars, using Viper bound to the Cobra
// flags cmd/gossipd defines.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the node's fully-resolved runtime configuration.
type Config struct {
	// [node]
	BindAddr    string `mapstructure:"bind_addr"`
	GossipRate  int    `mapstructure:"gossip_rate"`
	TargetCount int    `mapstructure:"target_count"`

	// [database]
	DBFile string `mapstructure:"db_file"`

	// [system_setting]
	DockerIP string `mapstructure:"docker_ip"`
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("node.bind_addr", "0.0.0.0:5000")
	v.SetDefault("node.gossip_rate", 1)
	v.SetDefault("node.target_count", 3)
	v.SetDefault("database.db_file", "gossip.db")
	v.SetDefault("system_setting.docker_ip", "127.0.0.1")
	return v
}

// Load reads configPath (a config.ini) over the compiled-in
// defaults. bindFlags, if non-nil, is given the chance to register
// CLI flags/env vars against v before the final decode; the caller is
// responsible for applying any flag overrides it cares about to the
// returned Config (cmd/gossipd does this explicitly, since its flag
// names don't mirror config.ini's dotted section keys).
func Load(configPath string, bindFlags func(*viper.Viper) error) (Config, error) {
	v := defaults()
	v.SetConfigType("ini")
	v.SetEnvPrefix("gossip")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		// A missing or unreadable config.ini is not fatal: the node
		// can still run entirely off defaults and CLI flags/env vars.
		_ = v.ReadInConfig()
	}

	if bindFlags != nil {
		if err := bindFlags(v); err != nil {
			return Config{}, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var cfg Config
	for _, section := range []string{"node", "database", "system_setting"} {
		sub := v.Sub(section)
		if sub == nil {
			continue
		}
		if err := sub.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: decoding [%s] section: %w", section, err)
		}
	}

	return cfg, nil
}
