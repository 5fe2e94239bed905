package config

import (
	"strings"

	"github.com/nconklindev/custprep/internal/preparer"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings for a run. Every field has a default, so a run
// with no flags and no environment reads the public customer dataset and
// writes data/customer.csv.
type Config struct {
	Source   string `mapstructure:"source"`
	Output   string `mapstructure:"output"`
	TUI      bool   `mapstructure:"tui"`
	LogLevel string `mapstructure:"log-level"`
}

// Load resolves configuration from flags and environment variables.
// Environment variables use the prefix "CUSTPREP" with dashes replaced by
// underscores, so "log-level" becomes "CUSTPREP_LOG_LEVEL". A flag set on
// the command line wins over the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("source", preparer.DefaultSource)
	v.SetDefault("output", preparer.DefaultOutput)
	v.SetDefault("tui", false)
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("CUSTPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
