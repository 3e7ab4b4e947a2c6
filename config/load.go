package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "BGSTRIP"
	FileName  = "bgstrip"
)

// NewViper builds the viper instance with defaults and environment
// binding. configFile, when set, must exist; otherwise bgstrip.toml is
// looked up in the working directory and then $HOME/.config/bgstrip.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigType("toml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Fatal(errors.Wrapf(err, "failed to read config file %s", configFile))
		}
		return v, nil
	}

	v.SetConfigName(FileName)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", FileName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Fatal(errors.Wrap(err, "failed to read config file"))
		}
	}
	return v, nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Fatal(errors.Wrap(err, "failed to unmarshal config"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return Load(v)
}
