package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinytelemetry/logdex/internal/model"
	"github.com/tinytelemetry/logdex/internal/socketrpc"
	"github.com/spf13/viper"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// cliConfig holds only client-relevant configuration. It shares the service
// config file so socket-path stays in one place.
type cliConfig struct {
	SocketPath   string        `mapstructure:"socket-path"`
	Format       string        `mapstructure:"format"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGDEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("format", model.DefaultFormat)
	v.SetDefault("query-timeout", model.DefaultQueryTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logdex", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := validateFormat(cfg.Format); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("invalid format %q (want text, json or yaml)", format)
}
