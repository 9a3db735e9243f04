package main

import (
	"fmt"
	"strconv"

	"github.com/karmakaze/quicklog/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFlags maps command-line flags onto config keys.
var configFlags = map[string]string{
	"host": "host",
	"log":  "log_file",
	"db":   "history_db",
}

// newViper returns a viper with defaults, environment and any of cmd's
// flags bound.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper()
	for flag, key := range configFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return v, nil
}

// resolveConfigFile returns --config or the first file found in the default
// locations. "" means no file.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return config.FindConfigFile()
}

// loadConfig loads the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, "", err
	}
	path := resolveConfigFile()
	cfg, err := config.LoadWith(v, path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// parsePort parses the optional positional port argument.
func parsePort(args []string) (port int, ok bool, err error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	port, err = strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return 0, false, fmt.Errorf("invalid port %q: must be a number between 1 and 65535", args[0])
	}
	return port, true, nil
}
