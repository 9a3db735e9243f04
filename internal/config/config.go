package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/karmakaze/quicklog/internal/security"
	"github.com/karmakaze/quicklog/pkg/cmdutil"
	"github.com/karmakaze/quicklog/pkg/fileutil"

	"github.com/spf13/viper"
)

const (
	// FileName is the config file name searched for in the default locations.
	FileName = "quickhook.yaml"

	// EnvPrefix prefixes every environment override, e.g. QUICKHOOK_TARGET_REF.
	EnvPrefix = "QUICKHOOK"

	DefaultPort            = 8954
	DefaultFullName        = "karmakaze/quicklog"
	DefaultRef             = "refs/heads/master"
	DefaultService         = "quicklog"
	DefaultCommandTimeout  = 10 * time.Minute
	DefaultMaxPayloadBytes = 1_000_000
)

// Target is the repository and ref a push must match to trigger a deploy.
type Target struct {
	FullName string `mapstructure:"full_name" yaml:"full_name"`
	Ref      string `mapstructure:"ref" yaml:"ref"`
}

// GitHub holds settings used only by the hook registration command.
type GitHub struct {
	Token      string `mapstructure:"token" yaml:"token,omitempty"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
}

// Config is the complete quickhook configuration.
type Config struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	Target             Target        `mapstructure:"target" yaml:"target"`
	Service            string        `mapstructure:"service" yaml:"service"`
	WorkDir            string        `mapstructure:"work_dir" yaml:"work_dir"`
	Commands           []string      `mapstructure:"commands" yaml:"commands"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	MaxPayloadBytes    int64         `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	LogFile            string        `mapstructure:"log_file" yaml:"log_file,omitempty"`
	HistoryDB          string        `mapstructure:"history_db" yaml:"history_db,omitempty"`
	GitHub             GitHub        `mapstructure:"github" yaml:"github"`
}

// DefaultCommands returns the deploy sequence for a service: pull with
// rebase, rebuild, restart the service under sudo.
func DefaultCommands(service string) []string {
	return []string{
		"git pull -r",
		"make rebuild",
		fmt.Sprintf("sudo service %s restart", service),
	}
}

// SetDefaults registers every key with its default so that environment
// overrides are picked up by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("target.full_name", DefaultFullName)
	v.SetDefault("target.ref", DefaultRef)
	v.SetDefault("service", DefaultService)
	v.SetDefault("work_dir", ".")
	v.SetDefault("commands", []string{})
	v.SetDefault("command_timeout", DefaultCommandTimeout)
	v.SetDefault("max_payload_bytes", DefaultMaxPayloadBytes)
	v.SetDefault("rate_limit_per_minute", 0)
	v.SetDefault("log_file", "")
	v.SetDefault("history_db", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.webhook_url", "")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FindConfigFile returns the first config file found in the default
// locations, or "" when there is none.
func FindConfigFile() string {
	return fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(FileName))
}

// Load reads configuration from path (optional), the environment and
// defaults, then validates it. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith is Load with a caller-supplied viper, so flags can be bound first.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errors := cfg.Validate(); len(errors) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errors, "\n"))
	}

	return &cfg, nil
}

// CommandLines returns the configured command sequence, or the default
// sequence for Service when none is configured.
func (c *Config) CommandLines() []string {
	if len(c.Commands) > 0 {
		return c.Commands
	}
	return DefaultCommands(c.Service)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []string {
	var errors []string

	if err := security.ValidateFullName(c.Target.FullName); err != nil {
		errors = append(errors, fmt.Sprintf("  - target.full_name: %v", err))
	}
	if err := security.ValidateRef(c.Target.Ref); err != nil {
		errors = append(errors, fmt.Sprintf("  - target.ref: %v", err))
	}

	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - port must be between 1 and 65535, got %d", c.Port))
	}

	if len(c.Commands) == 0 {
		if err := security.ValidateServiceName(c.Service); err != nil {
			errors = append(errors, fmt.Sprintf("  - service: %v", err))
		}
	}
	for i, line := range c.CommandLines() {
		if _, err := cmdutil.ParseCommandString(line); err != nil {
			errors = append(errors, fmt.Sprintf("  - commands[%d]: %v", i, err))
		}
	}

	if c.WorkDir == "" {
		errors = append(errors, "  - work_dir cannot be empty")
	} else if !fileutil.DirExists(c.WorkDir) {
		errors = append(errors, fmt.Sprintf("  - work_dir is not a directory: '%s'", c.WorkDir))
	}

	if c.CommandTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - command_timeout cannot be negative, got %s", c.CommandTimeout))
	}
	if c.MaxPayloadBytes <= 0 {
		errors = append(errors, fmt.Sprintf("  - max_payload_bytes must be positive, got %d", c.MaxPayloadBytes))
	}
	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("  - rate_limit_per_minute cannot be negative, got %d", c.RateLimitPerMinute))
	}

	return errors
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Commands = c.CommandLines()
	if out.GitHub.Token != "" {
		out.GitHub.Token = "***REDACTED***"
	}
	return &out
}
