// Package config provides configuration management for hookd.
// It uses koanf v2 to load configuration from YAML files and supports
// saving updated configuration (e.g. persisting credentials issued by the
// controller).
//
// Configuration is loaded from /etc/hookd/config.yaml by default. The file
// should have restricted permissions (0600) as it contains the node token
// and, when NATS is enabled, the NKey seed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/opsforge/hookd/internal/hooks"
)

// DefaultConfigPath is the default location of the hookd configuration file.
const DefaultConfigPath = "/etc/hookd/config.yaml"

// HookConfig configures one hook class.
type HookConfig struct {
	// Pattern is the glob selecting the class's scripts,
	// e.g. "/etc/hookd/prolog.d/*.sh". Empty disables the class.
	Pattern string `koanf:"pattern" yaml:"pattern"`

	// MaxWait is the per-script wall-clock budget in whole seconds.
	// Zero or unset means no limit.
	MaxWait int `koanf:"max_wait" yaml:"max_wait"`
}

// HealthCheckConfig configures the periodic node health-check hook class.
type HealthCheckConfig struct {
	// Pattern selects the health-check scripts. Empty disables the check.
	Pattern string `koanf:"pattern" yaml:"pattern"`

	// MaxWait is the per-script budget in whole seconds. Zero or unset
	// means no limit.
	MaxWait int `koanf:"max_wait" yaml:"max_wait"`

	// Cron is the schedule expression (standard 5-field cron or a
	// descriptor like "@every 5m"). Default: "@every 5m".
	Cron string `koanf:"cron" yaml:"cron"`
}

// Config holds the hookd configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// ControllerURL is the base URL of the job-management controller,
	// e.g. "https://controller.cluster.local". Required.
	ControllerURL string `koanf:"controller_url" yaml:"controller_url"`

	// NodeToken authenticates this node to the controller. Either this or
	// BootstrapToken must be set; registration fills it in.
	NodeToken string `koanf:"node_token" yaml:"node_token"`

	// BootstrapToken is a one-time registration token. On startup with no
	// NodeToken, the agent exchanges it for issued credentials and saves
	// them back to the config file.
	BootstrapToken string `koanf:"bootstrap_token" yaml:"bootstrap_token,omitempty"`

	// NodeName overrides the node identity reported to the controller and
	// exported to hook scripts. Defaults to the OS hostname.
	NodeName string `koanf:"node_name" yaml:"node_name"`

	// PollInterval is how often (in seconds) the agent polls the
	// controller for pending hook requests. Default: 60.
	PollInterval int `koanf:"poll_interval" yaml:"poll_interval"`

	// JitterSeconds is the maximum random jitter added to the poll
	// interval to avoid thundering-herd polling. Default: 15.
	JitterSeconds int `koanf:"jitter_seconds" yaml:"jitter_seconds"`

	// LogLevel controls agent log verbosity: debug, info, warn, error.
	// Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// DataDir holds agent state such as the pending-result queue.
	// Default: /var/lib/hookd.
	DataDir string `koanf:"data_dir" yaml:"data_dir"`

	// NATSServers is a comma-separated list of NATS server URLs. If set
	// (together with NATSNKeySeed), hook requests are pushed via NATS and
	// HTTP polling becomes the fallback.
	NATSServers string `koanf:"nats_servers" yaml:"nats_servers"`

	// NATSNKeySeed is the NKey seed for NATS authentication.
	NATSNKeySeed string `koanf:"nats_nkey_seed" yaml:"nats_nkey_seed"`

	// Prolog runs before a job starts on this node.
	Prolog HookConfig `koanf:"prolog" yaml:"prolog"`

	// Epilog runs after a job finishes on this node.
	Epilog HookConfig `koanf:"epilog" yaml:"epilog"`

	// HealthCheck runs periodically with no job context.
	HealthCheck HealthCheckConfig `koanf:"health_check" yaml:"health_check"`
}

// Validation errors returned by Load when required fields are missing.
var (
	ErrControllerURLRequired = errors.New("controller_url is required")
	ErrNodeTokenRequired     = errors.New("either node_token or bootstrap_token is required")
	ErrInvalidPollInterval   = errors.New("poll_interval must be positive")
)

// Load reads configuration from the specified YAML file path. It applies
// defaults for optional fields and validates required ones.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 60
	}
	if c.JitterSeconds == 0 {
		c.JitterSeconds = 15
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/hookd"
	}
	if c.HealthCheck.Cron == "" {
		c.HealthCheck.Cron = "@every 5m"
	}
}

// validate checks that required configuration fields are present and valid.
func (c *Config) validate() error {
	if c.ControllerURL == "" {
		return ErrControllerURLRequired
	}
	if c.NodeToken == "" && c.BootstrapToken == "" {
		return ErrNodeTokenRequired
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	return nil
}

// Save writes the configuration to the specified YAML file path. The file
// is created with 0600 permissions as it contains credentials.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// IsRegistered returns true if the node holds an issued node token.
func (c *Config) IsRegistered() bool {
	return c.NodeToken != ""
}

// NeedsRegistration returns true if the node has a bootstrap token but no
// issued credentials yet.
func (c *Config) NeedsRegistration() bool {
	return c.NodeToken == "" && c.BootstrapToken != ""
}

// NATSEnabled returns true if NATS push delivery is configured.
func (c *Config) NATSEnabled() bool {
	return c.NATSServers != "" && c.NATSNKeySeed != ""
}

// HookClasses maps the configured hook sections to runnable classes.
// A config max_wait of zero means no limit, which the supervisor expresses
// as a negative budget.
func (c *Config) HookClasses() []hooks.Class {
	return []hooks.Class{
		{Name: hooks.ClassProlog, Pattern: c.Prolog.Pattern, MaxWait: budget(c.Prolog.MaxWait)},
		{Name: hooks.ClassEpilog, Pattern: c.Epilog.Pattern, MaxWait: budget(c.Epilog.MaxWait)},
		{Name: hooks.ClassHealthCheck, Pattern: c.HealthCheck.Pattern, MaxWait: budget(c.HealthCheck.MaxWait)},
	}
}

func budget(maxWait int) int {
	if maxWait <= 0 {
		return -1
	}
	return maxWait
}
