// Package config loads bookout configuration from defaults, an optional
// config.yaml, and BOOKOUT_* environment variables, with hot-reload support.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Validate when username or password
// resolve to empty strings.
var ErrMissingCredentials = errors.New("portal credentials not configured")

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("portal", defaults.Portal)
	viper.SetDefault("browser", defaults.Browser)
	viper.SetDefault("run", defaults.Run)

	// Environment variables with BOOKOUT_ prefix, e.g.
	// BOOKOUT_RUN_CONCURRENT_CONTEXTS, BOOKOUT_BROWSER_HEADLESS.
	viper.SetEnvPrefix("BOOKOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.bookout")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Credentials returns the resolved portal username and password.
func (c *Config) Credentials() (username, password string) {
	return ResolveEnvVars(c.Portal.Username), ResolveEnvVars(c.Portal.Password)
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	user, pass := c.Credentials()
	if user == "" || pass == "" {
		return ErrMissingCredentials
	}
	if c.Portal.LoginURL == "" || c.Portal.InventoryURL == "" {
		return errors.New("portal URLs not configured")
	}
	if c.Run.ConcurrentContexts < 1 {
		return errors.New("run.concurrent_contexts must be at least 1")
	}
	if c.Run.MaxRetries < 0 {
		return errors.New("run.max_retries must not be negative")
	}
	return nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# bookout configuration
# Credentials use ${ENV_VAR} syntax to reference environment variables.
# Set these in your shell: export BOOKOUT_USERNAME=xxx BOOKOUT_PASSWORD=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
