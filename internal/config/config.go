// Package config handles loading and managing configuration for fragsync.
// It supports loading from YAML files, environment variables, and hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jayphen/fragsync/internal/logging"
	"github.com/Jayphen/fragsync/internal/types"
)

// Config holds all configuration settings for fragsync.
type Config struct {
	// Workspace selects where task fragments are stored
	Workspace WorkspaceConfig `yaml:"workspace"`

	// RedisURL enables cross-process change notifications when set
	RedisURL string `yaml:"redis_url"`

	// RequestTimeout bounds every backend and tracker call made on behalf of a command
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PropagationTimeout bounds a single background status propagation
	PropagationTimeout time.Duration `yaml:"propagation_timeout"`

	Logging LoggingConfig `yaml:"logging"`
}

// WorkspaceConfig identifies the workspace backend and the active workspace.
type WorkspaceConfig struct {
	// BackendURL is the workspace backend base URL. A redis:// URL selects
	// the Redis-backed store instead of the HTTP API.
	BackendURL string `yaml:"backend_url"`

	// APIToken is sent as a bearer token to the HTTP backend
	APIToken string `yaml:"api_token"`

	// ID is the active workspace
	ID string `yaml:"id"`

	// TaskFragmentType is the fragment type designated for tasks
	TaskFragmentType string `yaml:"task_fragment_type"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	Console    bool   `yaml:"console"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default configuration values
const (
	DefaultRequestTimeout     = 15 * time.Second
	DefaultPropagationTimeout = 30 * time.Second
	DefaultTaskFragmentType   = "task"
	DefaultLogLevel           = "info"
)

var (
	globalConfig *Config
	configOnce   sync.Once
	configErr    error
)

// Get returns the global configuration, loading it if necessary.
// This function is safe for concurrent use.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, configErr = Load()
	})
	return globalConfig, configErr
}

// Load reads configuration from files and environment variables.
// Priority (highest to lowest):
// 1. Environment variables
// 2. ~/.config/fragsync/config.yaml
// 3. ~/.fragsync.yaml
// 4. Hardcoded defaults
func Load() (*Config, error) {
	cfg := &Config{
		Workspace: WorkspaceConfig{
			TaskFragmentType: DefaultTaskFragmentType,
		},
		RequestTimeout:     DefaultRequestTimeout,
		PropagationTimeout: DefaultPropagationTimeout,
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Compress: true,
		},
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		legacyPath := filepath.Join(homeDir, ".fragsync.yaml")
		if err := loadFile(legacyPath, cfg); err != nil {
			return nil, err
		}

		xdgPath := filepath.Join(homeDir, ".config", "fragsync", "config.yaml")
		if err := loadFile(xdgPath, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// loadFile merges a YAML file into cfg. A missing file is not an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if val := os.Getenv("FRAGSYNC_BACKEND_URL"); val != "" {
		c.Workspace.BackendURL = val
	}
	if val := os.Getenv("FRAGSYNC_API_TOKEN"); val != "" {
		c.Workspace.APIToken = val
	}
	if val := os.Getenv("FRAGSYNC_WORKSPACE"); val != "" {
		c.Workspace.ID = val
	}
	if val := os.Getenv("FRAGSYNC_TASK_TYPE"); val != "" {
		c.Workspace.TaskFragmentType = val
	}

	// Redis URL (support both REDIS_URL and FRAGSYNC_REDIS_URL)
	if val := os.Getenv("FRAGSYNC_REDIS_URL"); val != "" {
		c.RedisURL = val
	} else if val := os.Getenv("REDIS_URL"); val != "" {
		c.RedisURL = val
	}

	if d, ok := envDuration("FRAGSYNC_REQUEST_TIMEOUT"); ok {
		c.RequestTimeout = d
	}
	if d, ok := envDuration("FRAGSYNC_PROPAGATION_TIMEOUT"); ok {
		c.PropagationTimeout = d
	}

	if val := os.Getenv("FRAGSYNC_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("FRAGSYNC_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
}

// envDuration reads a Go duration, or plain seconds for convenience.
func envDuration(key string) (time.Duration, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// ActiveWorkspace returns the configured workspace, or ErrNotConfigured
// when the workspace ID or task fragment type is missing.
func (c *Config) ActiveWorkspace() (types.Workspace, error) {
	ws := types.Workspace{ID: c.Workspace.ID, TaskTypeID: c.Workspace.TaskFragmentType}
	if !ws.IsConfigured() {
		return types.Workspace{}, fmt.Errorf("%w: workspace id and task fragment type must be set", types.ErrNotConfigured)
	}
	return ws, nil
}

// LogConfig converts the logging section for logging.InitFromLogConfig.
func (c *Config) LogConfig() logging.LoggingConfig {
	return logging.LoggingConfig{
		Level:      c.Logging.Level,
		FilePath:   c.Logging.File,
		JSON:       c.Logging.JSON,
		Console:    c.Logging.Console,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// Reload forces a reload of the configuration.
// This resets the global singleton and returns the newly loaded config.
func Reload() (*Config, error) {
	configOnce = sync.Once{}
	return Get()
}

// Dir returns fragsync's configuration directory.
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "fragsync")
}

// ConfigPaths returns the paths where config files are searched.
func ConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".config", "fragsync", "config.yaml"),
		filepath.Join(homeDir, ".fragsync.yaml"),
	}
}

// WriteExample writes an example configuration file to the specified path.
func WriteExample(path string) error {
	example := `# fragsync configuration file
# Place this file at ~/.config/fragsync/config.yaml or ~/.fragsync.yaml

workspace:
  # Workspace backend (https://... for the HTTP API, redis://... for a local Redis store)
  backend_url: ""
  api_token: ""
  # Active workspace and the fragment type used for tasks
  id: ""
  task_fragment_type: task

# Redis URL for change notifications between fragsync processes (optional)
redis_url: ""

# Timeouts (Go duration format, e.g., "15s", "1m")
request_timeout: 15s
propagation_timeout: 30s

logging:
  level: info
  file: ""
  json: false
`
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(example), 0644)
}
