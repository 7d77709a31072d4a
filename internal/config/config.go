package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	LogDir       string `toml:"log_dir"`
	BroadcastDir string `toml:"broadcast_dir"`
	SocketPath   string `toml:"socket_path"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// Store contains configuration for the durable local store.
type Store struct {
	// Disabled forces the store into degraded mode, the equivalent of a
	// browser profile without persistent storage.
	Disabled      bool `toml:"disabled"`
	BusyTimeoutMS int  `toml:"busy_timeout_ms"`
}

// Delivery contains retry and backoff settings for the queue processor.
type Delivery struct {
	MaxRetries            int `toml:"max_retries"`
	BaseDelayMS           int `toml:"base_delay_ms"`
	JitterMS              int `toml:"jitter_ms"`
	SendingTimeoutSeconds int `toml:"sending_timeout_seconds"`
}

// Sync contains orchestrator trigger settings.
type Sync struct {
	Tag                    string `toml:"tag"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	BackgroundSync         bool   `toml:"background_sync"`
	BroadcastRetentionSecs int    `toml:"broadcast_retention_seconds"`
}

// Remote contains connection settings for the remote authority.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	HealthPath     string `toml:"health_path"`
}

// Connectivity contains settings for online/offline detection.
type Connectivity struct {
	ProbeIntervalSeconds int  `toml:"probe_interval_seconds"`
	Netlink              bool `toml:"netlink"`
}

// Conflict names the entity fields the conflict resolver compares.
type Conflict struct {
	LocalModifiedAtKey string `toml:"local_modified_at_key"`
	ServerUpdatedAtKey string `toml:"server_updated_at_key"`
	ServerUpdatedByKey string `toml:"server_updated_by_key"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ItemFailed     bool   `toml:"item_failed"`
	Conflicts      bool   `toml:"conflicts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for fieldsync.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and broadcast directories plus the API bind address
//   - Store: local store degradation and SQLite busy timeout
//   - Delivery: retry budget and backoff for queued items
//   - Sync: background sync tag and timer trigger
//   - Remote: remote API base URL and credentials
//   - Connectivity: reconnect detection
//   - Conflict: entity timestamp field names
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Delivery      Delivery      `toml:"delivery"`
	Sync          Sync          `toml:"sync"`
	Remote        Remote        `toml:"remote"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Conflict      Conflict      `toml:"conflict"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fieldsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.BroadcastDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the local store database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "fieldsync.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "fieldsync.lock")
}

// BaseDelay returns the delivery backoff base as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Delivery.BaseDelayMS) * time.Millisecond
}

// Jitter returns the delivery backoff jitter bound as a duration.
func (c *Config) Jitter() time.Duration {
	return time.Duration(c.Delivery.JitterMS) * time.Millisecond
}

// SendingTimeout returns how long an item may stay in sending before it is reclaimed.
func (c *Config) SendingTimeout() time.Duration {
	return time.Duration(c.Delivery.SendingTimeoutSeconds) * time.Second
}

// PollInterval returns the orchestrator timer trigger interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.ProbeIntervalSeconds) * time.Second
}

// RemoteTimeout returns the per-request timeout for the remote API.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// BroadcastRetention returns how long broadcast message files are kept on disk.
func (c *Config) BroadcastRetention() time.Duration {
	return time.Duration(c.Sync.BroadcastRetentionSecs) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
