package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeDelivery()
	c.normalizeSync()
	c.normalizeRemote()
	c.normalizeConnectivity()
	c.normalizeConflict()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BroadcastDir) == "" {
		c.Paths.BroadcastDir = filepath.Join(c.Paths.DataDir, defaultBroadcastDirName)
	}
	if c.Paths.BroadcastDir, err = expandPath(c.Paths.BroadcastDir); err != nil {
		return fmt.Errorf("paths.broadcast_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, "fieldsync.sock")
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if value, ok := os.LookupEnv("FIELDSYNC_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeStore() {
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) normalizeDelivery() {
	if c.Delivery.SendingTimeoutSeconds <= 0 {
		c.Delivery.SendingTimeoutSeconds = defaultSendingTimeoutSeconds
	}
}

func (c *Config) normalizeSync() {
	c.Sync.Tag = strings.TrimSpace(c.Sync.Tag)
	if c.Sync.Tag == "" {
		c.Sync.Tag = defaultSyncTag
	}
	if c.Sync.BroadcastRetentionSecs <= 0 {
		c.Sync.BroadcastRetentionSecs = defaultBroadcastRetentionSecs
	}
}

func (c *Config) normalizeRemote() {
	if value, ok := os.LookupEnv("FIELDSYNC_REMOTE_URL"); ok && strings.TrimSpace(c.Remote.BaseURL) == "" {
		c.Remote.BaseURL = value
	}
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if value, ok := os.LookupEnv("FIELDSYNC_REMOTE_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Remote.APIToken = value
	}
	c.Remote.APIToken = strings.TrimSpace(c.Remote.APIToken)
	c.Remote.HealthPath = strings.TrimSpace(c.Remote.HealthPath)
	if c.Remote.HealthPath == "" {
		c.Remote.HealthPath = defaultRemoteHealthPath
	}
	if !strings.HasPrefix(c.Remote.HealthPath, "/") {
		c.Remote.HealthPath = "/" + c.Remote.HealthPath
	}
}

func (c *Config) normalizeConnectivity() {
	if c.Connectivity.ProbeIntervalSeconds <= 0 {
		c.Connectivity.ProbeIntervalSeconds = defaultProbeIntervalSeconds
	}
}

func (c *Config) normalizeConflict() {
	c.Conflict.LocalModifiedAtKey = strings.TrimSpace(c.Conflict.LocalModifiedAtKey)
	if c.Conflict.LocalModifiedAtKey == "" {
		c.Conflict.LocalModifiedAtKey = defaultLocalModifiedAtKey
	}
	c.Conflict.ServerUpdatedAtKey = strings.TrimSpace(c.Conflict.ServerUpdatedAtKey)
	if c.Conflict.ServerUpdatedAtKey == "" {
		c.Conflict.ServerUpdatedAtKey = defaultServerUpdatedAtKey
	}
	c.Conflict.ServerUpdatedByKey = strings.TrimSpace(c.Conflict.ServerUpdatedByKey)
	if c.Conflict.ServerUpdatedByKey == "" {
		c.Conflict.ServerUpdatedByKey = defaultServerUpdatedByKey
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
