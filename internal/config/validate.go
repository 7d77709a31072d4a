package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.MaxRetries < 0 {
		return errors.New("delivery.max_retries must be zero or positive")
	}
	if c.Delivery.BaseDelayMS <= 0 {
		return errors.New("delivery.base_delay_ms must be positive")
	}
	if c.Delivery.JitterMS < 0 {
		return errors.New("delivery.jitter_ms must be zero or positive")
	}
	// 2^retryCount must not overflow a time.Duration at the largest retry.
	if c.Delivery.MaxRetries > 30 {
		return errors.New("delivery.max_retries must be at most 30")
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.poll_interval_seconds":          c.Sync.PollIntervalSeconds,
		"connectivity.probe_interval_seconds": c.Connectivity.ProbeIntervalSeconds,
		"notifications.request_timeout":       c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if strings.ContainsAny(c.Sync.Tag, " \t\n") {
		return errors.New("sync.tag must not contain whitespace")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if c.Remote.TimeoutSeconds <= 0 {
		return errors.New("remote.timeout_seconds must be positive")
	}
	if c.Remote.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("remote.base_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("remote.base_url must include a host")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
