package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fieldsync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FIELDSYNC_REMOTE_TOKEN", "")
	t.Setenv("FIELDSYNC_API_TOKEN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "fieldsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.BroadcastDir != filepath.Join(wantData, "broadcast") {
		t.Fatalf("unexpected broadcast dir: %q", cfg.Paths.BroadcastDir)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "fieldsync.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7531" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Delivery.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.Delivery.MaxRetries)
	}
	if cfg.BaseDelay() != time.Second {
		t.Fatalf("expected base delay 1s, got %s", cfg.BaseDelay())
	}
	if cfg.Jitter() != 500*time.Millisecond {
		t.Fatalf("expected jitter 500ms, got %s", cfg.Jitter())
	}
	if cfg.Sync.Tag != "fieldsync-queue" {
		t.Fatalf("unexpected sync tag: %q", cfg.Sync.Tag)
	}
	if !cfg.Sync.BackgroundSync {
		t.Fatal("expected background sync enabled by default")
	}
	if cfg.Store.Disabled {
		t.Fatal("expected store enabled by default")
	}
	if cfg.Conflict.ServerUpdatedAtKey != "updatedAt" {
		t.Fatalf("unexpected conflict key: %q", cfg.Conflict.ServerUpdatedAtKey)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.BroadcastDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fieldsync.toml")
	t.Setenv("FIELDSYNC_REMOTE_TOKEN", "")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Delivery struct {
			MaxRetries  int `toml:"max_retries"`
			BaseDelayMS int `toml:"base_delay_ms"`
			JitterMS    int `toml:"jitter_ms"`
		} `toml:"delivery"`
		Remote struct {
			BaseURL  string `toml:"base_url"`
			APIToken string `toml:"api_token"`
		} `toml:"remote"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Delivery.MaxRetries = 3
	custom.Delivery.BaseDelayMS = 250
	custom.Delivery.JitterMS = 0
	custom.Remote.BaseURL = "https://dispatch.example.com/api/"
	custom.Remote.APIToken = "file-token"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Delivery.MaxRetries != 3 {
		t.Fatalf("expected max retries 3, got %d", cfg.Delivery.MaxRetries)
	}
	if cfg.BaseDelay() != 250*time.Millisecond {
		t.Fatalf("expected base delay 250ms, got %s", cfg.BaseDelay())
	}
	if cfg.Jitter() != 0 {
		t.Fatalf("expected zero jitter, got %s", cfg.Jitter())
	}
	if cfg.Remote.BaseURL != "https://dispatch.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIToken != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.Remote.APIToken)
	}
	if cfg.Paths.LogDir != filepath.Join(tempDir, "data", "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
}

func TestEnvVarOverridesConfigFileForTokens(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fieldsync.toml")

	contents := "[paths]\napi_token = \"file-api\"\n\n[remote]\napi_token = \"file-remote\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FIELDSYNC_API_TOKEN", "env-api")
	t.Setenv("FIELDSYNC_REMOTE_TOKEN", "env-remote")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "env-api" {
		t.Errorf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Remote.APIToken != "env-remote" {
		t.Errorf("expected remote token from env, got %q", cfg.Remote.APIToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "max_retries = 5") {
		t.Fatalf("sample config missing delivery defaults: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "fieldsync") {
		t.Fatalf("expected data dir to contain fieldsync, got %q", cfg.Paths.DataDir)
	}
	if cfg.Delivery.BaseDelayMS != 1000 || cfg.Delivery.JitterMS != 500 {
		t.Fatalf("unexpected sample backoff: %+v", cfg.Delivery)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "negative retries",
			mutate: func(c *config.Config) { c.Delivery.MaxRetries = -1 },
			want:   "delivery.max_retries",
		},
		{
			name:   "zero base delay",
			mutate: func(c *config.Config) { c.Delivery.BaseDelayMS = 0 },
			want:   "delivery.base_delay_ms",
		},
		{
			name:   "negative jitter",
			mutate: func(c *config.Config) { c.Delivery.JitterMS = -5 },
			want:   "delivery.jitter_ms",
		},
		{
			name:   "zero poll interval",
			mutate: func(c *config.Config) { c.Sync.PollIntervalSeconds = 0 },
			want:   "sync.poll_interval_seconds",
		},
		{
			name:   "bad remote scheme",
			mutate: func(c *config.Config) { c.Remote.BaseURL = "ftp://example.com" },
			want:   "remote.base_url",
		},
		{
			name:   "bad log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
