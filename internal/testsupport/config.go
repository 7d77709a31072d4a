package testsupport

import (
	"path/filepath"
	"testing"

	"fieldsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Backoff is shortened so retry paths complete quickly, and connectivity
// probing through netlink is disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.BroadcastDir = filepath.Join(base, "broadcast")
	cfgVal.Paths.SocketPath = filepath.Join(base, "fieldsync.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Delivery.BaseDelayMS = 10
	cfgVal.Delivery.JitterMS = 0
	cfgVal.Connectivity.Netlink = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStoreDisabled forces the local store into degraded mode.
func WithStoreDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Disabled = true
	}
}

// WithRemote points the remote API at baseURL, typically an httptest server.
func WithRemote(baseURL, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.BaseURL = baseURL
		b.cfg.Remote.APIToken = token
	}
}

// WithBackoff overrides the retry budget and backoff.
func WithBackoff(maxRetries, baseDelayMS, jitterMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Delivery.MaxRetries = maxRetries
		b.cfg.Delivery.BaseDelayMS = baseDelayMS
		b.cfg.Delivery.JitterMS = jitterMS
	}
}

// WithAPIToken sets the daemon HTTP API bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
