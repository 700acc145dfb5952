package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"skylink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timeouts are short so failing tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Client.CommandTimeoutMS = 2000
	cfgVal.Client.AttachTimeoutMS = 2000
	cfgVal.Daemon.NotificationBuffer = 16

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithTransport overrides client.transport.
func WithTransport(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Client.Transport = kind
	}
}

// WithFriendlyName overrides client.friendly_name.
func WithFriendlyName(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Client.FriendlyName = name
	}
}

// WithTimeouts overrides the command and attach timeouts in milliseconds.
func WithTimeouts(commandMS, attachMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Client.CommandTimeoutMS = commandMS
		b.cfg.Client.AttachTimeoutMS = attachMS
	}
}

// WithNotificationBuffer overrides daemon.notification_buffer.
func WithNotificationBuffer(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.NotificationBuffer = n
	}
}

// WriteConfigFile encodes cfg as TOML into the test's temp directory and
// returns the path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "skylink.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// WithMetricsBind overrides daemon.metrics_bind.
func WithMetricsBind(bind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.MetricsBind = bind
	}
}
