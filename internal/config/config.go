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

// Client contains the control-channel client settings.
type Client struct {
	Transport        string `toml:"transport"`
	FriendlyName     string `toml:"friendly_name"`
	RunOwnEventLoop  bool   `toml:"run_own_event_loop"`
	Protocol         int    `toml:"protocol"`
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
	AttachTimeoutMS  int    `toml:"attach_timeout_ms"`
}

// DBus contains settings for the bus-call transport.
type DBus struct {
	UseSystemBus bool `toml:"use_system_bus"`
}

// X11 contains settings for the X client-message transport.
type X11 struct {
	// Display overrides $DISPLAY. Empty means use the environment.
	Display string `toml:"display"`
}

// Host describes the controlled desktop application process.
type Host struct {
	Executable  string `toml:"executable"`
	ProcessName string `toml:"process_name"`
}

// Paths contains directory configuration.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	LogDir     string `toml:"log_dir"`
}

// Daemon contains settings for the long-running attachment daemon.
type Daemon struct {
	NotificationBuffer int    `toml:"notification_buffer"`
	MetricsBind        string `toml:"metrics_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for skylink.
//
// Configuration sections by subsystem:
//   - Client: transport choice, identity, protocol and timeouts
//   - DBus / X11: per-transport knobs
//   - Host: host application executable for launch and shutdown
//   - Paths: runtime (socket, lock) and log directories
//   - Daemon: notification ring size and metrics endpoint
//   - Logging: log format and level
type Config struct {
	Client  Client  `toml:"client"`
	DBus    DBus    `toml:"dbus"`
	X11     X11     `toml:"x11"`
	Host    Host    `toml:"host"`
	Paths   Paths   `toml:"paths"`
	Daemon  Daemon  `toml:"daemon"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/skylink/config.toml")
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
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
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

	projectPath, err := filepath.Abs("skylink.toml")
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

// EnsureDirectories creates the runtime and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RuntimeDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is the daemon's JSON-RPC Unix socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "skylink.sock")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "skylink.lock")
}

// PIDPath records the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "skylink.pid")
}

// LogPath is the daemon log file written alongside stderr output.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "skylink.log")
}

// LaunchLockPath serializes host application launches.
func (c *Config) LaunchLockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "host-launch.lock")
}

// CommandTimeout is the default wait for a blocking command reply.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Client.CommandTimeoutMS) * time.Millisecond
}

// AttachTimeout is the default wait for an attach handshake.
func (c *Config) AttachTimeout() time.Duration {
	return time.Duration(c.Client.AttachTimeoutMS) * time.Millisecond
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

// Encode renders the config as TOML, used by `skylink config show`.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
