package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeClient()
	c.normalizeX11()
	c.normalizeHost()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeClient() {
	c.Client.Transport = strings.ToLower(strings.TrimSpace(c.Client.Transport))
	if c.Client.Transport == "" {
		c.Client.Transport = DefaultTransport()
	}
	c.Client.FriendlyName = strings.TrimSpace(c.Client.FriendlyName)
	if c.Client.FriendlyName == "" {
		c.Client.FriendlyName = defaultFriendlyName
	}
	if c.Client.Protocol == 0 {
		c.Client.Protocol = defaultProtocol
	}
	if c.Client.CommandTimeoutMS == 0 {
		c.Client.CommandTimeoutMS = defaultCommandTimeoutMS
	}
	if c.Client.AttachTimeoutMS == 0 {
		c.Client.AttachTimeoutMS = defaultAttachTimeoutMS
	}
}

func (c *Config) normalizeX11() {
	c.X11.Display = strings.TrimSpace(c.X11.Display)
	if c.X11.Display == "" {
		if value, ok := os.LookupEnv("DISPLAY"); ok {
			c.X11.Display = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeHost() {
	c.Host.Executable = strings.TrimSpace(c.Host.Executable)
	if c.Host.Executable == "" {
		c.Host.Executable = defaultHostExecutable
	}
	c.Host.ProcessName = strings.TrimSpace(c.Host.ProcessName)
	if c.Host.ProcessName == "" {
		c.Host.ProcessName = defaultHostProcessName
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir
	}
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.NotificationBuffer == 0 {
		c.Daemon.NotificationBuffer = defaultNotificationBuffer
	}
	c.Daemon.MetricsBind = strings.TrimSpace(c.Daemon.MetricsBind)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
