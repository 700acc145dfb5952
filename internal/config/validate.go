package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClient() error {
	switch c.Client.Transport {
	case TransportDBus, TransportX11, TransportWinMsg, TransportCFNotify:
	default:
		return fmt.Errorf("client.transport: unsupported value %q (want dbus, x11, winmsg, or cfnotify)", c.Client.Transport)
	}
	if strings.ContainsAny(c.Client.FriendlyName, "\r\n\x00") {
		return errors.New("client.friendly_name must be a single line")
	}
	if c.Client.Protocol < 1 {
		return errors.New("client.protocol must be positive")
	}
	if c.Client.CommandTimeoutMS < 0 {
		return errors.New("client.command_timeout_ms must be positive")
	}
	if c.Client.AttachTimeoutMS < 0 {
		return errors.New("client.attach_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.NotificationBuffer < 1 {
		return errors.New("daemon.notification_buffer must be at least 1")
	}
	if c.Daemon.MetricsBind != "" {
		if _, _, err := net.SplitHostPort(c.Daemon.MetricsBind); err != nil {
			return fmt.Errorf("daemon.metrics_bind: %w", err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
