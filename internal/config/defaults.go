package config

import "runtime"

const (
	defaultFriendlyName       = "skylink"
	defaultProtocol           = 5
	defaultCommandTimeoutMS   = 30000
	defaultAttachTimeoutMS    = 30000
	defaultHostExecutable     = "skype"
	defaultHostProcessName    = "skype"
	defaultRuntimeDir         = "~/.local/state/skylink"
	defaultLogDir             = "~/.local/state/skylink/logs"
	defaultNotificationBuffer = 256
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Transport names accepted in client.transport.
const (
	TransportDBus     = "dbus"
	TransportX11      = "x11"
	TransportWinMsg   = "winmsg"
	TransportCFNotify = "cfnotify"
)

// DefaultTransport returns the transport used when client.transport is unset.
func DefaultTransport() string {
	return defaultTransportFor(runtime.GOOS)
}

func defaultTransportFor(goos string) string {
	switch goos {
	case "windows":
		return TransportWinMsg
	case "darwin":
		return TransportCFNotify
	default:
		return TransportDBus
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Client: Client{
			Transport:        DefaultTransport(),
			FriendlyName:     defaultFriendlyName,
			RunOwnEventLoop:  true,
			Protocol:         defaultProtocol,
			CommandTimeoutMS: defaultCommandTimeoutMS,
			AttachTimeoutMS:  defaultAttachTimeoutMS,
		},
		Host: Host{
			Executable:  defaultHostExecutable,
			ProcessName: defaultHostProcessName,
		},
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir,
			LogDir:     defaultLogDir,
		},
		Daemon: Daemon{
			NotificationBuffer: defaultNotificationBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
