package factory_test

import (
	"testing"

	"skylink/internal/config"
	"skylink/internal/logging"
	"skylink/internal/transport"
	"skylink/internal/transport/factory"
)

func TestNewSelectsConfiguredVariant(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		want      transport.Kind
		mode      transport.HandshakeMode
	}{
		{"dbus", config.TransportDBus, transport.KindDBus, transport.HandshakeCommand},
		{"x11", config.TransportX11, transport.KindX11, transport.HandshakeCommand},
		{"winmsg", config.TransportWinMsg, transport.KindWinMsg, transport.HandshakeNative},
		{"cfnotify", config.TransportCFNotify, transport.KindCFNotify, transport.HandshakeNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Client.Transport = tt.transport
			tr, err := factory.New(&cfg, logging.NewNop())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if tr.Kind() != tt.want {
				t.Fatalf("kind = %s, want %s", tr.Kind(), tt.want)
			}
			if tr.Handshake().Mode != tt.mode {
				t.Fatalf("handshake mode = %d, want %d", tr.Handshake().Mode, tt.mode)
			}
		})
	}
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Transport = "carrier-pigeon"
	if _, err := factory.New(&cfg, nil); err == nil {
		t.Fatal("expected error for unknown transport")
	}
	if _, err := factory.New(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
