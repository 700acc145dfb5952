package deps

import (
	"os"
	"path/filepath"
	"testing"

	"skylink/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("unexpected status for present binary: %+v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %+v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %+v", results[2])
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %+v", missing)
	}
}

func TestHostRequirements(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		systemBus bool
		want      int
	}{
		{name: "session bus", transport: config.TransportDBus, want: 2},
		{name: "system bus", transport: config.TransportDBus, systemBus: true, want: 1},
		{name: "x11", transport: config.TransportX11, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Host.Executable = "skype"
			cfg.Client.Transport = tt.transport
			cfg.DBus.UseSystemBus = tt.systemBus
			reqs := HostRequirements(&cfg)
			if len(reqs) != tt.want {
				t.Fatalf("expected %d requirements, got %+v", tt.want, reqs)
			}
			if reqs[0].Command != "skype" || reqs[0].Optional {
				t.Fatalf("unexpected host requirement %+v", reqs[0])
			}
		})
	}
}
