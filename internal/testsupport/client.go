package testsupport

import (
	"testing"
	"time"

	"skylink/internal/client"
	"skylink/internal/config"
)

// NewClient builds a client for cfg around host. The client is closed when
// the test ends unless the caller hands it to something that closes it.
func NewClient(t testing.TB, cfg *config.Config, host *FakeHost) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		Transport:        host,
		FriendlyName:     cfg.Client.FriendlyName,
		Protocol:         cfg.Client.Protocol,
		CommandTimeout:   cfg.CommandTimeout(),
		AttachTimeout:    cfg.AttachTimeout(),
		DiscoverInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}
