//go:build !darwin || !cgo

package cfnotify

import (
	"errors"
	"testing"
	"time"

	"skylink/internal/apierr"
	"skylink/internal/transport"
)

func TestUnavailableWithoutBridge(t *testing.T) {
	tr := New(Options{RunOwnEventLoop: true})
	var _ transport.Pumper = tr
	if err := tr.Open(t.Context(), nil); !errors.Is(err, apierr.ErrTransportUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if tr.Pump(time.Millisecond) {
		t.Fatal("stub must not pump")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
