package winmsg

import (
	"testing"

	"skylink/internal/attach"
)

func TestPeerTracker(t *testing.T) {
	var p peerTracker
	p.status = attach.Unknown

	steps := []struct {
		name   string
		peer   uintptr
		status attach.Status
		want   peerVerdict
		after  uintptr
	}{
		{"pending before success", 0, attach.PendingAuthorization, verdictReport, 0},
		{"success binds peer", 0x10, attach.Success, verdictReport, 0x10},
		{"same peer again", 0x10, attach.Success, verdictReport, 0x10},
		{"second peer ignored", 0x20, attach.Success, verdictSecondPeer, 0x10},
		{"pending after success ignored", 0x10, attach.PendingAuthorization, verdictLatePending, 0x10},
		{"host gone clears peer", 0x10, attach.NotAvailable, verdictReport, 0},
		{"new host may bind", 0x20, attach.Success, verdictReport, 0x20},
		{"available clears peer", 0, attach.Available, verdictReport, 0},
	}
	for _, step := range steps {
		if got := p.observe(step.peer, step.status); got != step.want {
			t.Fatalf("%s: verdict %d, want %d", step.name, got, step.want)
		}
		if p.peer != step.after {
			t.Fatalf("%s: peer %#x, want %#x", step.name, p.peer, step.after)
		}
	}
}

func TestPeerTrackerAccepts(t *testing.T) {
	var p peerTracker
	if p.accepts(0) {
		t.Fatal("unattached tracker must reject every sender")
	}
	p.observe(0x42, attach.Success)
	if !p.accepts(0x42) || p.accepts(0x43) {
		t.Fatal("only the attached host window may deliver frames")
	}
}

func TestCopyDataEncoding(t *testing.T) {
	data := encodeCopyData("#3 PING")
	if len(data) != 8 || data[7] != 0 {
		t.Fatalf("expected NUL-terminated block, got %q", data)
	}
	if got := decodeCopyData(data); got != "#3 PING" {
		t.Fatalf("decode = %q", got)
	}
	if got := decodeCopyData([]byte("PONG")); got != "PONG" {
		t.Fatalf("unterminated decode = %q", got)
	}
	if got := decodeCopyData([]byte{'a', 0xff, 0}); got != "a�" {
		t.Fatalf("invalid UTF-8 not replaced: %q", got)
	}
}
