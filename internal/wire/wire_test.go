package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	if got := Format(0, "PROTOCOL 5"); got != "#0 PROTOCOL 5" {
		t.Fatalf("unexpected frame %q", got)
	}
	if got := Format(12, ""); got != "#12 " {
		t.Fatalf("unexpected frame %q", got)
	}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		raw  string
		ok   bool
		id   int
		rest string
	}{
		{"#3 PROTOCOL 7", true, 3, "PROTOCOL 7"},
		{"#0 ", true, 0, ""},
		{"#10 OK", true, 10, "OK"},
		{"#3", false, 0, ""},
		{"# OK", false, 0, ""},
		{"#x1 OK", false, 0, ""},
		{"#-1 OK", false, 0, ""},
		{"USER echo123 ONLINESTATUS ONLINE", false, 0, ""},
		{"", false, 0, ""},
	}
	for _, tc := range cases {
		id, rest, ok := ParseReply(tc.raw)
		if ok != tc.ok || id != tc.id || rest != tc.rest {
			t.Errorf("ParseReply(%q) = (%d, %q, %v), want (%d, %q, %v)", tc.raw, id, rest, ok, tc.id, tc.rest, tc.ok)
		}
	}
}

func TestLastInt(t *testing.T) {
	if n, ok := LastInt("PROTOCOL 7"); !ok || n != 7 {
		t.Fatalf("got %d %v", n, ok)
	}
	if _, ok := LastInt("PROTOCOL"); ok {
		t.Fatal("expected failure for non-numeric token")
	}
	if _, ok := LastInt("   "); ok {
		t.Fatal("expected failure for empty input")
	}
}

func TestChunkRoundTrip41Bytes(t *testing.T) {
	text := strings.Repeat("a", 20) + strings.Repeat("b", 20) + "c"
	if len(text) != 41 {
		t.Fatalf("fixture length %d", len(text))
	}

	chunks := Chunk(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	payloads := []int{}
	for _, c := range chunks {
		payloads = append(payloads, len(bytes.TrimRight(c, "\x00")))
	}
	if payloads[0] != 20 || payloads[1] != 20 || payloads[2] != 1 {
		t.Fatalf("unexpected payload sizes %v", payloads)
	}

	var r Reassembler
	var got string
	for i, c := range chunks {
		frame, done, err := r.Feed(c, i == 0)
		if err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
		if done != (i == len(chunks)-1) {
			t.Fatalf("chunk %d: done=%v", i, done)
		}
		got = frame
	}
	if got != text {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestChunkExactMultipleEndsWithTerminatorChunk(t *testing.T) {
	text := strings.Repeat("x", 40)
	chunks := Chunk(text)
	if len(chunks) != 3 || len(chunks[2]) != 1 || chunks[2][0] != 0 {
		t.Fatalf("expected trailing NUL chunk, got %d chunks", len(chunks))
	}

	var r Reassembler
	for i, c := range chunks {
		frame, done, err := r.Feed(c, i == 0)
		if err != nil {
			t.Fatal(err)
		}
		if done && frame != text {
			t.Fatalf("unexpected frame %q", frame)
		}
	}
}

func TestReassemblerPaddedFinalChunk(t *testing.T) {
	var r Reassembler
	padded := make([]byte, ChunkSize)
	copy(padded, "#1 OK")
	frame, done, err := r.Feed(padded, true)
	if err != nil || !done || frame != "#1 OK" {
		t.Fatalf("got %q done=%v err=%v", frame, done, err)
	}
}

func TestReassemblerOrphanAndRestart(t *testing.T) {
	var r Reassembler
	if _, _, err := r.Feed([]byte("tail\x00"), false); !errors.Is(err, ErrOrphanChunk) {
		t.Fatalf("expected orphan error, got %v", err)
	}

	if _, done, _ := r.Feed([]byte(strings.Repeat("z", 20)), true); done {
		t.Fatal("full chunk should not complete a frame")
	}
	frame, done, err := r.Feed([]byte("fresh\x00"), true)
	if err != nil || !done || frame != "fresh" {
		t.Fatalf("begin chunk should reset partial frame, got %q done=%v err=%v", frame, done, err)
	}
}

func TestDecodeReplacesInvalidUTF8(t *testing.T) {
	got := Decode([]byte{'o', 'k', 0xff})
	if got != "ok�" {
		t.Fatalf("unexpected decode %q", got)
	}
	if Decode([]byte("héllo")) != "héllo" {
		t.Fatal("valid utf-8 should pass through")
	}
}
