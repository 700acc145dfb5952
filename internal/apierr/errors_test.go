package apierr

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrTransportSendFailure, "dbus", "invoke", "post frame", cause)

	if !errors.Is(err, ErrTransportSendFailure) {
		t.Fatalf("expected marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
	if got := err.Error(); got != "transport send failure: dbus: invoke: post frame: connection reset" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestWrapWithoutCauseOrDetail(t *testing.T) {
	err := Wrap(ErrAttachTimeout, "", " ", "", nil)
	if got := err.Error(); got != "attach timeout: control channel failure" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(Wrap(nil, "x11", "", "", nil), ErrTransportUnavailable) {
		t.Fatal("expected nil marker to default to transport unavailable")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Wrap(ErrCommandTimeout, "client", "send", "", nil), true},
		{Wrap(ErrAttachRefused, "client", "attach", "", nil), true},
		{Wrap(ErrIDConflict, "correlator", "register", "", nil), false},
		{ErrClosed, false},
		{errors.New("other"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestHint(t *testing.T) {
	if Hint(nil) != "" {
		t.Fatal("expected empty hint for nil")
	}
	if !strings.Contains(Hint(Wrap(ErrTransportUnavailable, "", "", "", nil)), "host start") {
		t.Fatal("expected launch hint")
	}
	if Hint(&HostError{Code: 2, Text: "Unknown command"}) == "" {
		t.Fatal("expected hint for host error")
	}
}

func TestParseHostError(t *testing.T) {
	cases := []struct {
		reply string
		ok    bool
		code  int
		text  string
	}{
		{"ERROR 2 Unknown command", true, 2, "Unknown command"},
		{"ERROR 68", true, 68, ""},
		{"ERROR", true, 0, ""},
		{"ERROR bad", true, 0, "bad"},
		{"ERRORS 1", false, 0, ""},
		{"PROTOCOL 7", false, 0, ""},
	}
	for _, tc := range cases {
		got, ok := ParseHostError(tc.reply)
		if ok != tc.ok {
			t.Fatalf("%q: ok = %v, want %v", tc.reply, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if got.Code != tc.code || got.Text != tc.text {
			t.Fatalf("%q: got %+v", tc.reply, got)
		}
	}
}
