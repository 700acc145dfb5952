package transport

import "testing"

func TestParseKind(t *testing.T) {
	for _, name := range []string{"dbus", "x11", "winmsg", "cfnotify"} {
		k, ok := ParseKind(name)
		if !ok || string(k) != name {
			t.Fatalf("ParseKind(%q) = %q, %v", name, k, ok)
		}
	}
	if _, ok := ParseKind("carbon"); ok {
		t.Fatal("expected unknown kind to be rejected")
	}
}
