package wire

import (
	"strconv"
	"strings"
)

// Format frames a command for the wire.
func Format(id int, text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	b.WriteByte('#')
	b.WriteString(strconv.Itoa(id))
	b.WriteByte(' ')
	b.WriteString(text)
	return b.String()
}

// ParseReply splits a "#<id> <rest>" frame. ok is false for anything that does
// not match the grammar exactly: no leading '#', an empty or non-decimal id, or
// no separating space.
func ParseReply(raw string) (id int, rest string, ok bool) {
	if !strings.HasPrefix(raw, "#") {
		return 0, "", false
	}
	head, rest, found := strings.Cut(raw[1:], " ")
	if !found || head == "" {
		return 0, "", false
	}
	for i := 0; i < len(head); i++ {
		if head[i] < '0' || head[i] > '9' {
			return 0, "", false
		}
	}
	id, err := strconv.Atoi(head)
	if err != nil {
		return 0, "", false
	}
	return id, rest, true
}

// LastInt returns the last whitespace-separated token of s as an integer, the
// way the host reports negotiated values ("PROTOCOL 7").
func LastInt(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
