package apierr

import (
	"fmt"
	"strconv"
	"strings"
)

// HostError is a command rejected by the host with an "ERROR <code> <text>"
// reply, or a reply that did not carry the expected prefix (Code 0).
type HostError struct {
	Code    int
	Text    string
	Command string
}

func (e *HostError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("host error %d: %s (command %q)", e.Code, e.Text, e.Command)
	}
	return fmt.Sprintf("host error %d: %s", e.Code, e.Text)
}

// ParseHostError recognizes an "ERROR <code> <text>" reply. The code defaults
// to 0 when it is missing or not numeric.
func ParseHostError(reply string) (*HostError, bool) {
	if reply != "ERROR" && !strings.HasPrefix(reply, "ERROR ") {
		return nil, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(reply, "ERROR"))
	codeText, text, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil {
		return &HostError{Text: rest}, true
	}
	return &HostError{Code: code, Text: strings.TrimSpace(text)}, true
}
