package main

import (
	"encoding/json"
	"io"
)

// writeJSON encodes v as indented JSON for one-shot command output.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONLine encodes v on a single line so streamed output stays one
// record per line.
func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
