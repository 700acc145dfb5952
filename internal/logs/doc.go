// Package logs reads the daemon log file for `skylink logs`.
//
// Tail returns the last lines of a file together with the offset to resume
// from, and Follow polls from that offset until its context ends. A missing
// file is treated as empty so the command works before the daemon first runs.
package logs
