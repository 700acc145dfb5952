// Package daemon keeps one attached client alive for other processes.
//
// It wires configuration, the control-channel client and the optional metrics
// endpoint into a single lifecycle with flock-based locking so only one
// instance holds the host attachment. Notifications from the host are kept in
// a bounded, sequence-numbered buffer that CLI commands read over IPC.
//
// Keep protocol logic in the client package; the daemon only owns startup,
// shutdown and the state other processes query.
package daemon
