// Package main hosts the skylink CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, runs the daemon itself, drives the host application
// process, and scaffolds configuration. A direct mode (`skylink listen`)
// attaches without a daemon for one-off sessions.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
