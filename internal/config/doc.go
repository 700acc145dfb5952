// Package config loads, normalizes, and validates skylink configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and picks a transport suited to the running
// operating system when none is configured. The Config type centralizes every
// knob the client, daemon, and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
