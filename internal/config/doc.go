// Package config builds the effective sizedeltas configuration by merging
// defaults, an optional repo-local .sizedeltas.yml file, workflow
// environment variables, and CLI flag overrides, in that order.
//
// Validation failures are fatal and happen before any network I/O.
package config
