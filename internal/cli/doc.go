// Package cli wires together the Cobra command tree for the sizedeltas
// binary.
//
// It defines the root command and subcommands (report, version), binds
// flags, builds the effective configuration, selects local or sweep mode
// from the ambient workflow event, invokes the pipeline, and returns
// deterministic exit codes for CI gating.
package cli
