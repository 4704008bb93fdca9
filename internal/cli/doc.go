// Package cli wires together the Cobra command tree for the ggshield binary.
//
// It defines the root command and all subcommands (secret scan, cache,
// config, version), binds flags, reads configuration, runs the scans, and
// returns deterministic exit codes for CI gating.
package cli
