// Package cache keeps track of the secrets found by the last scan.
//
// The cache lives in a single JSON file (.cache_ggshield by default) holding
// the list of policy breaks found during the most recent run. Each entry
// carries the break's ignore SHA, so the list can be turned into
// matches-ignore entries. The file is removed when a scan finds nothing.
package cache
