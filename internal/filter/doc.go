// Package filter removes suppressed findings from scan results and decides
// which paths are excluded from a scan.
//
// A policy break is suppressed when its ignore SHA, or any of its matched
// values, appears in the configured matches-ignore list, or when its detector
// type is banlisted. Path exclusions combine paths-ignore glob patterns
// (doublestar syntax) with raw exclusion regexes.
package filter
