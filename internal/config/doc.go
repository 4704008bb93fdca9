// Package config loads and merges ggshield configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (GITGUARDIAN_API_KEY, GITGUARDIAN_API_URL, etc.)
//  3. Local config file (.gitguardian.yaml in the working directory)
//  4. Global config file (~/.gitguardian.yaml)
//  5. Built-in defaults
//
// List settings (paths-ignore, matches-ignore, banlisted-detectors and
// exclude-regexes) accumulate across the two files instead of replacing each
// other. Use [Load] to obtain a merged [Config]. Configuration is never
// written back.
package config
