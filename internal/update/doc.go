// Package update checks whether a newer ggshield release is published.
//
// The GitHub releases API is queried at most once per day; the answer is
// cached in a small YAML file between runs.
package update
