// Package version holds the ggshield release version.
package version

// Version is the current ggshield release. It is sent with every API request
// and compared against the latest published release by the update check.
const Version = "1.14.2"
