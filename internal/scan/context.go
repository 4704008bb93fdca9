package scan

import (
	"strings"

	"github.com/google/uuid"

	"github.com/CEE-TEE/ggshield/internal/version"
)

// ScanMode is sent to the API to tell which kind of scan issued the request.
type ScanMode string

const (
	ModePath        ScanMode = "path"
	ModeCommit      ScanMode = "commit"
	ModeCommitRange ScanMode = "commit_range"
	ModePreCommit   ScanMode = "pre_commit"
)

const headerPrefix = "GGShield-"

// ScanContext identifies the command that issued a scan.
type ScanContext struct {
	ScanMode    ScanMode
	CommandPath string
	// CommandID correlates all the requests of one invocation. One is
	// generated when empty.
	CommandID string

	extra map[string]string
}

// AddExtraHeader stores an additional request header. The GGShield- prefix
// is added when missing and an existing header is never overwritten.
func (sc *ScanContext) AddExtraHeader(key, value string) {
	if !strings.HasPrefix(key, headerPrefix) {
		key = headerPrefix + key
	}
	if sc.extra == nil {
		sc.extra = make(map[string]string)
	}
	if _, exists := sc.extra[key]; !exists {
		sc.extra[key] = value
	}
}

// Headers returns the headers sent with every scan request.
func (sc *ScanContext) Headers() map[string]string {
	if sc.CommandID == "" {
		sc.CommandID = uuid.NewString()
	}
	path := sc.CommandPath
	if path == "" {
		path = "external"
	}

	headers := map[string]string{
		headerPrefix + "Version":      version.Version,
		headerPrefix + "Command-Path": path,
		headerPrefix + "Command-Id":   sc.CommandID,
		"mode":                        string(sc.ScanMode),
	}
	for k, v := range sc.extra {
		if _, exists := headers[k]; !exists {
			headers[k] = v
		}
	}
	return headers
}
