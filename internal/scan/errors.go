package scan

import (
	"errors"
	"fmt"
)

// ParseError reports a raw header line whose status letters are not
// recognized.
type ParseError struct {
	Line   string
	Status string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse header line %q: unknown status %q", e.Line, e.Status)
}

// PatchParseError reports a patch that could not be split into files. It is
// scoped to one commit.
type PatchParseError struct {
	SHA string
	Err error
}

func (e *PatchParseError) Error() string {
	return fmt.Sprintf("could not parse patch (sha: %s): %v", e.SHA, e.Err)
}

func (e *PatchParseError) Unwrap() error { return e.Err }

// AuthenticationError is returned when the API rejects the credentials.
type AuthenticationError struct {
	Detail string
}

func (e *AuthenticationError) Error() string {
	if e.Detail == "" {
		return "authentication failed"
	}
	return e.Detail
}

// NetworkError is returned when the API could not be reached at all.
type NetworkError struct {
	Detail string
}

func (e *NetworkError) Error() string {
	return "Error scanning, network error occurred: " + e.Detail
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var authErr *AuthenticationError
	var netErr *NetworkError
	return errors.As(err, &authErr) || errors.As(err, &netErr)
}

// IsAuthError reports whether err is, or wraps, an *AuthenticationError.
func IsAuthError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}
