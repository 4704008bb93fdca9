package scan

import "github.com/CEE-TEE/ggshield/internal/client"

// Result is a scanned file with at least one remaining policy break.
type Result struct {
	Content  string
	Filemode Filemode
	Filename string
	Scan     client.ScanResult
}

// FileRef names a file involved in a failed batch.
type FileRef struct {
	Filename string   `json:"filename"`
	Filemode Filemode `json:"mode"`
}

// Error is a failure attributed to the files of one batch. Files is empty
// when the failure happened before any batch was formed.
type Error struct {
	Files       []FileRef
	Description string
}

// Results is the outcome of one scan.
type Results struct {
	Results []Result
	Errors  []Error
}

// ResultsFromError builds a failure-only Results.
func ResultsFromError(err error) Results {
	return Results{Errors: []Error{{Description: err.Error()}}}
}

// Empty reports whether there is neither a result nor an error.
func (r *Results) Empty() bool {
	return r == nil || (len(r.Results) == 0 && len(r.Errors) == 0)
}

// ScanCollection is one node of a report: a commit, a commit range, a set of
// paths. Nodes nest to any depth.
type ScanCollection struct {
	ID             string
	Type           string
	Results        *Results
	Scans          []ScanCollection
	ExtraInfo      map[string]string
	Payload        any
	OptionalHeader string
}

// ScansWithResults returns the direct children holding results or errors.
func (c *ScanCollection) ScansWithResults() []ScanCollection {
	var out []ScanCollection
	for _, s := range c.Scans {
		if !s.Results.Empty() {
			out = append(out, s)
		}
	}
	return out
}

// AllResults returns the results of this node followed by those of every
// descendant, depth first, children in order.
func (c *ScanCollection) AllResults() []Result {
	var out []Result
	if c.Results != nil {
		out = append(out, c.Results.Results...)
	}
	for i := range c.Scans {
		out = append(out, c.Scans[i].AllResults()...)
	}
	return out
}

// AllErrors is the error counterpart of AllResults.
func (c *ScanCollection) AllErrors() []Error {
	var out []Error
	if c.Results != nil {
		out = append(out, c.Results.Errors...)
	}
	for i := range c.Scans {
		out = append(out, c.Scans[i].AllErrors()...)
	}
	return out
}

// HasResults reports whether this node or a descendant holds a result.
func (c *ScanCollection) HasResults() bool {
	if c.Results != nil && len(c.Results.Results) > 0 {
		return true
	}
	for i := range c.Scans {
		if c.Scans[i].HasResults() {
			return true
		}
	}
	return false
}
