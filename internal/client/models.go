package client

import "fmt"

const (
	// MultiDocumentLimit is the maximum number of documents accepted by a
	// single multiscan request.
	MultiDocumentLimit = 20
	// DocumentSizeThresholdBytes is the maximum UTF-8 size of a single document.
	DocumentSizeThresholdBytes = 1024 * 1024
)

// Document is one entry of a multiscan request.
type Document struct {
	Document string `json:"document"`
	Filename string `json:"filename,omitempty"`
}

// Match is a single matched value inside a policy break.
type Match struct {
	Match      string `json:"match"`
	MatchType  string `json:"type"`
	IndexStart *int   `json:"index_start,omitempty"`
	IndexEnd   *int   `json:"index_end,omitempty"`
	LineStart  *int   `json:"line_start,omitempty"`
	LineEnd    *int   `json:"line_end,omitempty"`
}

// PolicyBreak is a finding returned by the API for one document.
type PolicyBreak struct {
	BreakType string  `json:"type"`
	Policy    string  `json:"policy"`
	Validity  string  `json:"validity,omitempty"`
	Matches   []Match `json:"matches"`
}

// SecretPolicy is the policy name the API uses for detected secrets.
const SecretPolicy = "Secrets detection"

// IsSecret reports whether the break was raised by the secrets policy.
func (pb PolicyBreak) IsSecret() bool {
	return pb.Policy == SecretPolicy
}

// ScanResult is the scan outcome for one document.
type ScanResult struct {
	PolicyBreakCount int           `json:"policy_break_count"`
	Policies         []string      `json:"policies"`
	PolicyBreaks     []PolicyBreak `json:"policy_breaks"`
}

// HasPolicyBreaks reports whether at least one policy break remains.
func (r *ScanResult) HasPolicyBreaks() bool {
	return r.PolicyBreakCount > 0
}

// Outcome is the result of a multiscan call: either *Success or *Failure.
type Outcome interface {
	isOutcome()
}

// Success carries one ScanResult per submitted document, in request order.
type Success struct {
	Results []ScanResult
}

// Failure describes a non-success API response. StatusCode is 0 when no HTTP
// response was received at all.
type Failure struct {
	StatusCode int
	Detail     string
}

func (*Success) isOutcome() {}
func (*Failure) isOutcome() {}

// Error implements error so a Failure can be logged or wrapped directly.
func (f *Failure) Error() string {
	if f.StatusCode == 0 {
		return f.Detail
	}
	return fmt.Sprintf("status %d: %s", f.StatusCode, f.Detail)
}
