// Package gitctx runs git and extracts commit lists from a repository.
//
// All git access goes through the [Runner] interface so callers can be tested
// against canned output. [ExecRunner] is the production implementation: it
// shells out to the git binary, forces the output to valid UTF-8 and reports
// non-zero exits as [*CommandError].
//
// [ListCommits] returns the ordered list of commits in a revision range, the
// input of commit-range scans.
package gitctx
