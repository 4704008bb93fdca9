// Package scan turns git patches and files on disk into scan requests and
// assembles the API answers into a report.
//
// The package has two halves. The first parses the raw output of
// `git show <sha> --raw -z --patch -m` (or `git diff --cached` with the same
// flags) into one [CommitFile] per changed file, resolving renames, merge
// commits and extended diff headers. The second is the [Scanner], which cuts
// any list of [Scannable] values into batches of at most
// client.MultiDocumentLimit documents, sends them concurrently on a bounded
// worker pool and merges the per-file outcomes into [Results], applying the
// ignore lists and feeding the dedup cache.
//
// Batch failures are classified: an authentication failure or an unreachable
// API aborts the whole scan, other failures are printed as diagnostics and
// recorded as an [Error] for the batch while the remaining batches proceed.
//
// The targets in targets.go build a [ScanCollection] for the supported scan
// kinds: a single commit, the staged changes, a commit range and paths on
// disk.
package scan
