// Package output renders scan reports for display or machine consumption.
//
// Two formats are supported:
//   - text: human-readable terminal output (default)
//   - json: the full report tree as a JSON document
//
// Use [GetWriter] to obtain a [Writer] for a format string, then call
// [Writer.Write] with an [io.Writer] and a [*scan.ScanCollection].
// [WriteReport] handles destination selection.
package output
