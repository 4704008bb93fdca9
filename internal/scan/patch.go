package scan

import (
	"log/slog"
	"strings"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"

	regexp "github.com/wasilibs/go-re2"
)

const (
	commitSeparator = "\x00commit "
	bodySeparator   = "\x00diff "
)

var fileDiffSeparator = regexp.MustCompile(`(?m)^diff `)

type patchOptions struct {
	exclusions filter.Exclusions
	// maxDocumentSize is the API document limit. Documents above 90% of it
	// are dropped to leave room for the request envelope.
	maxDocumentSize int
}

func (o patchOptions) sizeLimit() int {
	if o.maxDocumentSize > 0 {
		return o.maxDocumentSize
	}
	return client.DocumentSizeThresholdBytes
}

// parsePatch splits a raw patch into commit files. Merge commits shown with
// -m contain one sub-patch per parent; all of them are parsed.
func parsePatch(sha, patch string, opts patchOptions) ([]*CommitFile, error) {
	limit := opts.sizeLimit()

	var files []*CommitFile
	for _, sub := range strings.Split(patch, commitSeparator) {
		header, rest, found := strings.Cut(sub, bodySeparator)
		if !found {
			continue
		}

		entries, err := parsePatchHeader(header)
		if err != nil {
			return nil, &PatchParseError{SHA: sha, Err: err}
		}

		diffs := fileDiffSeparator.Split(rest, -1)
		for i, entry := range entries {
			if i >= len(diffs) {
				break
			}
			if filter.IsFilepathExcluded(entry.filename, opts.exclusions) {
				continue
			}

			diff := diffs[i]
			// Skip the extended headers ("old mode", "--- a/x", "+++ b/x"...).
			hunk := strings.Index(diff, "\n@@")
			if hunk < 0 {
				continue
			}
			document := diff[hunk+1:]

			if len(document)*10 > limit*9 {
				slog.Debug("skipping oversized document", "sha", sha, "filename", entry.filename, "bytes", len(document))
				continue
			}
			if document == "" {
				continue
			}
			files = append(files, NewCommitFile(document, entry.filename, entry.mode))
		}
	}
	return files, nil
}
