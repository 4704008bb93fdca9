package scan

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

// headerLineSeparator separates the entries of a `--raw -z` header.
var headerLineSeparator = regexp.MustCompile(`[\n\x00]:`)

type headerEntry struct {
	filename string
	mode     Filemode
}

// statusPriority is checked in order. Merge commits carry one status letter
// per parent: a file modified on any side classifies as modified.
var statusPriority = []struct {
	letter byte
	mode   Filemode
}{
	{'M', FilemodeModify},
	{'C', FilemodeNew},
	{'A', FilemodeNew},
	{'T', FilemodeNew},
	{'R', FilemodeRename},
	{'D', FilemodeDelete},
}

// parsePatchHeaderLine parses one raw header entry such as
// ":100644 100644 bcd1234 0123456 M\x00file.go\x00". For 2-parent commits the
// prefix is "::mode1 mode2 mode sha1 sha2 sha MM". Renames and copies carry
// the new name as a third field.
func parsePatchHeaderLine(line string) (string, Filemode, error) {
	fields := strings.Split(strings.TrimRight(line, "\x00"), "\x00")
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("can't parse header line %q: missing file name", line)
	}
	prefix, name := fields[0], fields[1]
	if len(fields) > 2 {
		name = fields[2]
	}

	status := prefix
	if i := strings.LastIndexByte(prefix, ' '); i >= 0 {
		status = prefix[i+1:]
	}
	status = strings.TrimRight(status, "0123456789")

	for _, p := range statusPriority {
		if strings.IndexByte(status, p.letter) >= 0 {
			return name, p.mode, nil
		}
	}
	return "", 0, &ParseError{Line: line, Status: status}
}

// parsePatchHeader parses the raw header of a patch. The first segment holds
// the commit information and message and is skipped; `git diff` output has
// none, so a blank one is added.
func parsePatchHeader(header string) ([]headerEntry, error) {
	if strings.HasPrefix(header, ":") {
		header = "\n" + header
	}
	segments := headerLineSeparator.Split(header, -1)
	if len(segments) < 2 {
		return nil, nil
	}

	entries := make([]headerEntry, 0, len(segments)-1)
	for _, segment := range segments[1:] {
		name, mode, err := parsePatchHeaderLine(":" + segment)
		if err != nil {
			return nil, err
		}
		entries = append(entries, headerEntry{filename: name, mode: mode})
	}
	return entries, nil
}
