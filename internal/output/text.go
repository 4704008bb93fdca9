package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/CEE-TEE/ggshield/internal/redact"
	"github.com/CEE-TEE/ggshield/internal/scan"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct {
	ShowSecrets bool
}

func (t *TextWriter) Write(w io.Writer, collection *scan.ScanCollection) error {
	ew := &errWriter{w: w}

	incidentCount, _ := totals(collection.AllResults())
	errs := collection.AllErrors()
	if incidentCount == 0 && len(errs) == 0 {
		ew.println("No secrets have been found")
		return ew.err
	}

	t.writeCollection(ew, collection)

	if len(errs) > 0 {
		ew.printf("\n%s\n", strings.Repeat("─", 60))
		ew.printf("%d %s occurred while scanning:\n", len(errs), plural(len(errs), "error", "errors"))
		for _, e := range errs {
			names := make([]string, 0, len(e.Files))
			for _, f := range e.Files {
				names = append(names, f.Filename)
			}
			if len(names) > 0 {
				ew.printf("  - %s: %s\n", strings.Join(names, ", "), e.Description)
			} else {
				ew.printf("  - %s\n", e.Description)
			}
		}
	}
	if incidentCount > 0 {
		ew.printf("\n%d %s found in %s\n", incidentCount, plural(incidentCount, "incident", "incidents"), collection.ID)
	}
	return ew.err
}

func (t *TextWriter) writeCollection(ew *errWriter, c *scan.ScanCollection) {
	if c.Results != nil && len(c.Results.Results) > 0 {
		if c.OptionalHeader != "" {
			ew.printf("%s", c.OptionalHeader)
		}
		for _, r := range c.Results.Results {
			t.writeResult(ew, r)
		}
	}
	for i := range c.Scans {
		t.writeCollection(ew, &c.Scans[i])
	}
}

func (t *TextWriter) writeResult(ew *errWriter, r scan.Result) {
	incs := incidents(r)
	ew.printf("\n>> %s: %d %s detected\n", r.Filename, len(incs), plural(len(incs), "incident", "incidents"))

	var values []string
	for _, pb := range r.Scan.PolicyBreaks {
		for _, m := range pb.Matches {
			values = append(values, m.Match)
		}
	}
	lines := strings.Split(r.Content, "\n")

	for n, inc := range incs {
		ew.printf("\n>>> Incident %d (%s): %s", n+1, inc.Policy, inc.BreakType)
		if inc.Validity != "" {
			ew.printf(" (Validity: %s)", inc.Validity)
		}
		ew.printf(" (Ignore with SHA: %s) (%d %s)\n", inc.IgnoreSHA,
			len(inc.Occurrences), plural(len(inc.Occurrences), "occurrence", "occurrences"))

		for _, m := range inc.Occurrences {
			value := m.Match
			if !t.ShowSecrets {
				value = redact.Censor(value)
			}
			ew.printf("    %s: %s", m.MatchType, value)
			if m.LineStart != nil {
				ew.printf(" (line %d)", *m.LineStart)
			}
			ew.println("")
			t.writeContext(ew, lines, m.LineStart, m.LineEnd, values)
		}
	}
}

// writeContext prints the document lines spanned by a match, 1-based.
func (t *TextWriter) writeContext(ew *errWriter, lines []string, start, end *int, values []string) {
	if start == nil {
		return
	}
	last := *start
	if end != nil && *end > last {
		last = *end
	}
	for i := *start; i <= last; i++ {
		if i < 1 || i > len(lines) {
			return
		}
		line := lines[i-1]
		if !t.ShowSecrets {
			line = redact.Content(line, values)
		}
		ew.printf("      %4d | %s\n", i, line)
	}
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
