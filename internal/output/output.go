package output

import (
	"fmt"
	"io"
	"os"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
	"github.com/CEE-TEE/ggshield/internal/scan"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, collection *scan.ScanCollection) error
}

// Options controls what the writers reveal.
type Options struct {
	// ShowSecrets prints match values in clear.
	ShowSecrets bool
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string, opts Options) (Writer, error) {
	switch format {
	case "", "text":
		return &TextWriter{ShowSecrets: opts.ShowSecrets}, nil
	case "json":
		return &JSONWriter{ShowSecrets: opts.ShowSecrets}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or stdout when outPath is empty.
func WriteReport(collection *scan.ScanCollection, format, outPath string, opts Options) error {
	writer, err := GetWriter(format, opts)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, collection)
}

// incident groups the policy breaks of one file sharing an ignore SHA.
type incident struct {
	Policy      string
	BreakType   string
	Validity    string
	IgnoreSHA   string
	Occurrences []client.Match
}

func incidents(result scan.Result) []incident {
	var out []incident
	index := make(map[string]int)
	for _, pb := range result.Scan.PolicyBreaks {
		sha := filter.IgnoreSHA(pb)
		if i, ok := index[sha]; ok {
			out[i].Occurrences = append(out[i].Occurrences, pb.Matches...)
			continue
		}
		index[sha] = len(out)
		out = append(out, incident{
			Policy:      pb.Policy,
			BreakType:   pb.BreakType,
			Validity:    pb.Validity,
			IgnoreSHA:   sha,
			Occurrences: append([]client.Match(nil), pb.Matches...),
		})
	}
	return out
}

// totals counts incidents and occurrences over every result of the tree.
func totals(results []scan.Result) (incidentCount, occurrenceCount int) {
	for _, r := range results {
		for _, inc := range incidents(r) {
			incidentCount++
			occurrenceCount += len(inc.Occurrences)
		}
	}
	return incidentCount, occurrenceCount
}
