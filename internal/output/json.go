package output

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/CEE-TEE/ggshield/internal/redact"
	"github.com/CEE-TEE/ggshield/internal/scan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONWriter outputs the full report tree as JSON.
type JSONWriter struct {
	ShowSecrets bool
}

type jsonCollection struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	ExtraInfo        map[string]string `json:"extra_info,omitempty"`
	TotalIncidents   int               `json:"total_incidents"`
	TotalOccurrences int               `json:"total_occurrences"`
	Results          []jsonResult      `json:"results,omitempty"`
	Errors           []jsonError       `json:"errors,omitempty"`
	Scans            []jsonCollection  `json:"scans,omitempty"`
}

type jsonResult struct {
	Filename         string         `json:"filename"`
	Mode             scan.Filemode  `json:"mode"`
	TotalIncidents   int            `json:"total_incidents"`
	TotalOccurrences int            `json:"total_occurrences"`
	Incidents        []jsonIncident `json:"incidents"`
}

type jsonIncident struct {
	Policy      string           `json:"policy"`
	BreakType   string           `json:"type"`
	Validity    string           `json:"validity,omitempty"`
	IgnoreSHA   string           `json:"ignore_sha"`
	Total       int              `json:"total_occurrences"`
	Occurrences []jsonOccurrence `json:"occurrences"`
}

type jsonOccurrence struct {
	Match      string `json:"match"`
	Type       string `json:"type"`
	LineStart  *int   `json:"line_start,omitempty"`
	LineEnd    *int   `json:"line_end,omitempty"`
	IndexStart *int   `json:"index_start,omitempty"`
	IndexEnd   *int   `json:"index_end,omitempty"`
}

type jsonError struct {
	Files       []scan.FileRef `json:"files"`
	Description string         `json:"description"`
}

func (j *JSONWriter) Write(w io.Writer, collection *scan.ScanCollection) error {
	data, err := json.MarshalIndent(j.convert(collection), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

func (j *JSONWriter) convert(c *scan.ScanCollection) jsonCollection {
	out := jsonCollection{
		ID:        c.ID,
		Type:      c.Type,
		ExtraInfo: c.ExtraInfo,
	}
	out.TotalIncidents, out.TotalOccurrences = totals(c.AllResults())

	if c.Results != nil {
		for _, r := range c.Results.Results {
			out.Results = append(out.Results, j.convertResult(r))
		}
		for _, e := range c.Results.Errors {
			files := e.Files
			if files == nil {
				files = []scan.FileRef{}
			}
			out.Errors = append(out.Errors, jsonError{Files: files, Description: e.Description})
		}
	}
	for _, child := range c.ScansWithResults() {
		out.Scans = append(out.Scans, j.convert(&child))
	}
	return out
}

func (j *JSONWriter) convertResult(r scan.Result) jsonResult {
	out := jsonResult{Filename: r.Filename, Mode: r.Filemode, Incidents: []jsonIncident{}}
	for _, inc := range incidents(r) {
		ji := jsonIncident{
			Policy:    inc.Policy,
			BreakType: inc.BreakType,
			Validity:  inc.Validity,
			IgnoreSHA: inc.IgnoreSHA,
			Total:     len(inc.Occurrences),
		}
		for _, m := range inc.Occurrences {
			value := m.Match
			if !j.ShowSecrets {
				value = redact.Censor(value)
			}
			ji.Occurrences = append(ji.Occurrences, jsonOccurrence{
				Match:      value,
				Type:       m.MatchType,
				LineStart:  m.LineStart,
				LineEnd:    m.LineEnd,
				IndexStart: m.IndexStart,
				IndexEnd:   m.IndexEnd,
			})
		}
		out.Incidents = append(out.Incidents, ji)
		out.TotalIncidents++
		out.TotalOccurrences += ji.Total
	}
	return out
}
