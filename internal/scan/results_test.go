package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resultsFor(names ...string) *Results {
	r := &Results{}
	for _, n := range names {
		r.Results = append(r.Results, Result{Filename: n})
	}
	return r
}

func filenames(results []Result) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Filename)
	}
	return out
}

func TestScanCollection_AllResultsDepthFirst(t *testing.T) {
	tree := ScanCollection{
		ID:      "root",
		Results: resultsFor("root-1"),
		Scans: []ScanCollection{
			{
				ID:      "a",
				Results: resultsFor("a-1", "a-2"),
				Scans: []ScanCollection{
					{ID: "a.x", Results: resultsFor("ax-1")},
				},
			},
			{ID: "b"},
			{ID: "c", Results: resultsFor("c-1")},
		},
	}

	assert.Equal(t, []string{"root-1", "a-1", "a-2", "ax-1", "c-1"}, filenames(tree.AllResults()))
	assert.True(t, tree.HasResults())
}

func TestScanCollection_ScansWithResults(t *testing.T) {
	errorOnly := Results{Errors: []Error{{Description: "boom"}}}
	tree := ScanCollection{
		Scans: []ScanCollection{
			{ID: "nil"},
			{ID: "empty", Results: &Results{}},
			{ID: "found", Results: resultsFor("x")},
			{ID: "failed", Results: &errorOnly},
		},
	}

	var ids []string
	for _, s := range tree.ScansWithResults() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"found", "failed"}, ids)
	assert.True(t, tree.HasResults())
	assert.Len(t, tree.AllErrors(), 1)
}

func TestScanCollection_Empty(t *testing.T) {
	empty := ScanCollection{ID: "nothing", Scans: []ScanCollection{{ID: "child", Results: &Results{}}}}
	assert.False(t, empty.HasResults())
	assert.Empty(t, empty.AllResults())
	assert.Empty(t, empty.ScansWithResults())
}

func TestResultsFromError(t *testing.T) {
	r := ResultsFromError(errors.New("could not parse patch"))
	assert.Empty(t, r.Results)
	assert.Len(t, r.Errors, 1)
	assert.Empty(t, r.Errors[0].Files)
	assert.Equal(t, "could not parse patch", r.Errors[0].Description)
	assert.False(t, r.Empty())
}
