package redact

import (
	"sort"
	"strings"
)

const (
	maxVisible = 4
	// minLength is the shortest value that keeps visible characters.
	minLength = 5
)

// Censor hides the middle of value. Newlines are preserved so multi-line
// secrets keep their shape.
func Censor(value string) string {
	runes := []rune(value)
	n := len(runes)
	visible := 0
	if n >= minLength {
		visible = min((n+5)/6, maxVisible)
	}

	var b strings.Builder
	b.Grow(len(value))
	for i, r := range runes {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(r)
		case i < visible || i >= n-visible:
			b.WriteRune(r)
		default:
			b.WriteByte('*')
		}
	}
	return b.String()
}

// Content replaces every occurrence of values in content with its censored
// form. Longer values are replaced first so a value containing another one is
// censored whole.
func Content(content string, values []string) string {
	sorted := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return content
	}
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	pairs := make([]string, 0, 2*len(sorted))
	for _, v := range sorted {
		pairs = append(pairs, v, Censor(v))
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
