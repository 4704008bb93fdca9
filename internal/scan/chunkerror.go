package scan

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/CEE-TEE/ggshield/internal/client"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// handleScanChunkError reports a failed batch on w. Authentication failures
// and unreachable APIs are returned as fatal errors; every other failure is
// only reported and nil is returned.
func handleScanChunkError(failure *client.Failure, batch []Scannable, w io.Writer) error {
	slog.Debug("scan chunk failed", "status", failure.StatusCode, "detail", failure.Detail)
	switch failure.StatusCode {
	case http.StatusUnauthorized:
		return &AuthenticationError{Detail: failure.Detail}
	case 0:
		return &NetworkError{Detail: failure.Detail}
	}

	fmt.Fprintln(w, "\nError scanning. Results may be incomplete.")

	if details, ok := parseDetailList(failure.Detail); ok && len(details) > 0 {
		fmt.Fprintf(w, "Add the following %s to your paths-ignore:\n", pluralize("file", len(details)))
		for i, detail := range details {
			if i >= len(batch) || isEmptyDetail(detail) {
				continue
			}
			fmt.Fprintf(w, "- %s: %s\n", batch[i].Filename(), renderDetail(detail))
		}
		return nil
	}

	fmt.Fprintf(w, "The following chunk is affected:\n%s\n", strings.Join(Files(batch).Filenames(), ", "))
	fmt.Fprintln(w, failure.Detail)
	return nil
}

// parseDetailList decodes a per-file detail list, index aligned with the
// batch.
func parseDetailList(detail string) ([]any, bool) {
	var list []any
	if err := json.Unmarshal([]byte(detail), &list); err == nil {
		return list, true
	}
	if converted, ok := pythonToJSON(detail); ok {
		if err := json.Unmarshal([]byte(converted), &list); err == nil {
			return list, true
		}
	}
	return nil, false
}

var pythonConstants = map[string]string{"None": "null", "True": "true", "False": "false"}

// pythonToJSON rewrites a Python literal (as produced by older API versions)
// into JSON. String contents are re-quoted and never rewritten. Identifiers
// other than None, True and False make the conversion fail.
func pythonToJSON(src string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			s, n, ok := readPythonString(src[i:])
			if !ok {
				return "", false
			}
			quoted, err := json.Marshal(s)
			if err != nil {
				return "", false
			}
			b.Write(quoted)
			i += n
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && strings.IndexByte("0123456789.eE+-", src[j]) >= 0 {
				j++
			}
			b.WriteString(src[i:j])
			i = j
		case isIdentByte(c):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			lit, ok := pythonConstants[src[i:j]]
			if !ok {
				return "", false
			}
			b.WriteString(lit)
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), true
}

// readPythonString decodes the quoted string at the start of s and returns
// it with the number of bytes consumed.
func readPythonString(s string) (string, int, bool) {
	quote := s[0]
	var out strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == quote {
			return out.String(), i + 1, true
		}
		if c != '\\' || i+1 == len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case '\\', '\'', '"':
			out.WriteByte(e)
		case 'x', 'u':
			width := 2
			if e == 'u' {
				width = 4
			}
			if i+width >= len(s) {
				return "", 0, false
			}
			v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil {
				return "", 0, false
			}
			out.WriteRune(rune(v))
			i += width
		default:
			out.WriteByte('\\')
			out.WriteByte(e)
		}
	}
	return "", 0, false
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isEmptyDetail(v any) bool {
	switch d := v.(type) {
	case nil:
		return true
	case string:
		return d == ""
	case bool:
		return !d
	case float64:
		return d == 0
	case []any:
		return len(d) == 0
	case map[string]any:
		return len(d) == 0
	}
	return false
}

func renderDetail(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
