package decode

import (
	"bytes"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// minConfidence is the lowest chardet confidence (0-100) accepted.
const minConfidence = 10

const bom = "\uFEFF"

// Bytes decodes raw into a string. label identifies the content in log
// messages, usually a file name.
func Bytes(raw []byte, label string) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) && bytes.IndexByte(raw, 0) < 0 {
		return strings.TrimPrefix(string(raw), bom)
	}

	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil || result.Confidence < minConfidence {
		slog.Warn("skipping content, unable to detect charset", "filename", label)
		return ""
	}
	charset := strings.ToUpper(result.Charset)

	if charset == "UTF-8" {
		if bytes.IndexByte(raw, 0) >= 0 {
			slog.Warn("skipping binary content", "filename", label)
			return ""
		}
		return strings.ToValidUTF8(strings.TrimPrefix(string(raw), bom), "\uFFFD")
	}

	enc := lookup(charset)
	if enc == nil {
		slog.Warn("skipping content, unsupported charset", "filename", label, "charset", result.Charset)
		return ""
	}
	if !isWide(charset) && bytes.IndexByte(raw, 0) >= 0 {
		slog.Warn("skipping binary content", "filename", label)
		return ""
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		slog.Warn("skipping content, decoding failed", "filename", label, "charset", result.Charset, "err", err)
		return ""
	}
	return strings.ToValidUTF8(strings.TrimPrefix(string(out), bom), "\uFFFD")
}

func isWide(charset string) bool {
	return strings.HasPrefix(charset, "UTF-16") || strings.HasPrefix(charset, "UTF-32")
}

func lookup(charset string) encoding.Encoding {
	switch charset {
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "UTF-32BE":
		return utf32.UTF32(utf32.BigEndian, utf32.UseBOM)
	case "UTF-32LE":
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM)
	}
	for _, name := range []string{charset, strings.ReplaceAll(charset, "-", "")} {
		if enc, err := htmlindex.Get(name); err == nil && enc != nil {
			return enc
		}
		if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
			return enc
		}
	}
	return nil
}
