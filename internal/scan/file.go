package scan

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/CEE-TEE/ggshield/internal/decode"
)

// Filemode describes how a file changed, or that it is a plain file on disk.
type Filemode int

const (
	FilemodeFile Filemode = iota
	FilemodeNew
	FilemodeModify
	FilemodeRename
	FilemodeDelete
)

var filemodeNames = [...]string{"FILE", "NEW", "MODIFY", "RENAME", "DELETE"}

func (m Filemode) String() string {
	if m < 0 || int(m) >= len(filemodeNames) {
		return "UNKNOWN"
	}
	return filemodeNames[m]
}

// MarshalText renders the mode by name in JSON output.
func (m Filemode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (m *Filemode) UnmarshalText(text []byte) error {
	i := slices.Index(filemodeNames[:], string(text))
	if i < 0 {
		return fmt.Errorf("unknown file mode %q", text)
	}
	*m = Filemode(i)
	return nil
}

// Scannable is anything that can be submitted for scanning.
type Scannable interface {
	Filename() string
	Filemode() Filemode
	// Document returns the decoded content; "" means the content could not be
	// decoded and must not be submitted.
	Document() string
}

// File is a plain file. Its content is either supplied up front or read and
// decoded from disk on first use.
type File struct {
	filename string
	path     string

	once     sync.Once
	document string
}

// NewFileFromPath returns a File whose content is read from path lazily.
func NewFileFromPath(path string) *File {
	return &File{filename: path, path: path}
}

// NewFileFromBytes decodes raw immediately.
func NewFileFromBytes(raw []byte, filename string) *File {
	return NewFile(decode.Bytes(raw, filename), filename)
}

// NewFile returns a File holding an already decoded document.
func NewFile(document, filename string) *File {
	f := &File{filename: filename, document: document}
	f.once.Do(func() {})
	return f
}

func (f *File) Filename() string   { return f.filename }
func (f *File) Filemode() Filemode { return FilemodeFile }

func (f *File) Document() string {
	f.once.Do(func() {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			slog.Warn("skipping unreadable file", "filename", f.filename, "err", err)
			return
		}
		f.document = decode.Bytes(raw, f.filename)
	})
	return f.document
}

// RelativeTo returns a File for the same content named relative to root. The
// name is kept as is when it is not below root.
func (f *File) RelativeTo(root string) *File {
	name := f.filename
	if rel, err := filepath.Rel(root, f.filename); err == nil && !strings.HasPrefix(rel, "..") {
		name = rel
	}
	if f.path == "" {
		return NewFile(f.document, name)
	}
	return &File{filename: name, path: f.path}
}

// HasExtensions reports whether any suffix of the file name is one of exts.
// For "archive.tar.gz" both ".tar" and ".gz" are suffixes.
func (f *File) HasExtensions(exts ...string) bool {
	parts := strings.Split(strings.TrimLeft(filepath.Base(f.filename), "."), ".")
	for _, p := range parts[1:] {
		if slices.Contains(exts, "."+p) {
			return true
		}
	}
	return false
}

// CommitFile is one file changed by a commit. Its document is the patch
// content starting at the first hunk.
type CommitFile struct {
	filename string
	mode     Filemode
	document string
}

// NewCommitFile creates a CommitFile.
func NewCommitFile(document, filename string, mode Filemode) *CommitFile {
	return &CommitFile{filename: filename, mode: mode, document: document}
}

func (f *CommitFile) Filename() string   { return f.filename }
func (f *CommitFile) Filemode() Filemode { return f.mode }
func (f *CommitFile) Document() string   { return f.document }

// Files is an ordered list of scannables. The same file name may appear more
// than once, for instance when a merge commit touches a path on both sides.
type Files []Scannable

// Filenames lists the file names in order.
func (fs Files) Filenames() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Filename()
	}
	return names
}

// ApplyFilter returns the files for which keep returns true.
func (fs Files) ApplyFilter(keep func(Scannable) bool) Files {
	var out Files
	for _, f := range fs {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
