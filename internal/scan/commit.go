package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/CEE-TEE/ggshield/internal/filter"
	"github.com/CEE-TEE/ggshield/internal/gitctx"

	regexp "github.com/wasilibs/go-re2"
)

// StagedID identifies the staged changes in reports.
const StagedID = "cached"

var headerInfo = regexp.MustCompile(`Author:\s(?P<author>.+?) <(?P<email>.+?)>\nDate:\s+(?P<date>.+)?\n`)

// patchArgs are appended to every patch command: a raw header listing the
// touched files with NUL separated names, the diff itself, and merge commits
// split into one single-parent diff per parent.
var patchArgs = []string{"--raw", "-z", "--patch", "-m"}

// CommitInformation is the cosmetic metadata of a commit.
type CommitInformation struct {
	Author string
	Email  string
	Date   string
}

var unknownCommit = CommitInformation{Author: "unknown"}

// Commit is a commit, or the staged changes when SHA is empty. The patch is
// fetched once and both its parse and its metadata are memoized.
type Commit struct {
	SHA string

	runner gitctx.Runner
	opts   patchOptions

	patchOnce sync.Once
	patch     string
	patchErr  error

	infoOnce sync.Once
	info     CommitInformation

	filesOnce sync.Once
	files     []*CommitFile
	filesErr  error
}

// NewCommit returns a Commit for sha. Files matching exclusions are left out
// of Files.
func NewCommit(runner gitctx.Runner, sha string, exclusions filter.Exclusions) *Commit {
	return &Commit{SHA: sha, runner: runner, opts: patchOptions{exclusions: exclusions}}
}

// NewStagedCommit returns a Commit for the changes in the index.
func NewStagedCommit(runner gitctx.Runner, exclusions filter.Exclusions) *Commit {
	return NewCommit(runner, "", exclusions)
}

// ID returns the SHA, or StagedID for the staged changes.
func (c *Commit) ID() string {
	if c.SHA == "" {
		return StagedID
	}
	return c.SHA
}

// Patch returns the raw patch. Errors from the runner are returned as is.
func (c *Commit) Patch(ctx context.Context) (string, error) {
	c.patchOnce.Do(func() {
		var args []string
		if c.SHA != "" {
			args = append([]string{"show", c.SHA}, patchArgs...)
		} else {
			args = append([]string{"diff", "--cached"}, patchArgs...)
		}
		c.patch, c.patchErr = c.runner.Run(ctx, args...)
	})
	return c.patch, c.patchErr
}

// Info extracts the author, email and date from the patch header. It never
// fails: an unavailable patch or a missing header yields ("unknown", "", "").
func (c *Commit) Info(ctx context.Context) CommitInformation {
	c.infoOnce.Do(func() {
		c.info = unknownCommit
		patch, err := c.Patch(ctx)
		if err != nil {
			return
		}
		m := headerInfo.FindStringSubmatch(patch)
		if m == nil {
			return
		}
		c.info = CommitInformation{
			Author: m[headerInfo.SubexpIndex("author")],
			Email:  m[headerInfo.SubexpIndex("email")],
			Date:   m[headerInfo.SubexpIndex("date")],
		}
	})
	return c.info
}

// OptionalHeader is the commit banner printed above the results.
func (c *Commit) OptionalHeader(ctx context.Context) string {
	info := c.Info(ctx)
	return fmt.Sprintf("\ncommit %s\nAuthor: %s <%s>\nDate: %s\n", c.ID(), info.Author, info.Email, info.Date)
}

// Files parses the patch into commit files.
func (c *Commit) Files(ctx context.Context) ([]*CommitFile, error) {
	c.filesOnce.Do(func() {
		patch, err := c.Patch(ctx)
		if err != nil {
			c.filesErr = err
			return
		}
		c.files, c.filesErr = parsePatch(c.SHA, patch, c.opts)
	})
	return c.files, c.filesErr
}

// Scannables returns Files as a Files collection.
func (c *Commit) Scannables(ctx context.Context) (Files, error) {
	files, err := c.Files(ctx)
	if err != nil {
		return nil, err
	}
	out := make(Files, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out, nil
}
