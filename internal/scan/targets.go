package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
	"github.com/CEE-TEE/ggshield/internal/gitctx"
)

// Collection types.
const (
	TypeCommit      = "commit"
	TypePreCommit   = "pre-commit"
	TypeCommitRange = "commit-range"
	TypePathScan    = "path_scan"
)

// DefaultCommitThreads is the number of commits of a range scanned at once.
const DefaultCommitThreads = 4

// TargetOptions holds what every scan target needs.
type TargetOptions struct {
	Scanner    *Scanner
	Runner     gitctx.Runner
	Exclusions filter.Exclusions
	// Concurrency is the number of batches in flight per Scan call.
	Concurrency int
	// CommitThreads bounds the commits of a range scanned at once.
	CommitThreads int
	// Progress receives submitted file counts. Range scans call it from
	// several goroutines at once.
	Progress func(int)
}

// ScanCommit scans one commit. Failing to read or parse its patch is
// reported in the collection; only fatal errors are returned.
func ScanCommit(ctx context.Context, opts TargetOptions, sha string) (ScanCollection, error) {
	commit := NewCommit(opts.Runner, sha, opts.Exclusions)
	return scanCommit(ctx, opts, opts.Scanner, commit, TypeCommit)
}

// ScanStaged scans the changes in the index.
func ScanStaged(ctx context.Context, opts TargetOptions) (ScanCollection, error) {
	commit := NewStagedCommit(opts.Runner, opts.Exclusions)
	return scanCommit(ctx, opts, opts.Scanner, commit, TypePreCommit)
}

func scanCommit(ctx context.Context, opts TargetOptions, scanner *Scanner, commit *Commit, typ string) (ScanCollection, error) {
	collection := ScanCollection{ID: commit.ID(), Type: typ}

	files, err := commit.Scannables(ctx)
	if err != nil {
		results := ResultsFromError(err)
		collection.Results = &results
		return collection, nil
	}

	results, err := scanner.Scan(ctx, files, opts.Progress, opts.Concurrency)
	if err != nil {
		return ScanCollection{}, err
	}
	collection.Results = &results

	if commit.SHA != "" {
		info := commit.Info(ctx)
		collection.OptionalHeader = commit.OptionalHeader(ctx)
		collection.ExtraInfo = map[string]string{
			"author": info.Author,
			"email":  info.Email,
			"date":   info.Date,
		}
	}
	return collection, nil
}

// ScanCommitRange scans shas concurrently. Children keep the order of shas.
// Secrets found across the range are fed to the scanner's cache once every
// commit is done.
func ScanCommitRange(ctx context.Context, opts TargetOptions, shas []string) (ScanCollection, error) {
	threads := opts.CommitThreads
	if threads <= 0 {
		threads = DefaultCommitThreads
	}

	children := make([]ScanCollection, len(shas))
	recorders := make([]*recordingCache, len(shas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, sha := range shas {
		g.Go(func() error {
			recorders[i] = &recordingCache{}
			commit := NewCommit(opts.Runner, sha, opts.Exclusions)
			child, err := scanCommit(gctx, opts, opts.Scanner.withCache(recorders[i]), commit, TypeCommit)
			if err != nil {
				return fmt.Errorf("scanning commit %s: %w", sha, err)
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanCollection{}, err
	}

	cache := opts.Scanner.cache
	cache.Purge()
	for _, rec := range recorders {
		rec.replay(cache)
	}
	if err := cache.Save(); err != nil {
		slog.Warn("saving cache", "err", err)
	}

	return ScanCollection{
		ID:    rangeID(shas),
		Type:  TypeCommitRange,
		Scans: children,
	}, nil
}

func rangeID(shas []string) string {
	switch len(shas) {
	case 0:
		return ""
	case 1:
		return shas[0]
	}
	return shas[0] + ".." + shas[len(shas)-1]
}

// ScanPaths scans files on disk. Directories require recursive and are
// walked without entering .git directories.
func ScanPaths(ctx context.Context, opts TargetOptions, paths []string, recursive bool) (ScanCollection, error) {
	files, err := CollectFiles(paths, recursive, opts.Exclusions)
	if err != nil {
		return ScanCollection{}, err
	}
	results, err := opts.Scanner.Scan(ctx, files, opts.Progress, opts.Concurrency)
	if err != nil {
		return ScanCollection{}, err
	}
	return ScanCollection{
		ID:      strings.Join(paths, " "),
		Type:    TypePathScan,
		Results: &results,
	}, nil
}

// CollectFiles expands paths into files, dropping excluded ones.
func CollectFiles(paths []string, recursive bool, exclusions filter.Exclusions) (Files, error) {
	var files Files
	add := func(root, path string) {
		if filter.IsFilepathExcluded(path, exclusions) {
			return
		}
		if rel, err := filepath.Rel(root, path); err == nil && rel != "." && filter.IsFilepathExcluded(rel, exclusions) {
			return
		}
		files = append(files, NewFileFromPath(path))
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root, root)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory, use --recursive to scan directories", root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(root, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return files, nil
}

// recordingCache collects the secrets found by one commit of a range so the
// real cache is only touched from one goroutine.
type recordingCache struct {
	found []foundBreak
}

type foundBreak struct {
	pb       client.PolicyBreak
	filename string
}

func (r *recordingCache) Purge() { r.found = nil }

func (r *recordingCache) AddFoundPolicyBreak(pb client.PolicyBreak, filename string) {
	r.found = append(r.found, foundBreak{pb: pb, filename: filename})
}

func (r *recordingCache) Save() error { return nil }

func (r *recordingCache) replay(c Cache) {
	if r == nil {
		return
	}
	for _, f := range r.found {
		c.AddFoundPolicyBreak(f.pb, f.filename)
	}
}
