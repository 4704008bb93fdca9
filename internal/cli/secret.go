package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/CEE-TEE/ggshield/internal/cache"
	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/config"
	"github.com/CEE-TEE/ggshield/internal/filter"
	"github.com/CEE-TEE/ggshield/internal/gitctx"
	"github.com/CEE-TEE/ggshield/internal/output"
	"github.com/CEE-TEE/ggshield/internal/scan"
	"github.com/CEE-TEE/ggshield/internal/telemetry"
	"github.com/CEE-TEE/ggshield/internal/update"
	"github.com/CEE-TEE/ggshield/internal/version"
)

// Shared scan flags
var (
	flagExclude       []string
	flagBanlist       []string
	flagScanThreads   int
	flagFormat        string
	flagOutput        string
	flagShowSecrets   bool
	flagExitZero      bool
	flagRecursive     bool
	flagCommitThreads int
)

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&flagExclude, "exclude", nil, "Do not scan paths matching this glob (repeatable)")
	cmd.Flags().StringArrayVarP(&flagBanlist, "banlist-detector", "b", nil, "Exclude results from a detector (repeatable)")
	cmd.Flags().IntVar(&flagScanThreads, "scan-threads", 0, "Number of batches scanned concurrently")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVar(&flagShowSecrets, "show-secrets", false, "Show secrets in clear in the report")
	cmd.Flags().BoolVar(&flagExitZero, "exit-zero", false, "Always return exit code 0, even if incidents are found")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if len(flagExclude) > 0 {
		m["paths-ignore"] = strings.Join(flagExclude, ",")
	}
	if len(flagBanlist) > 0 {
		m["banlisted-detectors"] = strings.Join(flagBanlist, ",")
	}
	if flagScanThreads > 0 {
		m["scan-threads"] = strconv.Itoa(flagScanThreads)
	}
	if flagCommitThreads > 0 {
		m["commit-threads"] = strconv.Itoa(flagCommitThreads)
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagShowSecrets {
		m["show-secrets"] = "true"
	}
	if flagExitZero {
		m["exit-zero"] = "true"
	}
	if flagVerbose {
		m["verbose"] = "true"
	}
	return m
}

// target runs one kind of scan with fully built options.
type target func(ctx context.Context, opts scan.TargetOptions) (scan.ScanCollection, error)

// runScan loads the configuration, builds the scanner and reports the result
// of t. It sets exitCode.
func runScan(cmd *cobra.Command, mode scan.ScanMode, t target) {
	errOut := cmd.ErrOrStderr()

	dir, err := os.Getwd()
	if err != nil {
		fail(errOut, ExitRuntimeError, err)
		return
	}
	cfg, err := config.Load(dir, buildOverrides())
	if err != nil {
		fail(errOut, ExitUsageError, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fail(errOut, ExitUsageError, err)
		return
	}

	apiClient, err := client.New(client.Options{
		APIURL:            cfg.APIURL,
		APIKey:            cfg.APIKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
	})
	if err != nil {
		fail(errOut, ExitAuthError, err)
		return
	}
	exclusions, err := filter.NewExclusions(cfg.PathsIgnore, cfg.ExcludeRegexes)
	if err != nil {
		fail(errOut, ExitUsageError, err)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:        "ggshield",
		Endpoint:           os.Getenv(telemetry.EndpointEnv),
		ResourceAttributes: map[string]string{"ggshield.mode": string(mode)},
	})
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	runner := gitctx.ExecRunner{Dir: dir}
	cachePath := resolveCachePath(ctx, cfg, runner, mode != scan.ModePath)
	foundCache, err := cache.New(cfg.Cache.Enabled, cachePath)
	if err != nil {
		slog.Warn("ignoring unreadable cache", "path", cachePath, "err", err)
		foundCache, _ = cache.New(false, cachePath)
	}

	sc := &scan.ScanContext{ScanMode: mode, CommandPath: cmd.CommandPath()}
	scanner := scan.NewScanner(apiClient, foundCache, sc,
		scan.WithIgnoredMatches(cfg.MatchesIgnore),
		scan.WithIgnoredDetectors(filter.DetectorSet(cfg.BanlistedDetectors)),
		scan.WithErrorOutput(errOut),
	)

	opts := scan.TargetOptions{
		Scanner:       scanner,
		Runner:        runner,
		Exclusions:    exclusions,
		Concurrency:   cfg.ScanThreads,
		CommitThreads: cfg.CommitThreads,
	}
	var progress *progressReporter
	if cfg.Verbose {
		progress = &progressReporter{w: errOut}
		opts.Progress = progress.Add
	}

	collection, err := t(ctx, opts)
	progress.Finish()
	if errors.Is(err, errNoCommits) {
		fmt.Fprintln(errOut, "No commits to scan.")
		return
	}
	if err != nil {
		code := ExitRuntimeError
		if scan.IsAuthError(err) {
			code = ExitAuthError
		}
		fail(errOut, code, err)
		return
	}

	if err := output.WriteReport(&collection, cfg.Format, flagOutput, output.Options{ShowSecrets: cfg.ShowSecrets}); err != nil {
		fail(errOut, ExitRuntimeError, fmt.Errorf("writing output: %w", err))
		return
	}
	exitCode = scanExitCode(&collection, cfg.ExitZero)

	if cfg.CheckForUpdates {
		notifyUpdate(ctx, errOut)
	}
}

// resolveCachePath returns the configured cache file, or the default one in
// the repository root (or working directory).
func resolveCachePath(ctx context.Context, cfg config.Config, runner gitctx.ExecRunner, inRepo bool) string {
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	root := runner.Dir
	if inRepo {
		if r, err := gitctx.RepoRoot(ctx, runner); err == nil {
			root = r
		}
	}
	return filepath.Join(root, cache.DefaultFilename)
}

// scanExitCode maps a finished report to the process exit code.
func scanExitCode(c *scan.ScanCollection, exitZero bool) int {
	switch {
	case exitZero:
		return ExitSuccess
	case c.HasResults():
		return ExitFindings
	case len(c.AllErrors()) > 0:
		return ExitRuntimeError
	default:
		return ExitSuccess
	}
}

func fail(w io.Writer, code int, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	exitCode = code
}

func notifyUpdate(ctx context.Context, w io.Writer) {
	dir, err := config.CacheDir()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	checker := &update.Checker{CachePath: filepath.Join(dir, update.CacheFilename)}
	latest, err := checker.Check(ctx, version.Version)
	if err != nil {
		slog.Debug("update check failed", "err", err)
		return
	}
	if latest != "" {
		fmt.Fprintf(w, "\nA new version of ggshield (v%s) has been released (https://github.com/GitGuardian/ggshield).\n", latest)
	}
}

// progressReporter counts scanned files. Add is safe for concurrent use.
type progressReporter struct {
	mu    sync.Mutex
	w     io.Writer
	total int
}

func (p *progressReporter) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
	fmt.Fprintf(p.w, "\rScanning... %d files", p.total)
}

// Finish ends the progress line. It is a no-op on a nil reporter.
func (p *progressReporter) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.w)
	}
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Commands to work with secrets",
}

var secretScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan commits, staged changes or files for secrets",
}

var scanPreCommitCmd = &cobra.Command{
	Use:   "pre-commit",
	Short: "Scan the changes staged for the next commit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runScan(cmd, scan.ModePreCommit, scan.ScanStaged)
	},
}

var scanCommitCmd = &cobra.Command{
	Use:   "commit <sha>",
	Short: "Scan a single commit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScan(cmd, scan.ModeCommit, func(ctx context.Context, opts scan.TargetOptions) (scan.ScanCollection, error) {
			return scan.ScanCommit(ctx, opts, args[0])
		})
	},
}

// errNoCommits reports an empty revision range.
var errNoCommits = errors.New("no commits to scan")

var scanCommitRangeCmd = &cobra.Command{
	Use:   "commit-range <range>",
	Short: "Scan every commit of a revision range (e.g. origin/main..HEAD)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScan(cmd, scan.ModeCommitRange, func(ctx context.Context, opts scan.TargetOptions) (scan.ScanCollection, error) {
			commits, err := gitctx.ListCommits(ctx, opts.Runner, args[0])
			if err != nil {
				return scan.ScanCollection{}, err
			}
			if len(commits) == 0 {
				return scan.ScanCollection{}, errNoCommits
			}
			shas := make([]string, len(commits))
			for i, c := range commits {
				shas[i] = c.SHA
			}
			return scan.ScanCommitRange(ctx, opts, shas)
		})
	},
}

var scanPathCmd = &cobra.Command{
	Use:   "path <paths...>",
	Short: "Scan files and directories",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScan(cmd, scan.ModePath, func(ctx context.Context, opts scan.TargetOptions) (scan.ScanCollection, error) {
			return scan.ScanPaths(ctx, opts, args, flagRecursive)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{scanPreCommitCmd, scanCommitCmd, scanCommitRangeCmd, scanPathCmd} {
		addScanFlags(cmd)
		secretScanCmd.AddCommand(cmd)
	}
	scanCommitRangeCmd.Flags().IntVar(&flagCommitThreads, "commit-threads", 0, "Number of commits scanned concurrently")
	scanPathCmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "Scan directories recursively")
	secretCmd.AddCommand(secretScanCmd)
}
