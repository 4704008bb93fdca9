package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
)

// FileNames are the accepted config file names, in lookup order.
var FileNames = []string{".gitguardian.yaml", ".gitguardian.yml"}

// Config represents the ggshield configuration.
type Config struct {
	APIURL string `yaml:"api-url"`
	// APIKey only comes from the environment.
	APIKey string `yaml:"-"`

	ExitZero    bool `yaml:"exit-zero"`
	Verbose     bool `yaml:"verbose"`
	ShowSecrets bool `yaml:"show-secrets"`

	PathsIgnore        []string              `yaml:"paths-ignore"`
	ExcludeRegexes     []string              `yaml:"exclude-regexes"`
	MatchesIgnore      []filter.IgnoredMatch `yaml:"matches-ignore"`
	BanlistedDetectors []string              `yaml:"banlisted-detectors"`

	ScanThreads       int     `yaml:"scan-threads"`
	CommitThreads     int     `yaml:"commit-threads"`
	RequestsPerSecond float64 `yaml:"requests-per-second"`
	MaxRetries        int     `yaml:"max-retries"`
	Format            string  `yaml:"format"`

	Cache           CacheConfig `yaml:"cache"`
	CheckForUpdates bool        `yaml:"check-for-updates"`

	// Sources lists the config files that were read, lowest precedence first.
	Sources []string `yaml:"-"`
}

// CacheConfig controls the found-secrets cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the cache file. Empty means .cache_ggshield in the working
	// directory.
	Path string `yaml:"path,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		APIURL:          client.DefaultAPIURL,
		ScanThreads:     4,
		CommitThreads:   4,
		MaxRetries:      3,
		Format:          "text",
		Cache:           CacheConfig{Enabled: true},
		CheckForUpdates: true,
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.ScanThreads < 1 {
		errs = append(errs, fmt.Errorf("scan-threads must be at least 1, got %d", c.ScanThreads))
	}
	if c.CommitThreads < 1 {
		errs = append(errs, fmt.Errorf("commit-threads must be at least 1, got %d", c.CommitThreads))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests-per-second must not be negative, got %g", c.RequestsPerSecond))
	}
	if c.Format != "text" && c.Format != "json" {
		errs = append(errs, fmt.Errorf("unsupported format %q", c.Format))
	}
	return errors.Join(errs...)
}

// CacheDir returns the platform-appropriate user cache directory for ggshield.
func CacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ggshield"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "ggshield"), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "ggshield"), nil
		}
		return filepath.Join(home, "AppData", "Local", "ggshield"), nil
	default:
		return filepath.Join(home, ".cache", "ggshield"), nil
	}
}

// GlobalPath returns the first existing global config file, or "".
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return findFile(home), nil
}

// LocalPath returns the first existing config file in dir, or "".
func LocalPath(dir string) string {
	return findFile(dir)
}

func findFile(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load builds the effective config by merging:
// defaults <- global file <- local file (in dir) <- env <- overrides.
// The overrides map comes from CLI flags (only set values should be present).
func Load(dir string, overrides map[string]string) (Config, error) {
	cfg := Default()

	global, err := GlobalPath()
	if err != nil {
		return Config{}, err
	}
	local := LocalPath(dir)
	for _, path := range []string{global, local} {
		if path == "" || slices.Contains(cfg.Sources, path) {
			continue
		}
		fc, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		mergeFile(&cfg, fc)
		cfg.Sources = append(cfg.Sources, path)
	}

	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig is the on-disk shape. Pointers tell unset keys from zero values.
type fileConfig struct {
	Version            int            `yaml:"version"`
	APIURL             *string        `yaml:"api-url"`
	ExitZero           *bool          `yaml:"exit-zero"`
	Verbose            *bool          `yaml:"verbose"`
	ShowSecrets        *bool          `yaml:"show-secrets"`
	PathsIgnore        []string       `yaml:"paths-ignore"`
	ExcludeRegexes     []string       `yaml:"exclude-regexes"`
	MatchesIgnore      []ignoredEntry `yaml:"matches-ignore"`
	BanlistedDetectors []string       `yaml:"banlisted-detectors"`
	ScanThreads        *int           `yaml:"scan-threads"`
	CommitThreads      *int           `yaml:"commit-threads"`
	RequestsPerSecond  *float64       `yaml:"requests-per-second"`
	MaxRetries         *int           `yaml:"max-retries"`
	Format             *string        `yaml:"format"`
	Cache              struct {
		Enabled *bool   `yaml:"enabled"`
		Path    *string `yaml:"path"`
	} `yaml:"cache"`
	CheckForUpdates *bool `yaml:"check-for-updates"`
}

// ignoredEntry accepts both {name, match} mappings and bare strings.
type ignoredEntry filter.IgnoredMatch

func (e *ignoredEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Match = node.Value
		return nil
	}
	var m filter.IgnoredMatch
	if err := node.Decode(&m); err != nil {
		return err
	}
	*e = ignoredEntry(m)
	return nil
}

// loadFile parses one config file.
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return fc, nil
}

func mergeFile(dst *Config, src fileConfig) {
	setIf(&dst.APIURL, src.APIURL)
	setIf(&dst.ExitZero, src.ExitZero)
	setIf(&dst.Verbose, src.Verbose)
	setIf(&dst.ShowSecrets, src.ShowSecrets)
	setIf(&dst.ScanThreads, src.ScanThreads)
	setIf(&dst.CommitThreads, src.CommitThreads)
	setIf(&dst.RequestsPerSecond, src.RequestsPerSecond)
	setIf(&dst.MaxRetries, src.MaxRetries)
	setIf(&dst.Format, src.Format)
	setIf(&dst.Cache.Enabled, src.Cache.Enabled)
	setIf(&dst.Cache.Path, src.Cache.Path)
	setIf(&dst.CheckForUpdates, src.CheckForUpdates)

	dst.PathsIgnore = union(dst.PathsIgnore, src.PathsIgnore)
	dst.ExcludeRegexes = union(dst.ExcludeRegexes, src.ExcludeRegexes)
	dst.BanlistedDetectors = union(dst.BanlistedDetectors, src.BanlistedDetectors)
	for _, e := range src.MatchesIgnore {
		m := filter.IgnoredMatch(e)
		if !slices.Contains(dst.MatchesIgnore, m) {
			dst.MatchesIgnore = append(dst.MatchesIgnore, m)
		}
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func union(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

type envConfig struct {
	APIKey            string `env:"GITGUARDIAN_API_KEY"`
	APIURL            string `env:"GITGUARDIAN_API_URL"`
	ExitZero          string `env:"GITGUARDIAN_EXIT_ZERO"`
	ScanThreads       string `env:"GITGUARDIAN_SCAN_THREADS"`
	RequestsPerSecond string `env:"GITGUARDIAN_REQUESTS_PER_SECOND"`
	DontCheckUpdates  string `env:"GITGUARDIAN_DONT_CHECK_UPDATES"`
}

func mergeEnv(cfg *Config) error {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if env.APIKey != "" {
		cfg.APIKey = env.APIKey
	}
	if env.APIURL != "" {
		cfg.APIURL = env.APIURL
	}
	if env.ExitZero != "" {
		cfg.ExitZero = truthy(env.ExitZero)
	}
	if env.DontCheckUpdates != "" && truthy(env.DontCheckUpdates) {
		cfg.CheckForUpdates = false
	}
	if env.ScanThreads != "" {
		n, err := strconv.Atoi(env.ScanThreads)
		if err != nil {
			return fmt.Errorf("GITGUARDIAN_SCAN_THREADS must be an integer: %w", err)
		}
		cfg.ScanThreads = n
	}
	if env.RequestsPerSecond != "" {
		f, err := strconv.ParseFloat(env.RequestsPerSecond, 64)
		if err != nil {
			return fmt.Errorf("GITGUARDIAN_REQUESTS_PER_SECOND must be a number: %w", err)
		}
		cfg.RequestsPerSecond = f
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// mergeOverrides applies CLI flag values. List keys hold comma separated
// values and extend the configured lists.
func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "api-url":
		cfg.APIURL = value
	case "format":
		cfg.Format = value
	case "exit-zero":
		cfg.ExitZero = truthy(value)
	case "verbose":
		cfg.Verbose = truthy(value)
	case "show-secrets":
		cfg.ShowSecrets = truthy(value)
	case "check-for-updates":
		cfg.CheckForUpdates = truthy(value)
	case "cache-enabled":
		cfg.Cache.Enabled = truthy(value)
	case "cache-path":
		cfg.Cache.Path = value
	case "paths-ignore":
		cfg.PathsIgnore = union(cfg.PathsIgnore, splitList(value))
	case "exclude-regexes":
		cfg.ExcludeRegexes = union(cfg.ExcludeRegexes, splitList(value))
	case "banlisted-detectors":
		cfg.BanlistedDetectors = union(cfg.BanlistedDetectors, splitList(value))
	case "scan-threads", "commit-threads", "max-retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		switch key {
		case "scan-threads":
			cfg.ScanThreads = n
		case "commit-threads":
			cfg.CommitThreads = n
		default:
			cfg.MaxRetries = n
		}
	case "requests-per-second":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("requests-per-second must be a number: %w", err)
		}
		cfg.RequestsPerSecond = f
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// splitList splits v on commas that are not inside a {...} glob group.
func splitList(v string) []string {
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		if s := strings.TrimSpace(v[start:end]); s != "" {
			out = append(out, s)
		}
	}
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(v))
	return out
}
