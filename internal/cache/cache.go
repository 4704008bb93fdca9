package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultFilename is the cache file name used when no path is configured.
const DefaultFilename = ".cache_ggshield"

type document struct {
	LastFoundSecrets []filter.IgnoredMatch `json:"last_found_secrets"`
}

// Cache stores the secrets found by the last scan. It is not safe for
// concurrent use; the scanner mutates it from a single goroutine.
type Cache struct {
	path    string
	enabled bool
	found   []filter.IgnoredMatch
	seen    map[string]struct{}
}

// New creates a Cache backed by path and loads its current content. An empty
// path selects DefaultFilename in the working directory.
func New(enabled bool, path string) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if path == "" {
		path = DefaultFilename
	}
	c := &Cache{path: path, enabled: true, seen: make(map[string]struct{})}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the in-memory state with the file content. A missing file
// loads as an empty cache.
func (c *Cache) Load() error {
	if !c.enabled {
		return nil
	}
	c.found = nil
	c.seen = make(map[string]struct{})

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing cache file %s: %w", c.path, err)
	}
	for _, m := range doc.LastFoundSecrets {
		c.add(m)
	}
	return nil
}

// Purge forgets the secrets found by the previous run.
func (c *Cache) Purge() {
	c.found = nil
	c.seen = make(map[string]struct{})
}

// AddFoundPolicyBreak records a secret policy break found in filename.
// Breaks from other policies and duplicates are ignored.
func (c *Cache) AddFoundPolicyBreak(pb client.PolicyBreak, filename string) {
	if !c.enabled || !pb.IsSecret() {
		return
	}
	c.add(filter.IgnoredMatch{
		Name:  fmt.Sprintf("%s - %s", pb.BreakType, filename),
		Match: filter.IgnoreSHA(pb),
	})
}

func (c *Cache) add(m filter.IgnoredMatch) {
	if _, dup := c.seen[m.Match]; dup {
		return
	}
	c.seen[m.Match] = struct{}{}
	c.found = append(c.found, m)
}

// LastFoundSecrets returns the recorded secrets in insertion order.
func (c *Cache) LastFoundSecrets() []filter.IgnoredMatch {
	return append([]filter.IgnoredMatch(nil), c.found...)
}

// Save writes the cache file, or removes it when nothing was found.
func (c *Cache) Save() error {
	if !c.enabled {
		return nil
	}
	if len(c.found) == 0 {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing cache file: %w", err)
		}
		return nil
	}
	data, err := json.MarshalIndent(document{LastFoundSecrets: c.found}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return os.WriteFile(c.path, append(data, '\n'), 0o644)
}

// Clear empties the cache and removes its file.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	c.Purge()
	return c.Save()
}

// Stats describes the cache for display.
type Stats struct {
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// GetStats returns information about the cache file.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Path: c.path, Enabled: c.enabled, Entries: len(c.found)}
	if !c.enabled {
		return stats, nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache file: %w", err)
	}
	stats.Bytes = info.Size()
	return stats, nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Enabled returns whether caching is enabled.
func (c *Cache) Enabled() bool {
	return c.enabled
}
