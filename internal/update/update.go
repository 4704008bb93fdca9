package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultURL is the latest-release endpoint of the ggshield repository.
	DefaultURL = "https://api.github.com/repos/GitGuardian/GGShield/releases/latest"
	// CacheFilename is the name of the cache file inside the user cache dir.
	CacheFilename = "ggshield_release.yaml"

	checkInterval = 24 * time.Hour
)

// Checker looks up the latest release.
type Checker struct {
	URL        string
	CachePath  string
	HTTPClient *http.Client
	// Now defaults to time.Now.
	Now func() time.Time
}

type cacheFile struct {
	LatestVersion string  `yaml:"latest_version"`
	CheckAt       float64 `yaml:"check_at"`
}

// Check returns the latest released version when it is newer than current,
// or "" otherwise. Failures to reach GitHub are not errors: the cached
// answer, if any, is used instead.
func (c *Checker) Check(ctx context.Context, current string) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	cached, err := c.load()
	if err != nil {
		slog.Debug("could not load cached latest version", "err", err)
	}

	latest := cached.LatestVersion
	checkAt := time.Unix(0, int64(cached.CheckAt*float64(time.Second)))
	if latest == "" || cached.CheckAt <= 0 || now().Sub(checkAt) > checkInterval {
		slog.Debug("checking the latest released version of ggshield")
		fetched, err := c.fetch(ctx)
		if err != nil {
			slog.Debug("could not fetch latest version", "err", err)
		} else {
			latest = fetched
			doc := cacheFile{LatestVersion: latest, CheckAt: float64(now().UnixNano()) / float64(time.Second)}
			if err := c.save(doc); err != nil {
				slog.Debug("could not save latest version", "err", err)
			}
		}
	}
	if latest == "" {
		return "", nil
	}

	newer, err := isNewer(current, latest)
	if err != nil {
		return "", err
	}
	if newer {
		return latest, nil
	}
	return "", nil
}

func isNewer(current, latest string) (bool, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("parsing current version %q: %w", current, err)
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("parsing latest version %q: %w", latest, err)
	}
	return cur.LessThan(lat), nil
}

func (c *Checker) fetch(ctx context.Context) (string, error) {
	url := c.URL
	if url == "" {
		url = DefaultURL
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("releases API returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := jsoniter.Unmarshal(body, &release); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	tag := strings.TrimPrefix(release.TagName, "v")
	if tag == "" {
		return "", errors.New("release has no tag name")
	}
	return tag, nil
}

func (c *Checker) load() (cacheFile, error) {
	var doc cacheFile
	if c.CachePath == "" {
		return doc, nil
	}
	data, err := os.ReadFile(c.CachePath)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cacheFile{}, err
	}
	return doc, nil
}

func (c *Checker) save(doc cacheFile) error {
	if c.CachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.CachePath), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(c.CachePath, data, 0o644)
}
