package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseServer(t *testing.T, tag string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"tag_name": "` + tag + `"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCheck_NewerRelease(t *testing.T) {
	var calls atomic.Int32
	server := releaseServer(t, "v1.20.0", &calls)
	c := &Checker{URL: server.URL, CachePath: filepath.Join(t.TempDir(), "sub", CacheFilename)}

	latest, err := c.Check(context.Background(), "1.14.2")
	require.NoError(t, err)
	assert.Equal(t, "1.20.0", latest)
	assert.FileExists(t, c.CachePath)
}

func TestCheck_UpToDate(t *testing.T) {
	var calls atomic.Int32
	server := releaseServer(t, "v1.14.2", &calls)
	c := &Checker{URL: server.URL}

	latest, err := c.Check(context.Background(), "1.14.2")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestCheck_CachedForADay(t *testing.T) {
	var calls atomic.Int32
	server := releaseServer(t, "v2.0.0", &calls)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Checker{
		URL:       server.URL,
		CachePath: filepath.Join(t.TempDir(), CacheFilename),
		Now:       func() time.Time { return now },
	}

	for range 3 {
		latest, err := c.Check(context.Background(), "1.0.0")
		require.NoError(t, err)
		require.Equal(t, "2.0.0", latest)
	}
	assert.Equal(t, int32(1), calls.Load(), "server calls within a day")

	now = now.Add(25 * time.Hour)
	_, err := c.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "server calls after expiry")
}

func TestCheck_ServerDownUsesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFilename)
	require.NoError(t, os.WriteFile(path, []byte("latest_version: 1.30.0\ncheck_at: 1.0\n"), 0o644))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := &Checker{URL: server.URL, CachePath: path}
	latest, err := c.Check(context.Background(), "1.14.2")
	require.NoError(t, err)
	assert.Equal(t, "1.30.0", latest, "the cached version is used")
}

func TestCheck_InvalidCurrentVersion(t *testing.T) {
	var calls atomic.Int32
	server := releaseServer(t, "v1.0.0", &calls)
	c := &Checker{URL: server.URL}
	_, err := c.Check(context.Background(), "not-a-version")
	assert.Error(t, err)
}
