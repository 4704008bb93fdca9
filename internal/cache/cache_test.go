package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
)

func secretBreak(value string) client.PolicyBreak {
	return client.PolicyBreak{
		BreakType: "GitHub Token",
		Policy:    client.SecretPolicy,
		Matches:   []client.Match{{Match: value, MatchType: "apikey"}},
	}
}

func TestCache_AddSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	c, err := New(true, path)
	require.NoError(t, err)

	pb := secretBreak("ghp_123")
	c.AddFoundPolicyBreak(pb, "main.go")
	c.AddFoundPolicyBreak(pb, "other.go") // same SHA, dropped
	c.AddFoundPolicyBreak(client.PolicyBreak{BreakType: "File extensions", Policy: "Filenames"}, "id_rsa")

	found := c.LastFoundSecrets()
	require.Len(t, found, 1)
	assert.Equal(t, "GitHub Token - main.go", found[0].Name)
	assert.Equal(t, filter.IgnoreSHA(pb), found[0].Match)

	require.NoError(t, c.Save())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_found_secrets"`)

	reloaded, err := New(true, path)
	require.NoError(t, err)
	assert.Equal(t, found, reloaded.LastFoundSecrets())
}

func TestCache_PurgeThenSaveRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	c, err := New(true, path)
	require.NoError(t, err)
	c.AddFoundPolicyBreak(secretBreak("a"), "a.txt")
	require.NoError(t, c.Save())

	c.Purge()
	require.Empty(t, c.LastFoundSecrets(), "Purge should empty the cache")
	require.NoError(t, c.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "cache file should be removed, stat err = %v", err)
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(false, "")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c.Purge()
	c.AddFoundPolicyBreak(secretBreak("x"), "x.go")
	assert.Empty(t, c.LastFoundSecrets(), "disabled cache should not record anything")
	assert.NoError(t, c.Save())
	assert.NoError(t, c.Clear())
}

func TestCache_ClearAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFilename)
	c, err := New(true, path)
	require.NoError(t, err)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
	assert.Zero(t, stats.Bytes)

	c.AddFoundPolicyBreak(secretBreak("one"), "a")
	c.AddFoundPolicyBreak(secretBreak("two"), "b")
	require.NoError(t, c.Save())

	stats, err = c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Positive(t, stats.Bytes)
	assert.Equal(t, path, stats.Path)

	require.NoError(t, c.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "cache file should be gone after Clear, stat err = %v", err)
}

func TestCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := New(true, path)
	assert.Error(t, err)
}
