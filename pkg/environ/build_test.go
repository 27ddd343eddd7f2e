package environ

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dryRunManager() *Manager {
	return NewManager(Opts{DryRun: true})
}

func TestBuildOrReuseDryRunDeterministic(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "env.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("dependencies:\n  - python=3.11\n"), 0o644))
	opts := BuildOpts{CacheDir: filepath.Join(dir, "cache")}

	first, err := m.BuildOrReuse(context.Background(), yamlPath, opts)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first.Tag, "wf2wf/env:"), first.Tag)
	require.True(t, strings.HasPrefix(first.Digest, "sha256:"), first.Digest)
	require.False(t, first.Reused)

	second, err := m.BuildOrReuse(context.Background(), yamlPath, opts)
	require.NoError(t, err)
	require.Equal(t, first.Tag, second.Tag)
	require.Equal(t, first.Digest, second.Digest)
	require.True(t, second.Reused, "identical lock must reuse the cache")
}

func TestBuildOrReuseDifferentYAMLDifferentTag(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	opts := BuildOpts{CacheDir: filepath.Join(dir, "cache")}

	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("dependencies:\n  - python=3.11\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("dependencies:\n  - python=3.12\n"), 0o644))

	ra, err := m.BuildOrReuse(context.Background(), a, opts)
	require.NoError(t, err)
	rb, err := m.BuildOrReuse(context.Background(), b, opts)
	require.NoError(t, err)
	require.NotEqual(t, ra.Tag, rb.Tag)
}

func TestBuildOrReusePushRequiresConfirmation(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "env.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("dependencies: []\n"), 0o644))

	_, err := m.BuildOrReuse(context.Background(), yamlPath, BuildOpts{
		CacheDir:     filepath.Join(dir, "cache"),
		PushRegistry: "registry.example.com",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "confirm")
}

func TestGenerateSBOMStub(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	path, err := m.GenerateSBOM(context.Background(), "python:3.11", dir, BuildOpts{CacheDir: dir})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "stub SBOM")
	require.Contains(t, string(data), "python:3.11")
}

func TestConvertToSIFStubMagic(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	path, err := m.ConvertToSIF(context.Background(), "python:3.11", dir, BuildOpts{CacheDir: dir})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), SIFStubMagic))
}

func TestPruneCacheRemovesOldEntries(t *testing.T) {
	m := dryRunManager()
	dir := t.TempDir()
	idx := newCacheIndex(dir)
	old := CacheEntry{Tag: "wf2wf/env:old", Digest: "sha256:aa", CreatedAt: time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339)}
	fresh := CacheEntry{Tag: "wf2wf/env:new", Digest: "sha256:bb", CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	require.NoError(t, idx.Store("oldhash", old))
	require.NoError(t, idx.Store("newhash", fresh))

	removed, err := m.PruneCache(dir, 7)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, foundOld, err := idx.Lookup("oldhash")
	require.NoError(t, err)
	require.False(t, foundOld)
	_, foundNew, err := idx.Lookup("newhash")
	require.NoError(t, err)
	require.True(t, foundNew)
}

func TestCacheDirEnvOverride(t *testing.T) {
	t.Setenv("WF2WF_CACHE_DIR", "/custom/cache")
	require.Equal(t, "/custom/cache", CacheDir())
}

func TestDryRunEnvVariable(t *testing.T) {
	t.Setenv("WF2WF_ENVIRON_DRYRUN", "1")
	m := NewManager(Opts{})
	require.True(t, m.dryRun)
}
