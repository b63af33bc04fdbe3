package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IQzhan/abload"
)

const testManifest = `
bundles:
  ui.ab:
    version: "2"
    dependencies: [shared.ab]
  shared.ab:
    version: "1"
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDirFetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "shared.ab", "shared-bytes")

	d, err := NewDir(root, "manifest.yaml")
	require.NoError(t, err)

	var p abload.Progress
	h, err := d.Fetch(testContext(t), "shared.ab", "1", &p)
	require.NoError(t, err)

	b, ok := h.(*Bundle)
	require.True(t, ok)
	assert.Equal(t, "shared.ab", b.Name)
	assert.Equal(t, "1", b.Version)
	assert.Equal(t, []byte("shared-bytes"), b.Data)
	assert.Equal(t, 1.0, p.Value())

	require.NoError(t, Release(h, true))
	assert.True(t, b.Closed())
	assert.Equal(t, []byte("shared-bytes"), b.Data)
}

func TestDirFetchMissing(t *testing.T) {
	d, err := NewDir(t.TempDir(), "manifest.yaml")
	require.NoError(t, err)

	_, err = d.Fetch(testContext(t), "missing.ab", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirFetchCanceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ab", "a")
	d, err := NewDir(root, "manifest.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err = d.Fetch(ctx, "a.ab", "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "manifest.yaml", testManifest)

	d, err := NewDir(root, "manifest.yaml")
	require.NoError(t, err)

	m, err := d.FetchManifest(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"shared.ab"}, m.DependenciesOf("ui.ab"))
	assert.Equal(t, "2", m.VersionOf("ui.ab"))
	assert.Empty(t, m.DependenciesOf("shared.ab"))
}

func TestDirWithLoader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "manifest.yaml", testManifest)
	writeFile(t, root, "ui.ab", "ui")
	writeFile(t, root, "shared.ab", "shared")

	d, err := NewDir(root, "manifest.yaml")
	require.NoError(t, err)

	l, err := abload.New(d, d, abload.WithRelease(Release))
	require.NoError(t, err)

	h, err := l.Load(testContext(t), "ui.ab")
	require.NoError(t, err)
	assert.Equal(t, []byte("ui"), h.(*Bundle).Data)

	shared, ok := l.TryGetLoaded("shared.ab")
	require.True(t, ok)

	require.NoError(t, l.Close())
	assert.True(t, h.(*Bundle).Closed())
	assert.True(t, shared.(*Bundle).Closed())
}

func TestNewDirValidation(t *testing.T) {
	_, err := NewDir("", "manifest.yaml")
	assert.Error(t, err)
	_, err = NewDir(t.TempDir(), "")
	assert.Error(t, err)
}
